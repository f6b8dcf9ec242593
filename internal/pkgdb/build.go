// ABOUTME: Builds package snapshot databases from attribute records
// ABOUTME: Writes into a temp file in one transaction, then renames into place

package pkgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	createPackagesSQL = `CREATE TABLE "pkgs" ("attribute" TEXT NOT NULL UNIQUE, "version" TEXT, PRIMARY KEY("attribute"))`
	createMetaSQL     = `CREATE TABLE "meta" ("attribute" TEXT NOT NULL UNIQUE, "broken" INTEGER NOT NULL DEFAULT 0, "insecure" INTEGER NOT NULL DEFAULT 0, PRIMARY KEY("attribute"))`
	createIndexSQL    = `CREATE UNIQUE INDEX "attributes" ON "pkgs" ("attribute")`
	insertPackageSQL  = `INSERT INTO "pkgs" ("attribute", "version") VALUES (?, ?)`
	insertMetaSQL     = `INSERT INTO "meta" ("attribute", "broken", "insecure") VALUES (?, ?, ?)`
)

// BuildFromRecords writes a pkgs-only snapshot mapping attribute to
// version. Any existing file at path is replaced.
func BuildFromRecords(ctx context.Context, path string, versions map[string]string) error {
	attrs := make([]string, 0, len(versions))
	for attr := range versions {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	records := make([]PackageRecord, 0, len(attrs))
	for _, attr := range attrs {
		records = append(records, PackageRecord{Attribute: attr, Version: versions[attr]})
	}
	return build(ctx, path, records, false)
}

// BuildSnapshot writes a snapshot with both the pkgs and meta tables.
// Duplicate attributes fail the build.
func BuildSnapshot(ctx context.Context, path string, records []PackageRecord) error {
	return build(ctx, path, records, true)
}

func build(ctx context.Context, path string, records []PackageRecord, withMeta bool) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &BuildError{Path: path, Step: "create directory", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &BuildError{Path: path, Step: "create temp file", Err: err}
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	db, err := sql.Open(driverName, tmpPath)
	if err != nil {
		return &BuildError{Path: path, Step: "open", Err: err}
	}

	if err := populate(ctx, db, records, withMeta); err != nil {
		_ = db.Close()
		return &BuildError{Path: path, Step: err.step, Err: err.err}
	}
	if err := db.Close(); err != nil {
		return &BuildError{Path: path, Step: "close", Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return &BuildError{Path: path, Step: "rename", Err: err}
	}
	return nil
}

type stepError struct {
	step string
	err  error
}

func populate(ctx context.Context, db *sql.DB, records []PackageRecord, withMeta bool) *stepError {
	schema := []string{createPackagesSQL}
	if withMeta {
		schema = append(schema, createMetaSQL)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &stepError{step: "create schema", err: err}
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &stepError{step: "begin transaction", err: err}
	}

	if err := insertRecords(ctx, tx, records, withMeta); err != nil {
		_ = tx.Rollback()
		return &stepError{step: "insert", err: err}
	}
	if err := tx.Commit(); err != nil {
		return &stepError{step: "commit", err: err}
	}

	if _, err := db.ExecContext(ctx, createIndexSQL); err != nil {
		return &stepError{step: "create index", err: err}
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, records []PackageRecord, withMeta bool) error {
	pkgStmt, err := tx.PrepareContext(ctx, insertPackageSQL)
	if err != nil {
		return err
	}
	defer pkgStmt.Close()

	var metaStmt *sql.Stmt
	if withMeta {
		metaStmt, err = tx.PrepareContext(ctx, insertMetaSQL)
		if err != nil {
			return err
		}
		defer metaStmt.Close()
	}

	for _, rec := range records {
		if rec.Attribute == "" {
			return errors.New("record with empty attribute")
		}
		if _, err := pkgStmt.ExecContext(ctx, rec.Attribute, rec.Version); err != nil {
			return fmt.Errorf("inserting %q: %w", rec.Attribute, err)
		}
		if metaStmt == nil {
			continue
		}
		if _, err := metaStmt.ExecContext(ctx, rec.Attribute, boolInt(rec.Broken), boolInt(rec.Insecure)); err != nil {
			return fmt.Errorf("inserting meta for %q: %w", rec.Attribute, err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
