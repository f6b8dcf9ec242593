// ABOUTME: Read-only query handle over a package snapshot database
// ABOUTME: Attribute lookups with status flags, version lookups, and a bloom prefilter

package pkgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Table names a snapshot may carry.
const (
	TablePackages = "pkgs"
	TableMeta     = "meta"
)

// PackageRecord is one snapshot row. Version is empty when the snapshot
// only carries status flags.
type PackageRecord struct {
	Attribute string
	Version   string
	Broken    bool
	Insecure  bool
}

// Info describes an opened snapshot.
type Info struct {
	Path        string
	HasPackages bool
	HasMeta     bool
	Attributes  int
	Bloom       BloomStats
}

// DB is a read-only snapshot. Safe for concurrent use.
type DB struct {
	path        string
	db          *sql.DB
	hasPackages bool
	hasMeta     bool
	attributes  int
	bloom       *BloomFilter
	lookupSQL   string
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Open opens the snapshot at path read-only and builds the attribute
// bloom filter.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", path, err)
	}

	d := &DB{
		path:   path,
		db:     sqlDB,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.introspect(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := d.loadBloom(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	d.logger.DebugContext(ctx, "snapshot opened",
		slog.String("path", path),
		slog.Bool("pkgs", d.hasPackages),
		slog.Bool("meta", d.hasMeta),
		slog.Int("attributes", d.attributes),
	)

	return d, nil
}

// readOnlyDSN builds a file URI that SQLite opens without write access and
// without creating a missing file.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving snapshot path %s: %w", path, err)
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "mode=ro&_pragma=query_only(1)",
	}
	return u.String(), nil
}

func (d *DB) introspect(ctx context.Context) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN (?, ?)`,
		TablePackages, TableMeta)
	if err != nil {
		return fmt.Errorf("reading snapshot schema %s: %w", d.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("reading snapshot schema %s: %w", d.path, err)
		}
		switch name {
		case TablePackages:
			d.hasPackages = true
		case TableMeta:
			d.hasMeta = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading snapshot schema %s: %w", d.path, err)
	}

	switch {
	case d.hasPackages && d.hasMeta:
		d.lookupSQL = `SELECT m.attribute, p.version, m.broken, m.insecure
			FROM meta m LEFT JOIN pkgs p ON p.attribute = m.attribute
			WHERE m.attribute = ?`
	case d.hasMeta:
		d.lookupSQL = `SELECT attribute, NULL, broken, insecure FROM meta WHERE attribute = ?`
	case d.hasPackages:
		d.lookupSQL = `SELECT attribute, version, 0, 0 FROM pkgs WHERE attribute = ?`
	default:
		return fmt.Errorf("%s: %w", d.path, ErrUnsupportedSchema)
	}
	return nil
}

// lookupTable is the table whose attribute set defines membership.
func (d *DB) lookupTable() string {
	if d.hasMeta {
		return TableMeta
	}
	return TablePackages
}

func (d *DB) loadBloom(ctx context.Context) error {
	table := d.lookupTable()

	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return fmt.Errorf("counting %s attributes: %w", table, err)
	}
	d.attributes = count
	d.bloom = NewBloomFilter(DefaultBloomConfig(uint(count)))

	rows, err := d.db.QueryContext(ctx, `SELECT attribute FROM `+table)
	if err != nil {
		return fmt.Errorf("reading %s attributes: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var attr string
		if err := rows.Scan(&attr); err != nil {
			return fmt.Errorf("reading %s attributes: %w", table, err)
		}
		d.bloom.Add(attr)
	}
	return rows.Err()
}

// Lookup returns the row for attribute. ErrNotFound when absent; a
// *SchemaInvariantError when the attribute is not unique.
func (d *DB) Lookup(ctx context.Context, attribute string) (*PackageRecord, error) {
	if !d.bloom.Test(attribute) {
		return nil, ErrNotFound
	}

	rows, err := d.db.QueryContext(ctx, d.lookupSQL, attribute)
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w", attribute, err)
	}
	defer rows.Close()

	var (
		found *PackageRecord
		n     int
	)
	for rows.Next() {
		var (
			attr     string
			version  sql.NullString
			broken   sql.NullInt64
			insecure sql.NullInt64
		)
		if err := rows.Scan(&attr, &version, &broken, &insecure); err != nil {
			return nil, fmt.Errorf("looking up %q: %w", attribute, err)
		}
		n++
		found = &PackageRecord{
			Attribute: attr,
			Version:   version.String,
			Broken:    broken.Int64 != 0,
			Insecure:  insecure.Int64 != 0,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("looking up %q: %w", attribute, err)
	}

	switch n {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found, nil
	default:
		return nil, &SchemaInvariantError{Attribute: attribute, Rows: n}
	}
}

// Versions returns attribute -> version for every attribute with exactly
// one pkgs row. Missing and duplicated attributes are omitted.
func (d *DB) Versions(ctx context.Context, attributes []string) (map[string]string, error) {
	if !d.hasPackages {
		return nil, fmt.Errorf("%s: version lookup needs the %s table: %w", d.path, TablePackages, ErrUnsupportedSchema)
	}

	stmt, err := d.db.PrepareContext(ctx, `SELECT version FROM pkgs WHERE attribute = ?`)
	if err != nil {
		return nil, fmt.Errorf("preparing version lookup: %w", err)
	}
	defer stmt.Close()

	versions := make(map[string]string, len(attributes))
	for _, attr := range attributes {
		version, ok, err := singleVersion(ctx, stmt, attr)
		if err != nil {
			return nil, err
		}
		if ok {
			versions[attr] = version
		}
	}
	return versions, nil
}

func singleVersion(ctx context.Context, stmt *sql.Stmt, attr string) (string, bool, error) {
	rows, err := stmt.QueryContext(ctx, attr)
	if err != nil {
		return "", false, fmt.Errorf("looking up version of %q: %w", attr, err)
	}
	defer rows.Close()

	var (
		version sql.NullString
		n       int
	)
	for rows.Next() {
		if err := rows.Scan(&version); err != nil {
			return "", false, fmt.Errorf("looking up version of %q: %w", attr, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("looking up version of %q: %w", attr, err)
	}
	return version.String, n == 1, nil
}

// Info describes the snapshot.
func (d *DB) Info() Info {
	return Info{
		Path:        d.path,
		HasPackages: d.hasPackages,
		HasMeta:     d.hasMeta,
		Attributes:  d.attributes,
		Bloom:       d.bloom.Stats(),
	}
}

// Close releases the database handle.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
