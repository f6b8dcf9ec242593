// ABOUTME: Error types for snapshot queries and snapshot builds
// ABOUTME: Distinguishes absent attributes from broken schema invariants

package pkgdb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an attribute is absent from the snapshot.
	ErrNotFound = errors.New("attribute not found in snapshot")

	// ErrSchemaInvariant matches lookups that returned more than one row.
	ErrSchemaInvariant = errors.New("snapshot schema invariant violated")

	// ErrUnsupportedSchema is returned when a snapshot has no known table.
	ErrUnsupportedSchema = errors.New("snapshot has neither pkgs nor meta table")

	// ErrDatabaseBuild matches snapshot build failures.
	ErrDatabaseBuild = errors.New("database build failed")
)

// SchemaInvariantError reports a non-unique attribute.
type SchemaInvariantError struct {
	Attribute string
	Rows      int
}

func (e *SchemaInvariantError) Error() string {
	return fmt.Sprintf("%s: attribute %q matched %d rows", ErrSchemaInvariant, e.Attribute, e.Rows)
}

// Is reports whether target is ErrSchemaInvariant.
func (e *SchemaInvariantError) Is(target error) bool {
	return target == ErrSchemaInvariant
}

// BuildError reports which build step failed.
type BuildError struct {
	Path string
	Step string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", ErrDatabaseBuild, e.Path, e.Step, e.Err)
}

// Is reports whether target is ErrDatabaseBuild.
func (e *BuildError) Is(target error) bool {
	return target == ErrDatabaseBuild
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
