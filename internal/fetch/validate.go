// ABOUTME: Format checks on decoded artifacts before they reach the cache
// ABOUTME: Catches truncated SQLite snapshots and JSON documents

package fetch

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tidwall/gjson"
)

// Artifact formats accepted by ValidatorFor.
const (
	FormatSQLite = "sqlite"
	FormatJSON   = "json"
	FormatNone   = "none"
)

const (
	sqliteHeaderSize  = 100
	sqliteMinPageSize = 512
)

var sqliteMagic = []byte("SQLite format 3\x00")

// Validator checks a decoded artifact. A brotli stream cut short still
// decodes to a prefix without error, so the artifact itself is checked.
type Validator func(data []byte) error

// ValidatorFor returns the validator for format. FormatNone and the empty
// format return nil.
func ValidatorFor(format string) (Validator, error) {
	switch format {
	case "", FormatNone:
		return nil, nil
	case FormatSQLite:
		return ValidateSQLite, nil
	case FormatJSON:
		return ValidateJSON, nil
	default:
		return nil, fmt.Errorf("unknown artifact format %s", format)
	}
}

// ValidateSQLite checks the database header and that the file holds every
// page the header declares.
func ValidateSQLite(data []byte) error {
	if len(data) < sqliteHeaderSize || !bytes.HasPrefix(data, sqliteMagic) {
		return fmt.Errorf("%w: missing SQLite header", ErrInvalidArtifact)
	}

	pageSize := int(binary.BigEndian.Uint16(data[16:18]))
	if pageSize == 1 {
		pageSize = 65536
	}
	if pageSize < sqliteMinPageSize || pageSize&(pageSize-1) != 0 {
		return fmt.Errorf("%w: invalid SQLite page size %d", ErrInvalidArtifact, pageSize)
	}
	if len(data)%pageSize != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %d byte pages", ErrInvalidArtifact, len(data), pageSize)
	}

	// The in-header page count is only trusted when the version-valid-for
	// number matches the change counter.
	pages := binary.BigEndian.Uint32(data[28:32])
	changeCounter := binary.BigEndian.Uint32(data[24:28])
	validFor := binary.BigEndian.Uint32(data[92:96])
	if pages > 0 && changeCounter == validFor {
		if have := uint64(len(data) / pageSize); have < uint64(pages) {
			return fmt.Errorf("%w: SQLite file has %d of %d pages", ErrInvalidArtifact, have, pages)
		}
	}
	return nil
}

// ValidateJSON checks that data is one complete JSON document.
func ValidateJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: incomplete or malformed JSON", ErrInvalidArtifact)
	}
	return nil
}
