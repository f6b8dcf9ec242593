// ABOUTME: Decodes producer input for snapshot builds
// ABOUTME: Accepts an attribute->version object or an array of records

package pkgdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidRecords is returned when build input cannot be decoded.
var ErrInvalidRecords = errors.New("invalid snapshot records")

type recordJSON struct {
	Attribute string `json:"attribute"`
	Version   string `json:"version"`
	Broken    bool   `json:"broken"`
	Insecure  bool   `json:"insecure"`
}

// DecodeRecords reads either {"attr": "version", ...} or
// [{"attribute": ..., "version": ..., "broken": ..., "insecure": ...}].
// The boolean reports whether the input carried status flags.
func DecodeRecords(r io.Reader) ([]PackageRecord, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("reading records: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("%w: empty input", ErrInvalidRecords)
	}

	switch trimmed[0] {
	case '{':
		var versions map[string]string
		if err := json.Unmarshal(trimmed, &versions); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidRecords, err)
		}
		records := make([]PackageRecord, 0, len(versions))
		for attr, version := range versions {
			records = append(records, PackageRecord{Attribute: attr, Version: version})
		}
		return records, false, nil

	case '[':
		var raw []recordJSON
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidRecords, err)
		}
		records := make([]PackageRecord, 0, len(raw))
		for i, rec := range raw {
			if rec.Attribute == "" {
				return nil, false, fmt.Errorf("%w: record %d has no attribute", ErrInvalidRecords, i)
			}
			records = append(records, PackageRecord(rec))
		}
		return records, true, nil

	default:
		return nil, false, fmt.Errorf("%w: expected a JSON object or array", ErrInvalidRecords)
	}
}

// VersionMap returns attribute -> version for records.
func VersionMap(records []PackageRecord) map[string]string {
	versions := make(map[string]string, len(records))
	for _, rec := range records {
		versions[rec.Attribute] = rec.Version
	}
	return versions
}
