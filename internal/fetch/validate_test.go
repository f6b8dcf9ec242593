// ABOUTME: Tests for decoded artifact format checks
// ABOUTME: Covers SQLite header and page count checks and JSON completeness

package fetch

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestValidateSQLite(t *testing.T) {
	t.Parallel()

	image := sqliteImage(t, 16, 4096)

	untrusted := sqliteImage(t, 16, 4096)
	binary.BigEndian.PutUint32(untrusted[92:96], 3)

	badMagic := sqliteImage(t, 2, 4096)
	copy(badMagic, "PostgreSQL dump\x00")

	badPageSize := sqliteImage(t, 2, 4096)
	binary.BigEndian.PutUint16(badPageSize[16:18], 1000)

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{name: "complete", data: image},
		{name: "64k pages", data: sqliteImage(t, 2, 65536)},
		{name: "too short for a header", data: image[:50], wantErr: true},
		{name: "wrong magic", data: badMagic, wantErr: true},
		{name: "invalid page size", data: badPageSize, wantErr: true},
		{name: "partial last page", data: image[:len(image)-100], wantErr: true},
		{name: "missing whole pages", data: image[:8*4096], wantErr: true},
		{name: "stale page count is ignored", data: untrusted[:8*4096]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateSQLite(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSQLite() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArtifact) {
				t.Errorf("error = %v, want ErrInvalidArtifact", err)
			}
		})
	}
}

func TestValidateJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "object", data: `{"services.openssh.enable": {"type": "boolean"}}`},
		{name: "truncated", data: `{"services.openssh.enable": {"type": "bool`, wantErr: true},
		{name: "trailing garbage", data: `{"a": 1} x`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateJSON([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArtifact) {
				t.Errorf("error = %v, want ErrInvalidArtifact", err)
			}
		})
	}
}

func TestValidatorFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		wantNil bool
		wantErr bool
	}{
		{format: "", wantNil: true},
		{format: FormatNone, wantNil: true},
		{format: FormatSQLite},
		{format: FormatJSON},
		{format: "xml", wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			v, err := ValidatorFor(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatorFor(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if (v == nil) != tt.wantNil {
				t.Errorf("ValidatorFor(%q) nil = %v, want %v", tt.format, v == nil, tt.wantNil)
			}
		})
	}
}
