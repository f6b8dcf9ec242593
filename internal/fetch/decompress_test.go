// ABOUTME: Tests for payload codecs
// ABOUTME: Validates brotli round trips, corruption, limits, and codec lookup

package fetch

import (
	"bytes"
	"errors"
	"testing"
)

func TestBrotli_Decompress(t *testing.T) {
	t.Parallel()

	want := []byte("SQLite format 3\x00 and then some")
	got, err := Brotli{}.Decompress(compress(t, want))
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Decompress() = %q, want %q", got, want)
	}
}

func TestBrotli_MaxSize(t *testing.T) {
	t.Parallel()

	compressed := compress(t, bytes.Repeat([]byte("a"), 1000))
	_, err := Brotli{MaxSize: 100}.Decompress(compressed)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("Decompress() error = %v, want ErrResponseTooLarge", err)
	}
}

func TestDecompressorFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"", false},
		{CodecBrotli, false},
		{CodecNone, false},
		{"gzip", true},
	}
	for _, tt := range tests {
		_, err := DecompressorFor(tt.name, 0)
		if (err != nil) != tt.wantErr {
			t.Errorf("DecompressorFor(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}

	id, _ := DecompressorFor(CodecNone, 0)
	out, _ := id.Decompress([]byte("plain"))
	if string(out) != "plain" {
		t.Errorf("Identity.Decompress() = %q", out)
	}
}
