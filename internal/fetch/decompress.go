// ABOUTME: Payload codecs for downloaded artifacts
// ABOUTME: Brotli by default, identity for sources that serve plain files

package fetch

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Codec names accepted by DecompressorFor.
const (
	CodecBrotli = "brotli"
	CodecNone   = "none"
)

// Decompressor decodes a downloaded payload.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Brotli decodes brotli streams.
type Brotli struct {
	// MaxSize bounds the decoded size in bytes (0 = unlimited).
	MaxSize int64
}

// Decompress implements Decompressor.
func (b Brotli) Decompress(data []byte) ([]byte, error) {
	var reader io.Reader = brotli.NewReader(bytes.NewReader(data))
	if b.MaxSize > 0 {
		reader = io.LimitReader(reader, b.MaxSize+1)
	}

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("brotli: %w", err)
	}
	if b.MaxSize > 0 && int64(len(out)) > b.MaxSize {
		return nil, fmt.Errorf("brotli: %w", ErrResponseTooLarge)
	}
	return out, nil
}

// Identity returns the payload unchanged.
type Identity struct{}

// Decompress implements Decompressor.
func (Identity) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

// DecompressorFor returns the codec registered under name. An empty name
// selects brotli.
func DecompressorFor(name string, maxSize int64) (Decompressor, error) {
	switch name {
	case "", CodecBrotli:
		return Brotli{MaxSize: maxSize}, nil
	case CodecNone:
		return Identity{}, nil
	default:
		return nil, errors.New("unknown codec " + name)
	}
}
