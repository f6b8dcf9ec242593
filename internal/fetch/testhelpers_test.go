// ABOUTME: Shared helpers for fetch tests
// ABOUTME: Brotli payloads, synthetic SQLite images, and counting test servers

package fetch

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/andybalholm/brotli"
)

func compress(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}
	return buf.Bytes()
}

// countingServer serves body with status and counts requests.
func countingServer(t *testing.T, status int, body []byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(cfg ClientConfig) *Client {
	return NewClient(cfg, WithHTTPClient(http.DefaultClient))
}

// sqliteImage returns pages of random data behind a SQLite header that
// declares them.
func sqliteImage(t *testing.T, pages, pageSize int) []byte {
	t.Helper()

	data := make([]byte, pages*pageSize)
	rand.New(rand.NewSource(1)).Read(data[sqliteHeaderSize:])
	copy(data, sqliteMagic)

	sizeField := uint16(pageSize)
	if pageSize == 65536 {
		sizeField = 1
	}
	binary.BigEndian.PutUint16(data[16:18], sizeField)
	binary.BigEndian.PutUint32(data[24:28], 7)
	binary.BigEndian.PutUint32(data[28:32], uint32(pages))
	binary.BigEndian.PutUint32(data[92:96], 7)
	return data
}
