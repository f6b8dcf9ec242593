// ABOUTME: Tests for the primary/fallback artifact fetcher
// ABOUTME: Validates fallback order, error types, and empty payload handling

package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestFetcher_PrimarySucceeds(t *testing.T) {
	t.Parallel()

	primary, primaryHits := countingServer(t, http.StatusOK, compress(t, []byte("db-bytes")))
	fallback, fallbackHits := countingServer(t, http.StatusOK, compress(t, []byte("other")))

	f := NewFetcher(newTestClient(DefaultClientConfig()), nil, nil)
	got, err := f.Fetch(context.Background(), primary.URL, fallback.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != "db-bytes" {
		t.Errorf("Fetch() = %q, want db-bytes", got)
	}
	if primaryHits.Load() != 1 || fallbackHits.Load() != 0 {
		t.Errorf("hits primary=%d fallback=%d, want 1/0", primaryHits.Load(), fallbackHits.Load())
	}
}

func TestFetcher_FallsBack(t *testing.T) {
	t.Parallel()

	primary, _ := countingServer(t, http.StatusNotFound, nil)
	fallback, fallbackHits := countingServer(t, http.StatusOK, compress(t, []byte("unstable-db")))

	f := NewFetcher(newTestClient(DefaultClientConfig()), Brotli{}, nil)
	got, err := f.Fetch(context.Background(), primary.URL, fallback.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != "unstable-db" {
		t.Errorf("Fetch() = %q, want unstable-db", got)
	}
	if fallbackHits.Load() != 1 {
		t.Errorf("fallback hits = %d, want 1", fallbackHits.Load())
	}
}

func TestFetcher_BothFail(t *testing.T) {
	t.Parallel()

	primary, _ := countingServer(t, http.StatusNotFound, nil)
	fallback, _ := countingServer(t, http.StatusServiceUnavailable, nil)

	f := NewFetcher(newTestClient(DefaultClientConfig()), nil, nil)
	_, err := f.Fetch(context.Background(), primary.URL, fallback.URL)

	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("Fetch() error = %v, want *DownloadError", err)
	}
	if !errors.Is(err, ErrDownload) {
		t.Error("error should match ErrDownload")
	}
	if len(dlErr.Attempts) != 2 {
		t.Fatalf("Attempts = %d, want 2", len(dlErr.Attempts))
	}
	if dlErr.Attempts[0].StatusCode != http.StatusNotFound || dlErr.Attempts[1].StatusCode != http.StatusServiceUnavailable {
		t.Errorf("attempt status codes = %d, %d", dlErr.Attempts[0].StatusCode, dlErr.Attempts[1].StatusCode)
	}
}

func TestFetcher_NoFallback(t *testing.T) {
	t.Parallel()

	primary, hits := countingServer(t, http.StatusNotFound, nil)

	f := NewFetcher(newTestClient(DefaultClientConfig()), nil, nil)
	_, err := f.Fetch(context.Background(), primary.URL, "")
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("Fetch() error = %v, want ErrDownload", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}

	// An identical fallback is not retried.
	_, _ = f.Fetch(context.Background(), primary.URL, primary.URL)
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestFetcher_EmptyPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body []byte
	}{
		{"empty body", []byte{}},
		{"empty decompressed", compress(t, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := countingServer(t, http.StatusOK, tt.body)
			f := NewFetcher(newTestClient(DefaultClientConfig()), nil, nil)

			_, err := f.Fetch(context.Background(), srv.URL, "")
			var decErr *DecompressionError
			if !errors.As(err, &decErr) {
				t.Fatalf("Fetch() error = %v, want *DecompressionError", err)
			}
			if !errors.Is(err, ErrDecompression) {
				t.Error("error should match ErrDecompression")
			}
		})
	}
}

func TestFetcher_Cancelled(t *testing.T) {
	t.Parallel()

	primary, _ := countingServer(t, http.StatusOK, compress(t, []byte("x")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(newTestClient(DefaultClientConfig()), nil, nil)
	_, err := f.Fetch(ctx, primary.URL, primary.URL+"/fallback")
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("Fetch() error = %v, want ErrDownload", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should expose context.Canceled: %v", err)
	}
}

func TestFetcher_TruncatedSQLiteStream(t *testing.T) {
	t.Parallel()

	compressed := compress(t, sqliteImage(t, 16, 4096))
	srv, _ := countingServer(t, http.StatusOK, compressed[:len(compressed)/2])

	f := NewFetcher(newTestClient(DefaultClientConfig()), nil, nil, WithValidator(ValidateSQLite))
	_, err := f.Fetch(context.Background(), srv.URL, "")

	var decErr *DecompressionError
	if !errors.As(err, &decErr) {
		t.Fatalf("Fetch() error = %v, want *DecompressionError", err)
	}
	if !errors.Is(err, ErrInvalidArtifact) {
		t.Errorf("error = %v, want ErrInvalidArtifact", err)
	}
}

func TestFetcher_ValidatorAcceptsCompleteArtifact(t *testing.T) {
	t.Parallel()

	image := sqliteImage(t, 16, 4096)
	srv, _ := countingServer(t, http.StatusOK, compress(t, image))

	f := NewFetcher(newTestClient(DefaultClientConfig()), nil, nil, WithValidator(ValidateSQLite))
	got, err := f.Fetch(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != len(image) {
		t.Errorf("len(Fetch()) = %d, want %d", len(got), len(image))
	}
}
