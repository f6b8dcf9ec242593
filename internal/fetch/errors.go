// ABOUTME: Error types for artifact downloads and decompression
// ABOUTME: Records every attempted source so callers can report what failed

package fetch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDownload matches failures where no source produced a payload.
	ErrDownload = errors.New("download failed")

	// ErrDecompression matches corrupt or empty payloads.
	ErrDecompression = errors.New("decompression failed")

	// ErrUnexpectedStatus matches non-2xx HTTP answers.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrResponseTooLarge matches bodies above the configured size limit.
	ErrResponseTooLarge = errors.New("response exceeds size limit")

	// ErrInvalidArtifact matches decoded payloads that fail their format check.
	ErrInvalidArtifact = errors.New("artifact failed validation")
)

// StatusError reports a non-2xx answer.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s: %d", e.URL, ErrUnexpectedStatus, e.StatusCode)
}

// Is reports whether target is ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Attempt records one GET of a fetch sequence.
type Attempt struct {
	URL        string
	StatusCode int
	Err        error
}

// DownloadError is returned when neither source answered successfully.
type DownloadError struct {
	Attempts []Attempt
}

func (e *DownloadError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.URL, a.Err))
	}
	return fmt.Sprintf("%s: %s", ErrDownload, strings.Join(parts, "; "))
}

// Is reports whether target is ErrDownload.
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}

// Unwrap exposes the attempt errors, so context cancellation stays visible.
func (e *DownloadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// DecompressionError is returned when a downloaded payload cannot be decoded.
type DecompressionError struct {
	URL string
	Err error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDecompression, e.URL, e.Err)
}

// Is reports whether target is ErrDecompression.
func (e *DecompressionError) Is(target error) bool {
	return target == ErrDecompression
}

func (e *DecompressionError) Unwrap() error {
	return e.Err
}
