// ABOUTME: Primary/fallback artifact fetcher with decompression
// ABOUTME: Downloads the first answering source and decodes its payload

package fetch

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
)

// Fetcher downloads a compressed artifact from a primary or fallback URL.
type Fetcher struct {
	getter       Getter
	decompressor Decompressor
	validate     Validator
	logger       *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithValidator checks every decoded payload with v. Nil disables checks.
func WithValidator(v Validator) FetcherOption {
	return func(f *Fetcher) {
		f.validate = v
	}
}

// NewFetcher creates a Fetcher. A nil decompressor means brotli.
func NewFetcher(getter Getter, decompressor Decompressor, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	if decompressor == nil {
		decompressor = Brotli{}
	}
	f := &Fetcher{
		getter:       getter,
		decompressor: decompressor,
		logger:       observability.OrDefault(logger),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs primaryURL and, if that fails, fallbackURL (skipped when empty
// or identical), then decodes the first successful body. It never caches.
func (f *Fetcher) Fetch(ctx context.Context, primaryURL, fallbackURL string) (data []byte, err error) {
	ctx, span := observability.StartSpan(ctx, "fetch.Fetch")
	defer func() { observability.EndSpan(span, err) }()

	urls := []string{primaryURL}
	if fallbackURL != "" && fallbackURL != primaryURL {
		urls = append(urls, fallbackURL)
	}

	var attempts []Attempt
	for i, u := range urls {
		resp, getErr := f.getter.Get(ctx, u)
		if getErr == nil {
			span.SetAttributes(
				attribute.String("fetch.url", observability.RedactURL(u)),
				attribute.Bool("fetch.fallback", i > 0),
				attribute.Int("fetch.compressed_bytes", len(resp.Body)),
			)
			return f.decode(u, resp.Body)
		}

		attempt := Attempt{URL: u, Err: getErr}
		var statusErr *StatusError
		if errors.As(getErr, &statusErr) {
			attempt.StatusCode = statusErr.StatusCode
		}
		attempts = append(attempts, attempt)

		if i == 0 && len(urls) > 1 {
			f.logger.WarnContext(ctx, "primary download failed, trying fallback",
				slog.String("url", observability.RedactURL(u)),
				slog.String("fallback", observability.RedactURL(urls[1])),
				slog.String("error", getErr.Error()),
			)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &DownloadError{Attempts: attempts}
}

func (f *Fetcher) decode(u string, body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, &DecompressionError{URL: u, Err: errors.New("downloaded payload is empty")}
	}

	out, err := f.decompressor.Decompress(body)
	if err != nil {
		return nil, &DecompressionError{URL: u, Err: err}
	}
	if len(out) == 0 {
		return nil, &DecompressionError{URL: u, Err: errors.New("decompression produced no data")}
	}
	if f.validate != nil {
		if err := f.validate(out); err != nil {
			return nil, &DecompressionError{URL: u, Err: err}
		}
	}
	return out, nil
}
