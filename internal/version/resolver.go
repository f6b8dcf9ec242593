// ABOUTME: Latest snapshot version resolution across a primary and fallback channel
// ABOUTME: Extracts the version token from a response body or redirect target

package version

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/fetch"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
)

// ErrVersionResolution matches failures where no channel yielded a token.
var ErrVersionResolution = errors.New("version resolution failed")

// ResolutionError is returned when both channels failed.
type ResolutionError struct {
	// Primary is nil when the primary channel was skipped.
	Primary  error
	Fallback error
}

func (e *ResolutionError) Error() string {
	if e.Primary == nil {
		return fmt.Sprintf("%s: fallback: %v", ErrVersionResolution, e.Fallback)
	}
	return fmt.Sprintf("%s: primary: %v; fallback: %v", ErrVersionResolution, e.Primary, e.Fallback)
}

// Is reports whether target is ErrVersionResolution.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrVersionResolution
}

// Unwrap exposes both channel errors.
func (e *ResolutionError) Unwrap() []error {
	var errs []error
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// TokenSource selects how a token is read from a version endpoint.
type TokenSource int

const (
	// TokenFromBody uses the trimmed response body.
	TokenFromBody TokenSource = iota

	// TokenFromRedirect uses the last path segment of the final URL.
	TokenFromRedirect
)

// ParseTokenSource maps a config value to a TokenSource.
func ParseTokenSource(s string) (TokenSource, error) {
	switch s {
	case "", "body":
		return TokenFromBody, nil
	case "redirect":
		return TokenFromRedirect, nil
	default:
		return 0, fmt.Errorf("unknown token source %q", s)
	}
}

// Config describes one versioned source.
type Config struct {
	// PrimaryURL is expanded with the channel hint.
	PrimaryURL string

	// FallbackURL is expanded with FallbackChannel.
	FallbackURL string

	// ChannelHint is the host release, e.g. "25.11". Empty skips the primary.
	ChannelHint string

	// FallbackChannel is the rolling channel, e.g. "unstable".
	FallbackChannel string

	// Source selects token extraction.
	Source TokenSource
}

// Resolution is the answer of a successful Resolve.
type Resolution struct {
	// Token is the opaque version string, e.g. "25.11.1234.abcdef".
	Token string

	// Channel is the channel that answered.
	Channel string

	// Fallback is true when the fallback channel answered.
	Fallback bool

	// FallbackChannel is the configured rolling channel.
	FallbackChannel string
}

// Resolver looks up the latest version token. It never retries.
type Resolver struct {
	getter fetch.Getter
	config Config
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(getter fetch.Getter, config Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		getter: getter,
		config: config,
		logger: observability.OrDefault(logger),
	}
}

// Resolve asks the primary channel and then the fallback channel.
func (r *Resolver) Resolve(ctx context.Context) (res Resolution, err error) {
	ctx, span := observability.StartSpan(ctx, "version.Resolve")
	defer func() { observability.EndSpan(span, err) }()

	resErr := &ResolutionError{}

	if r.config.ChannelHint != "" && r.config.PrimaryURL != "" {
		primaryURL := Expand(r.config.PrimaryURL, r.config.ChannelHint, "")
		token, err := r.lookup(ctx, primaryURL)
		if err == nil {
			span.SetAttributes(attribute.String("version.channel", r.config.ChannelHint))
			return Resolution{
				Token:           token,
				Channel:         r.config.ChannelHint,
				FallbackChannel: r.config.FallbackChannel,
			}, nil
		}
		resErr.Primary = err

		r.logger.WarnContext(ctx, "primary version lookup failed, trying fallback",
			slog.String("url", observability.RedactURL(primaryURL)),
			slog.String("error", err.Error()),
		)
	}

	fallbackURL := Expand(r.config.FallbackURL, r.config.FallbackChannel, "")
	if fallbackURL == "" {
		resErr.Fallback = errors.New("no fallback configured")
		return Resolution{}, resErr
	}

	token, err := r.lookup(ctx, fallbackURL)
	if err != nil {
		resErr.Fallback = err
		return Resolution{}, resErr
	}

	span.SetAttributes(
		attribute.String("version.channel", r.config.FallbackChannel),
		attribute.Bool("version.fallback", true),
	)
	return Resolution{
		Token:           token,
		Channel:         r.config.FallbackChannel,
		Fallback:        true,
		FallbackChannel: r.config.FallbackChannel,
	}, nil
}

func (r *Resolver) lookup(ctx context.Context, rawURL string) (string, error) {
	resp, err := r.getter.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}

	var token string
	switch r.config.Source {
	case TokenFromRedirect:
		token, err = TokenFromURL(resp.FinalURL)
		if err != nil {
			return "", err
		}
	default:
		token = strings.TrimSpace(string(resp.Body))
	}

	if token == "" {
		return "", fmt.Errorf("%s: empty version token", rawURL)
	}
	return token, nil
}

// TokenFromURL returns the last path segment of rawURL.
func TokenFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing final URL: %w", err)
	}
	trimmed := strings.TrimRight(u.Path, "/")
	if trimmed == "" {
		return "", fmt.Errorf("%s: no path segments", rawURL)
	}
	return path.Base(trimmed), nil
}

// Expand substitutes {channel} and {version} in a URL template.
func Expand(template, channel, version string) string {
	return strings.NewReplacer("{channel}", channel, "{version}", version).Replace(template)
}
