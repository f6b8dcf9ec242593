// ABOUTME: Alias oracle decorator that consults the answer cache first
// ABOUTME: Cache failures degrade to calling the wrapped oracle

package aliascache

import (
	"context"
	"log/slog"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/audit"
)

// SourceOracle is an alias oracle that can name the nixpkgs source it
// evaluates against.
type SourceOracle interface {
	audit.AliasOracle
	NixpkgsPath(ctx context.Context) (string, error)
}

// CachingOracle answers from the cache and records the wrapped oracle's
// answers.
type CachingOracle struct {
	inner  SourceOracle
	cache  *Cache
	logger *slog.Logger
}

var _ audit.AliasOracle = (*CachingOracle)(nil)

// NewCachingOracle wraps inner. A nil logger uses slog.Default().
func NewCachingOracle(inner SourceOracle, cache *Cache, logger *slog.Logger) *CachingOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingOracle{inner: inner, cache: cache, logger: logger}
}

// IsKnownAlias implements audit.AliasOracle.
func (o *CachingOracle) IsKnownAlias(ctx context.Context, attr string) (bool, error) {
	source, err := o.inner.NixpkgsPath(ctx)
	if err != nil {
		return false, err
	}

	if entry, ok := o.lookup(ctx, source, attr); ok {
		return entry.Known, nil
	}

	known, err := o.inner.IsKnownAlias(ctx, attr)
	if err != nil {
		return false, err
	}

	o.store(ctx, source, attr, Entry{Known: known})
	return known, nil
}

// Evaluate implements audit.AliasOracle.
func (o *CachingOracle) Evaluate(ctx context.Context, attr string) (audit.Evaluation, error) {
	source, err := o.inner.NixpkgsPath(ctx)
	if err != nil {
		return audit.Evaluation{}, err
	}

	if entry, ok := o.lookup(ctx, source, attr); ok && entry.Evaluated {
		return audit.Evaluation{Failed: entry.Failed, Message: entry.Message}, nil
	}

	eval, err := o.inner.Evaluate(ctx, attr)
	if err != nil {
		return audit.Evaluation{}, err
	}

	o.store(ctx, source, attr, Entry{
		Known:     true,
		Evaluated: true,
		Failed:    eval.Failed,
		Message:   eval.Message,
	})
	return eval, nil
}

func (o *CachingOracle) lookup(ctx context.Context, source, attr string) (Entry, bool) {
	entry, ok, err := o.cache.Get(ctx, source, attr)
	if err != nil {
		o.logger.WarnContext(ctx, "alias cache read failed",
			slog.String("attr", attr),
			slog.String("error", err.Error()),
		)
		return Entry{}, false
	}
	return entry, ok
}

func (o *CachingOracle) store(ctx context.Context, source, attr string, entry Entry) {
	if err := o.cache.Put(ctx, source, attr, entry); err != nil {
		o.logger.WarnContext(ctx, "alias cache write failed",
			slog.String("attr", attr),
			slog.String("error", err.Error()),
		)
	}
}
