// ABOUTME: Updater contract and the cache-backed updater for one artifact kind
// ABOUTME: Each refresh resolves the latest version and downloads on change

package refresh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/cache"
)

// Updater refreshes one artifact kind.
type Updater interface {
	// Name returns the artifact kind name.
	Name() string

	// Refresh brings the artifact up to date.
	Refresh(ctx context.Context) (*Result, error)

	// Current describes the cached artifact without network access.
	Current() cache.ArtifactInfo
}

// Result is the outcome of one refresh.
type Result struct {
	Kind     string
	Path     string
	Version  string
	Status   cache.Status
	Duration time.Duration
}

// String returns a human-readable summary.
func (r *Result) String() string {
	parts := []string{
		"kind=" + r.Kind,
		"status=" + string(r.Status),
	}
	if r.Version != "" {
		parts = append(parts, "version="+r.Version)
	}
	parts = append(parts, fmt.Sprintf("duration=%v", r.Duration))
	return strings.Join(parts, " ")
}

// KindUpdater refreshes an artifact kind through the cache store.
type KindUpdater struct {
	store    *cache.Store
	kind     cache.ArtifactKind
	resolver cache.Resolver
	fetcher  cache.Fetcher
}

// NewKindUpdater creates a KindUpdater.
func NewKindUpdater(store *cache.Store, kind cache.ArtifactKind, resolver cache.Resolver, fetcher cache.Fetcher) *KindUpdater {
	return &KindUpdater{
		store:    store,
		kind:     kind,
		resolver: resolver,
		fetcher:  fetcher,
	}
}

// Name implements Updater.
func (u *KindUpdater) Name() string {
	return u.kind.Name
}

// Refresh implements Updater.
func (u *KindUpdater) Refresh(ctx context.Context) (*Result, error) {
	start := time.Now()

	res, err := u.store.GetOrRefresh(ctx, u.kind, u.resolver, u.fetcher)
	if err != nil {
		return nil, err
	}

	return &Result{
		Kind:     u.kind.Name,
		Path:     res.Path,
		Version:  res.Version,
		Status:   res.Status,
		Duration: time.Since(start),
	}, nil
}

// Current implements Updater.
func (u *KindUpdater) Current() cache.ArtifactInfo {
	return u.store.Inspect(u.kind)
}
