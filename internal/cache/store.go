// ABOUTME: On-disk cache of versioned snapshot artifacts and their stamps
// ABOUTME: Staleness check, atomic artifact replace, and offline fallback

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/version"
)

var (
	// ErrNoConnectivityAndNoCache is returned when the version lookup failed
	// and no artifact is cached.
	ErrNoConnectivityAndNoCache = errors.New("version lookup failed and no cached artifact exists")

	// ErrEmptyArtifact guards against persisting a zero-length artifact.
	ErrEmptyArtifact = errors.New("refusing to write empty artifact")
)

// Status describes how GetOrRefresh produced its result.
type Status string

const (
	// StatusHit means the cached artifact matched the latest version.
	StatusHit Status = "hit"

	// StatusRefreshed means a new artifact was downloaded.
	StatusRefreshed Status = "refreshed"

	// StatusOffline means the lookup failed and the cached artifact was used.
	StatusOffline Status = "offline"
)

// Resolver returns the latest version of a source.
type Resolver interface {
	Resolve(ctx context.Context) (version.Resolution, error)
}

// Fetcher downloads and decodes an artifact.
type Fetcher interface {
	Fetch(ctx context.Context, primaryURL, fallbackURL string) ([]byte, error)
}

// Result is the outcome of GetOrRefresh.
type Result struct {
	// Path is the absolute artifact path.
	Path string

	// Version is the stamp now describing the artifact. It may be empty in
	// offline mode when the stamp is unreadable.
	Version string

	Status Status
}

// Store owns the cache directory. It alone writes stamps and artifacts.
type Store struct {
	dir     string
	logger  *slog.Logger
	metrics *observability.Metrics
	audit   *observability.AuditLogger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics records cache outcomes.
func WithMetrics(m *observability.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithAuditLogger emits audit events for every lookup.
func WithAuditLogger(a *observability.AuditLogger) StoreOption {
	return func(s *Store) {
		s.audit = a
	}
}

// NewStore creates a Store rooted at dir. The directory is created lazily.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = observability.OrDefault(s.logger)
	return s
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// ArtifactPath returns where kind's artifact lives.
func (s *Store) ArtifactPath(kind ArtifactKind) string {
	return filepath.Join(s.dir, kind.ArtifactName)
}

// StampPath returns where kind's stamp lives.
func (s *Store) StampPath(kind ArtifactKind) string {
	return filepath.Join(s.dir, kind.StampName)
}

// ReadStamp returns the trimmed stamp of kind.
func (s *Store) ReadStamp(kind ArtifactKind) (string, error) {
	data, err := os.ReadFile(s.StampPath(kind))
	if err != nil {
		return "", fmt.Errorf("reading stamp %s: %w", kind.StampName, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GetOrRefresh returns a fresh artifact of kind, downloading it when the
// cached stamp differs from the resolved version.
func (s *Store) GetOrRefresh(ctx context.Context, kind ArtifactKind, resolver Resolver, fetcher Fetcher) (result *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "cache.GetOrRefresh", attribute.String("cache.kind", kind.Name))
	defer func() {
		if result != nil {
			span.SetAttributes(attribute.String("cache.status", string(result.Status)))
			s.metrics.ObserveCache(kind.Name, string(result.Status))
		}
		if s.audit != nil {
			var status, ver string
			if result != nil {
				status, ver = string(result.Status), result.Version
			}
			s.audit.LogCacheRefresh(ctx, kind.Name, status, ver, err)
		}
		observability.EndSpan(span, err)
	}()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	artifactPath := s.ArtifactPath(kind)

	res, resolveErr := resolver.Resolve(ctx)
	if resolveErr != nil {
		if fileExists(artifactPath) {
			s.logger.WarnContext(ctx, "using cached artifact, version lookup failed",
				slog.String("kind", kind.Name),
				slog.String("path", artifactPath),
				slog.String("error", resolveErr.Error()),
			)
			stamp, _ := s.ReadStamp(kind)
			return &Result{Path: artifactPath, Version: stamp, Status: StatusOffline}, nil
		}
		return nil, fmt.Errorf("%s: %w: %w", kind.Name, ErrNoConnectivityAndNoCache, resolveErr)
	}

	if stamp, err := s.ReadStamp(kind); err == nil && stamp == res.Token && fileExists(artifactPath) {
		s.logger.DebugContext(ctx, "cached artifact is current",
			slog.String("kind", kind.Name),
			slog.String("version", stamp),
		)
		return &Result{Path: artifactPath, Version: stamp, Status: StatusHit}, nil
	}

	primaryURL, fallbackURL := kind.URLs(res)
	s.logger.InfoContext(ctx, "downloading artifact",
		slog.String("kind", kind.Name),
		slog.String("version", res.Token),
		slog.String("url", observability.RedactURL(primaryURL)),
	)

	start := time.Now()
	data, err := fetcher.Fetch(ctx, primaryURL, fallbackURL)
	s.metrics.ObserveFetch(kind.Name, len(data), err)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", kind.Name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", kind.Name, ErrEmptyArtifact)
	}

	if err := writeFileAtomic(s.dir, kind.ArtifactName, data); err != nil {
		return nil, fmt.Errorf("saving %s artifact: %w", kind.Name, err)
	}
	if err := writeFileAtomic(s.dir, kind.StampName, []byte(res.Token)); err != nil {
		return nil, fmt.Errorf("saving %s stamp: %w", kind.Name, err)
	}

	s.logger.InfoContext(ctx, "artifact refreshed",
		slog.String("kind", kind.Name),
		slog.String("version", res.Token),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)

	return &Result{Path: artifactPath, Version: res.Token, Status: StatusRefreshed}, nil
}

// ArtifactInfo describes what is cached for one kind.
type ArtifactInfo struct {
	Kind    string
	Path    string
	Stamp   string
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Inspect reports the cached state of kind without touching the network.
func (s *Store) Inspect(kind ArtifactKind) ArtifactInfo {
	info := ArtifactInfo{
		Kind: kind.Name,
		Path: s.ArtifactPath(kind),
	}
	info.Stamp, _ = s.ReadStamp(kind)

	if st, err := os.Stat(info.Path); err == nil && st.Mode().IsRegular() {
		info.Exists = true
		info.Size = st.Size()
		info.ModTime = st.ModTime()
	}
	return info
}

// writeFileAtomic writes data to dir/name through a synced temp file and a
// rename, so readers see either the old or the new content.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return st.Mode().IsRegular()
}
