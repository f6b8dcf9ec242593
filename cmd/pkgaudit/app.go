// ABOUTME: Shared runtime for pkgaudit commands
// ABOUTME: Loads config once and wires logging, tracing, metrics, HTTP and the cache store

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/aliascache"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/cache"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/fetch"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/hostversion"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/installed"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/nixeval"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/pkgdb"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/refresh"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/report"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/resilience"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/version"
)

// appOptions are the global flag values.
type appOptions struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	MetricsFile string
	Out         io.Writer
	Err         io.Writer
}

func optionsFromFlags(cmd *cobra.Command) appOptions {
	return appOptions{
		ConfigPath:  cfgFile,
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		MetricsFile: metricsFile,
		Out:         cmd.OutOrStdout(),
		Err:         cmd.ErrOrStderr(),
	}
}

// app holds everything a command run shares.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	audit   *observability.AuditLogger
	metrics *observability.Metrics
	tracer  *observability.TracerProvider
	client  *fetch.Client
	store   *cache.Store
	host    hostversion.Provider
	out     io.Writer

	// newOracle builds the nix-backed alias oracle.
	newOracle func(nixeval.Config) aliascache.SourceOracle

	// dial opens report connections.
	dial report.Dialer

	metricsFile string
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, classify("load config", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.MetricsFile != "" {
		cfg.Metrics.TextfilePath = opts.MetricsFile
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	// Set up logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: config.AppName,
		Version:     buildVersion,
	}, opts.Err)
	slog.SetDefault(logger)

	tracer, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		Enabled:       cfg.Tracing.Enabled,
		ServiceName:   config.AppName,
		Version:       buildVersion,
		Endpoint:      cfg.Tracing.Endpoint,
		Insecure:      cfg.Tracing.Insecure,
		SamplingRatio: cfg.Tracing.SamplingRatio,
	})
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
		tracer = nil
	} else if tracer.Enabled() {
		logger.Debug("exporting traces", slog.String("endpoint", cfg.Tracing.Endpoint))
	}

	metrics := observability.NewMetrics()
	auditLogger := observability.NewAuditLogger(logger)

	breakers := resilience.NewHostBreakers(resilience.Config{
		MaxFailures: cfg.HTTP.BreakerThreshold,
	})
	client := fetch.NewClient(fetch.ClientConfig{
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
		MaxSize:   cfg.HTTP.MaxSize,
	}, fetch.WithBreakers(breakers))

	store := cache.NewStore(cfg.CacheDir,
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
		cache.WithAuditLogger(auditLogger),
	)

	a := &app{
		cfg:         cfg,
		logger:      logger,
		audit:       auditLogger,
		metrics:     metrics,
		tracer:      tracer,
		client:      client,
		store:       store,
		host:        hostversion.NewCommand("", nil),
		out:         opts.Out,
		dial:        report.DialNATS,
		metricsFile: cfg.Metrics.TextfilePath,
	}
	a.newOracle = func(c nixeval.Config) aliascache.SourceOracle {
		return nixeval.NewOracle(c, nixeval.WithLogger(logger))
	}
	return a, nil
}

// Close flushes metrics and spans and stops background work.
func (a *app) Close() {
	a.client.Close()

	if a.metricsFile != "" {
		if err := a.metrics.WriteTextfile(a.metricsFile); err != nil {
			a.logger.Warn("failed to write metrics", slog.Any("error", err))
		}
	}

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces", slog.Any("error", err))
		}
	}
}

// channelHint returns the configured channel or the host release. An
// unknown release leaves the hint empty so only the fallback channel is
// asked.
func (a *app) channelHint(ctx context.Context) string {
	if a.cfg.Channel != "" {
		return a.cfg.Channel
	}
	release, err := a.host.Release(ctx)
	if err != nil {
		a.logger.Warn("host release unknown, using fallback channel", slog.Any("error", err))
		return ""
	}
	return release
}

// hostInfo returns the host version, or an empty Info when unavailable.
func (a *app) hostInfo(ctx context.Context) *hostversion.Info {
	info, err := a.host.Info(ctx)
	if err != nil {
		a.logger.Debug("host info unavailable", slog.Any("error", err))
		return &hostversion.Info{}
	}
	return info
}

// kindNames returns every configured artifact kind, sorted.
func (a *app) kindNames() []string {
	names := make([]string, 0, 3)
	for name := range a.cfg.Sources.ByKind() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *app) artifactKind(name string) (cache.ArtifactKind, error) {
	src, ok := a.cfg.Sources.ByKind()[name]
	if !ok {
		return cache.ArtifactKind{}, fmt.Errorf("%w: %s", refresh.ErrUnknownKind, name)
	}
	return cache.KindFromSource(name, src), nil
}

// updater wires the resolver and fetcher of one artifact kind.
func (a *app) updater(name, hint string) (*refresh.KindUpdater, error) {
	src, ok := a.cfg.Sources.ByKind()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", refresh.ErrUnknownKind, name)
	}

	source, err := version.ParseTokenSource(src.TokenSource)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	decompressor, err := fetch.DecompressorFor(src.Compression, a.cfg.HTTP.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	resolver := version.NewResolver(a.client, version.Config{
		PrimaryURL:      src.VersionURL,
		FallbackURL:     src.FallbackVersionURL,
		ChannelHint:     hint,
		FallbackChannel: src.FallbackChannel,
		Source:          source,
	}, a.logger.With(slog.String("kind", name)))
	validator, err := fetch.ValidatorFor(src.ArtifactFormat())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	fetcher := fetch.NewFetcher(a.client, decompressor, a.logger, fetch.WithValidator(validator))

	return refresh.NewKindUpdater(a.store, cache.KindFromSource(name, src), resolver, fetcher), nil
}

// refreshKind brings one artifact up to date and returns it.
func (a *app) refreshKind(ctx context.Context, name string) (*refresh.Result, error) {
	u, err := a.updater(name, a.channelHint(ctx))
	if err != nil {
		return nil, err
	}
	return u.Refresh(ctx)
}

// openPackages refreshes and opens the packages snapshot.
func (a *app) openPackages(ctx context.Context) (*pkgdb.DB, *refresh.Result, error) {
	res, err := a.refreshKind(ctx, config.KindPackages)
	if err != nil {
		return nil, nil, err
	}
	db, err := pkgdb.Open(ctx, res.Path, pkgdb.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	return db, res, nil
}

// installedPackages unions the declarative documents and the profile
// manifest. Manifest entries win, since they carry store path names.
func (a *app) installedPackages(documents []string, manifest string) ([]installed.InstalledPackage, error) {
	declared := installed.NewExtractor(a.logger).ExtractFiles(documents, a.cfg.FieldPath)

	byIdentity := make(map[string]installed.InstalledPackage, len(declared))
	for _, p := range declared.Packages() {
		byIdentity[p.Identity] = p
	}

	if manifest != "" {
		profile, err := installed.NewManifestReader(a.logger).Read(manifest)
		if err != nil {
			return nil, err
		}
		for _, p := range profile {
			byIdentity[p.Identity] = p
		}
	}

	ids := make([]string, 0, len(byIdentity))
	for id := range byIdentity {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pkgs := make([]installed.InstalledPackage, 0, len(ids))
	for _, id := range ids {
		pkgs = append(pkgs, byIdentity[id])
	}
	return pkgs, nil
}

// fail classifies err, logs it and returns it for cobra.
func (a *app) fail(operation string, err error) error {
	err = classify(operation, err)
	var ectx *observability.ErrorContext
	if errors.As(err, &ectx) {
		a.logger.Error("command failed", slog.Any("error", ectx))
	}
	return err
}
