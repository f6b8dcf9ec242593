// ABOUTME: Cache commands for refreshing, inspecting and watching snapshot artifacts
// ABOUTME: Provides refresh, status, watch, and clear-aliases operations

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/aliascache"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/cache"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/refresh"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Snapshot cache commands",
		Long:  `Commands for refreshing and inspecting the cached package and option snapshots.`,
	}

	cmd.AddCommand(newCacheRefreshCmd())
	cmd.AddCommand(newCacheStatusCmd())
	cmd.AddCommand(newCacheWatchCmd())
	cmd.AddCommand(newCacheClearAliasesCmd())

	return cmd
}

func newCacheRefreshCmd() *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh cached artifacts if a newer version is published",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), optionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()
			return runCacheRefresh(cmd.Context(), a, kinds)
		},
	}

	cmd.Flags().StringArrayVarP(&kinds, "kind", "k", nil, "artifact kind to refresh (repeatable; default from config)")

	return cmd
}

func newCacheStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached artifacts and revision drift",
		Long: `Status lists every cached artifact with its version stamp without
touching the network, and reports when the options snapshot or the
running system does not carry the revision of the package snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), optionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()
			return runCacheStatus(cmd.Context(), a)
		},
	}
}

func newCacheWatchCmd() *cobra.Command {
	var (
		kinds          []string
		interval       time.Duration
		statusInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep cached artifacts up to date until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), optionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("interval") {
				a.cfg.Refresh.Interval = interval
			}

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCacheWatch(ctx, a, kinds, statusInterval)
		},
	}

	cmd.Flags().StringArrayVarP(&kinds, "kind", "k", nil, "artifact kind to watch (repeatable; default from config)")
	cmd.Flags().DurationVar(&interval, "interval", config.DefaultRefreshConfig().Interval, "refresh interval (default from config)")
	cmd.Flags().DurationVar(&statusInterval, "status-interval", 10*time.Minute, "how often to log refresh status")

	return cmd
}

func newCacheClearAliasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-aliases",
		Short: "Drop every cached alias oracle answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), optionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			answers, err := aliascache.Open(aliascache.StoreConfig{
				Path: filepath.Join(a.cfg.CacheDir, aliasCacheDir),
			}, a.cfg.Oracle.CacheTTL)
			if err != nil {
				return a.fail("open alias cache", err)
			}
			defer answers.Close()

			if err := answers.Clear(contextOrBackground(cmd.Context())); err != nil {
				return a.fail("clear alias cache", err)
			}
			fmt.Fprintln(a.out, "Alias cache cleared")
			return nil
		},
	}
}

// refreshService registers an updater per kind.
func (a *app) refreshService(ctx context.Context, kinds []string, initial bool) (*refresh.Service, error) {
	if len(kinds) == 0 {
		kinds = a.cfg.Refresh.Kinds
	}
	if len(kinds) == 0 {
		kinds = a.kindNames()
	}

	svc := refresh.NewService(refresh.ServiceConfig{
		Logger:            a.logger,
		Retry:             a.cfg.Refresh.GetRetry(),
		RunInitialRefresh: initial,
	})

	hint := a.channelHint(ctx)
	for _, name := range kinds {
		u, err := a.updater(name, hint)
		if err != nil {
			return nil, err
		}
		svc.Register(u, a.cfg.Refresh.Interval)
	}
	return svc, nil
}

func runCacheRefresh(ctx context.Context, a *app, kinds []string) error {
	ctx = contextOrBackground(ctx)

	svc, err := a.refreshService(ctx, kinds, false)
	if err != nil {
		return a.fail("refresh cache", err)
	}

	results, err := svc.RefreshOnce(ctx)
	for _, res := range results {
		fmt.Fprintf(a.out, "%-16s %-10s %s\n", res.Kind, res.Status, res.Version)
	}
	if err != nil {
		return a.fail("refresh cache", err)
	}
	return nil
}

func runCacheStatus(ctx context.Context, a *app) error {
	ctx = contextOrBackground(ctx)

	fmt.Fprintf(a.out, "Cache directory: %s\n\n", a.store.Dir())
	for _, name := range a.kindNames() {
		kind, err := a.artifactKind(name)
		if err != nil {
			return a.fail("cache status", err)
		}

		info := a.store.Inspect(kind)
		if !info.Exists {
			fmt.Fprintf(a.out, "%-16s not cached\n", name)
			continue
		}
		stamp := info.Stamp
		if stamp == "" {
			stamp = "(no stamp)"
		}
		fmt.Fprintf(a.out, "%-16s %-32s %10d bytes  %s\n",
			name, stamp, info.Size, info.ModTime.UTC().Format(time.RFC3339))
	}

	packages, err := a.artifactKind(config.KindPackages)
	if err != nil {
		return a.fail("cache status", err)
	}
	options, err := a.artifactKind(config.KindOptions)
	if err != nil {
		return a.fail("cache status", err)
	}

	fmt.Fprintln(a.out)
	if drift, err := a.store.CompareStamps(packages, options); err != nil {
		a.logger.Debug("options drift unknown", slog.Any("error", err))
	} else if drift != nil {
		fmt.Fprintf(a.out, "Options snapshot drifted from packages: %s\n", drift)
	} else {
		fmt.Fprintln(a.out, "Options snapshot matches packages")
	}

	if stamp, err := a.store.ReadStamp(packages); err == nil && stamp != "" {
		system := a.hostInfo(ctx).NixOSVersion
		switch drift := cache.CompareVersions(system, stamp); {
		case system == "":
			fmt.Fprintln(a.out, "System version unknown")
		case drift != nil:
			fmt.Fprintf(a.out, "System is behind the package snapshot: %s\n", drift)
		default:
			fmt.Fprintln(a.out, "System is up to date")
		}
	}

	return nil
}

func runCacheWatch(ctx context.Context, a *app, kinds []string, statusInterval time.Duration) error {
	svc, err := a.refreshService(ctx, kinds, true)
	if err != nil {
		return a.fail("watch cache", err)
	}
	if err := svc.Start(ctx); err != nil {
		return a.fail("watch cache", err)
	}
	defer svc.Stop()

	a.logger.Info("watching cached artifacts",
		slog.Duration("interval", a.cfg.Refresh.Interval),
	)

	if statusInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("stopping cache watch")
			return nil
		case <-ticker.C:
			logRefreshStatus(a.logger, svc.Status())
		}
	}
}

func logRefreshStatus(logger *slog.Logger, statuses []refresh.KindStatus) {
	for _, st := range statuses {
		attrs := []any{
			slog.String("kind", st.Kind),
			slog.String("state", string(st.State)),
			slog.String("version", st.Version),
			slog.Bool("ready", st.Ready),
			slog.Duration("since_last_refresh", st.TimeSinceLastRefresh()),
			slog.Time("next_scheduled", st.NextScheduled),
		}
		if st.LastError != "" {
			attrs = append(attrs, slog.String("last_error", st.LastError))
		}
		logger.Info("refresh status", attrs...)
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
