// ABOUTME: Audit command checking installed packages against the latest snapshot
// ABOUTME: Runs refresh, extraction, alias oracle and report publishing in one pipeline

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/aliascache"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/audit"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/nixeval"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/report"
)

// aliasCacheDir is the badger directory under the cache dir.
const aliasCacheDir = "aliascache"

type auditOptions struct {
	ConfigFiles     []string
	ProfileManifest string
	JSON            bool
	FailOnProblems  bool
	NoAliasCache    bool
}

func newAuditCmd() *cobra.Command {
	var opts auditOptions

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit installed packages against the latest nixpkgs snapshot",
		Long: `Audit reads the packages declared in the given configuration files and
installed in the nix profile, refreshes the package snapshot if a newer
version is published, and reports every package that is gone, broken or
insecure in it. Renamed packages are explained with the message of their
nixpkgs alias.

Exit status is 0 when the audit completed, 1 on failure, and 2 when
--fail-on-problems is set and problems were found.`,
		Example: `  pkgaudit audit --config-file /etc/nixos/configuration.nix
  pkgaudit audit --config-file hosts.json --json --fail-on-problems`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), optionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("profile-manifest") {
				opts.ProfileManifest = a.cfg.ProfileManifest
			}
			return runAudit(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.ConfigFiles, "config-file", nil, "declarative configuration file to read packages from (repeatable)")
	cmd.Flags().StringVar(&opts.ProfileManifest, "profile-manifest", "", "nix profile manifest (default from config, empty to skip)")
	cmd.Flags().BoolVarP(&opts.JSON, "json", "j", false, "output the report as JSON")
	cmd.Flags().BoolVar(&opts.FailOnProblems, "fail-on-problems", false, "exit with status 2 when problems are found")
	cmd.Flags().BoolVar(&opts.NoAliasCache, "no-alias-cache", false, "always ask nix instead of the alias answer cache")

	return cmd
}

func runAudit(ctx context.Context, a *app, opts auditOptions) error {
	ctx, runID := observability.EnsureRunID(contextOrBackground(ctx))
	start := time.Now()

	db, snapshot, err := a.openPackages(ctx)
	if err != nil {
		return a.fail("open package snapshot", err)
	}
	defer db.Close()

	pkgs, err := a.installedPackages(opts.ConfigFiles, opts.ProfileManifest)
	if err != nil {
		return a.fail("read installed packages", err)
	}
	a.logger.Info("auditing installed packages",
		slog.Int("installed", len(pkgs)),
		slog.String("snapshot", snapshot.Version),
		slog.String("run_id", runID.String()),
	)

	oracle, closeOracle := a.aliasOracle(ctx, opts.NoAliasCache)
	defer closeOracle()

	auditor := audit.NewAuditor(db, oracle,
		audit.WithConcurrency(a.cfg.Oracle.Concurrency),
		audit.WithLogger(a.logger),
		audit.WithMetrics(a.metrics),
	)
	verdicts, err := auditor.Audit(ctx, pkgs)
	if err != nil {
		return a.fail("audit", err)
	}

	host, _ := os.Hostname()
	doc := report.Build(verdicts, pkgs, report.Meta{
		RunID:           runID.String(),
		Host:            host,
		SnapshotVersion: snapshot.Version,
	})

	if opts.JSON {
		err = report.WriteJSON(a.out, doc)
	} else {
		err = report.WriteText(a.out, doc)
	}
	if err != nil {
		return a.fail("write report", err)
	}

	a.audit.LogAuditRun(ctx, doc.Installed, len(doc.Problems), snapshot.Version)
	a.logger.Debug("audit finished", slog.Duration("duration", time.Since(start)))

	if a.cfg.Report.NATSURL != "" {
		a.publish(ctx, doc)
	}

	if opts.FailOnProblems && doc.HasProblems() {
		return errProblemsFound
	}
	return nil
}

// aliasOracle returns the nix-backed oracle, behind the badger answer
// cache unless it is disabled or cannot be opened.
func (a *app) aliasOracle(ctx context.Context, noCache bool) (audit.AliasOracle, func()) {
	info := a.hostInfo(ctx)
	inner := a.newOracle(nixeval.Config{
		NixBinary:         a.cfg.Oracle.NixBinary,
		InstantiateBinary: a.cfg.Oracle.InstantiateBinary,
		Revision:          info.NixpkgsRevision,
		Timeout:           a.cfg.Oracle.Timeout,
	})

	if noCache || a.cfg.Oracle.CacheTTL <= 0 {
		return inner, func() {}
	}

	answers, err := aliascache.Open(aliascache.StoreConfig{
		Path: filepath.Join(a.cfg.CacheDir, aliasCacheDir),
	}, a.cfg.Oracle.CacheTTL)
	if err != nil {
		a.logger.Warn("alias cache unavailable", slog.Any("error", err))
		return inner, func() {}
	}

	return aliascache.NewCachingOracle(inner, answers, a.logger), func() {
		if err := answers.Close(); err != nil {
			a.logger.Warn("failed to close alias cache", slog.Any("error", err))
		}
	}
}

// publish sends doc to NATS. Failures are logged; the report was already
// written.
func (a *app) publish(ctx context.Context, doc report.Document) {
	cfg := report.DefaultNATSConfig()
	cfg.URL = a.cfg.Report.NATSURL
	if a.cfg.Report.Subject != "" {
		cfg.Subject = a.cfg.Report.Subject
	}

	publisher := report.NewPublisher(cfg, a.dial, a.logger)
	if err := publisher.Connect(ctx); err != nil {
		a.logger.Warn("report not published", slog.Any("error", err))
		return
	}
	defer publisher.Close()

	if err := publisher.Publish(ctx, doc); err != nil {
		a.logger.Warn("report not published", slog.Any("error", err))
	}
}
