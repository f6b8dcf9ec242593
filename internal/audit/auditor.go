// ABOUTME: Availability auditor reconciling installed packages with a snapshot
// ABOUTME: Alias checks run concurrently; snapshot verdicts are merged last

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/installed"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/pkgdb"
)

// DefaultConcurrency bounds concurrent alias oracle queries.
const DefaultConcurrency = 4

// Lookuper queries the package snapshot.
type Lookuper interface {
	Lookup(ctx context.Context, attr string) (*pkgdb.PackageRecord, error)
}

// Auditor produces problem reports.
type Auditor struct {
	db          Lookuper
	oracle      AliasOracle
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithConcurrency bounds concurrent oracle queries. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records verdicts and oracle outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Auditor) {
		a.metrics = m
	}
}

// NewAuditor creates an Auditor. A nil oracle disables alias checks.
func NewAuditor(db Lookuper, oracle AliasOracle, opts ...Option) *Auditor {
	a := &Auditor{
		db:          db,
		oracle:      oracle,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit returns verdicts for every installed identity with a problem.
// A non-unique snapshot attribute aborts the audit.
func (a *Auditor) Audit(ctx context.Context, pkgs []installed.InstalledPackage) (report Report, err error) {
	ctx, span := observability.StartSpan(ctx, "audit.Audit")
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	defer func() { a.metrics.ObserveAuditSeconds(time.Since(start).Seconds()) }()

	identities := uniqueIdentities(pkgs)
	span.SetAttributes(attribute.Int("audit.identities", len(identities)))

	aliasVerdicts, err := a.checkAliases(ctx, identities)
	if err != nil {
		return nil, err
	}

	report = make(Report)
	for i, id := range identities {
		if v := aliasVerdicts[i]; v != nil {
			report[id] = *v
		}
	}

	// Snapshot verdicts replace alias verdicts for the same identity, so a
	// failing alias that is also absent from the snapshot reports as
	// not found.
	for _, id := range identities {
		v, ok, err := a.checkSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			report[id] = v
		}
	}

	for _, v := range report {
		a.metrics.ObserveVerdict(v.Kind.String())
	}
	span.SetAttributes(attribute.Int("audit.problems", len(report)))

	return report, nil
}

// checkAliases queries the oracle for each identity. The result is
// indexed like identities; nil means no alias verdict.
func (a *Auditor) checkAliases(ctx context.Context, identities []string) ([]*Verdict, error) {
	verdicts := make([]*Verdict, len(identities))
	if a.oracle == nil {
		return verdicts, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, id := range identities {
		g.Go(func() error {
			v, err := a.checkAlias(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.metrics.ObserveOracle("error")
				a.logger.WarnContext(gctx, "alias oracle failed, skipping alias check",
					slog.String("identity", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			verdicts[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("alias checks: %w", err)
	}
	return verdicts, nil
}

func (a *Auditor) checkAlias(ctx context.Context, id string) (*Verdict, error) {
	known, err := a.oracle.IsKnownAlias(ctx, id)
	if err != nil {
		return nil, err
	}
	if !known {
		a.metrics.ObserveOracle("not_alias")
		return nil, nil
	}

	eval, err := a.oracle.Evaluate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !eval.Failed {
		a.metrics.ObserveOracle("alias_ok")
		return nil, nil
	}

	a.metrics.ObserveOracle("alias_failed")
	return &Verdict{Kind: AliasEvaluationError, Message: CleanOracleMessage(eval.Message)}, nil
}

// checkSnapshot returns the snapshot verdict for id, if any.
func (a *Auditor) checkSnapshot(ctx context.Context, id string) (Verdict, bool, error) {
	rec, err := a.db.Lookup(ctx, id)
	switch {
	case errors.Is(err, pkgdb.ErrNotFound):
		return Verdict{Kind: NotFoundInLatestSnapshot}, true, nil
	case errors.Is(err, pkgdb.ErrSchemaInvariant):
		return Verdict{}, false, fmt.Errorf("auditing %q: %w", id, err)
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, false, ctxErr
		}
		a.logger.WarnContext(ctx, "snapshot lookup failed, skipping",
			slog.String("identity", id),
			slog.String("error", err.Error()),
		)
		return Verdict{}, false, nil
	case rec.Broken:
		return Verdict{Kind: MarkedBroken}, true, nil
	case rec.Insecure:
		return Verdict{Kind: MarkedInsecure}, true, nil
	default:
		return Verdict{}, false, nil
	}
}

func uniqueIdentities(pkgs []installed.InstalledPackage) []string {
	seen := make(map[string]struct{}, len(pkgs))
	ids := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		if p.Identity == "" {
			continue
		}
		if _, ok := seen[p.Identity]; ok {
			continue
		}
		seen[p.Identity] = struct{}{}
		ids = append(ids, p.Identity)
	}
	return ids
}
