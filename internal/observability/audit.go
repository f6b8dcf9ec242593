// ABOUTME: Audit logging for cache refreshes and package availability runs
// ABOUTME: Emits structured audit_event records correlated by run ID

package observability

import (
	"context"
	"log/slog"
	"time"
)

// Audit event type constants.
const (
	EventTypeRefresh = "REFRESH"
	EventTypeAudit   = "AUDIT"
	EventTypePublish = "PUBLISH"
)

// Audit action constants.
const (
	ActionRead   = "READ"
	ActionUpdate = "UPDATE"
	ActionCreate = "CREATE"
)

// Audit result constants.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultOffline = "offline"
)

// AuditLogger provides structured audit logging for cache and audit events.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: OrDefault(logger),
	}
}

// LogCacheRefresh logs the outcome of one artifact staleness check.
// status is one of hit, refreshed or offline.
func (a *AuditLogger) LogCacheRefresh(ctx context.Context, kind, status, version string, err error) {
	result := ResultSuccess
	level := slog.LevelInfo
	switch {
	case err != nil:
		result = ResultFailure
		level = slog.LevelWarn
	case status == "offline":
		result = ResultOffline
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_type", EventTypeRefresh),
		slog.String("action", ActionUpdate),
		slog.String("actor", "system"),
		slog.String("resource", kind),
		slog.String("status", status),
		slog.String("artifact_version", version),
		slog.String("result", result),
		slog.String("run_id", RunIDFromContext(ctx).String()),
		slog.Time("timestamp", time.Now().UTC()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	a.logger.LogAttrs(ctx, level, "audit_event", attrs...)
}

// LogAuditRun logs a completed availability audit.
func (a *AuditLogger) LogAuditRun(ctx context.Context, installed, problems int, snapshot string) {
	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypeAudit),
		slog.String("action", ActionRead),
		slog.String("resource", snapshot),
		slog.Int("installed", installed),
		slog.Int("problems", problems),
		slog.String("result", ResultSuccess),
		slog.String("run_id", RunIDFromContext(ctx).String()),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogReportPublished logs a report delivered to a message subject.
func (a *AuditLogger) LogReportPublished(ctx context.Context, subject string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypePublish),
		slog.String("action", ActionCreate),
		slog.String("resource", subject),
		slog.String("result", result),
		slog.String("run_id", RunIDFromContext(ctx).String()),
		slog.Time("timestamp", time.Now().UTC()),
	)
}
