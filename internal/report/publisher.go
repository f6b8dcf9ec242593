// ABOUTME: NATS publisher for audit reports
// ABOUTME: Handles connection, publish with flush, and graceful close

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
)

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("not connected to NATS")

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	// NATS server URL.
	URL string

	// Subject reports are published to.
	Subject string

	// Connection name for identification.
	Name string

	// Reconnect settings.
	MaxReconnects int
	ReconnectWait time.Duration

	// Timeout bounds connect and flush.
	Timeout time.Duration
}

// DefaultNATSConfig returns a configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Subject:       "pkgaudit.reports",
		Name:          "pkgaudit",
		MaxReconnects: 3,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Dialer opens a connection.
type Dialer func(url string, opts ...nats.Option) (Conn, error)

// DialNATS connects with nats.Connect.
func DialNATS(url string, opts ...nats.Option) (Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return nc, nil
}

// Publisher sends report documents to a NATS subject.
type Publisher struct {
	config NATSConfig
	dial   Dialer
	conn   Conn
	logger *slog.Logger
	audit  *observability.AuditLogger
}

// NewPublisher creates a Publisher. A nil dialer uses DialNATS.
func NewPublisher(cfg NATSConfig, dial Dialer, logger *slog.Logger) *Publisher {
	if dial == nil {
		dial = DialNATS
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultNATSConfig().Timeout
	}
	return &Publisher{
		config: cfg,
		dial:   dial,
		logger: logger,
		audit:  observability.NewAuditLogger(logger),
	}
}

// Connect establishes the NATS connection.
func (p *Publisher) Connect(_ context.Context) error {
	opts := []nats.Option{
		nats.Name(p.config.Name),
		nats.Timeout(p.config.Timeout),
		nats.MaxReconnects(p.config.MaxReconnects),
		nats.ReconnectWait(p.config.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn("NATS disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := p.dial(p.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p.conn = conn
	p.logger.Debug("connected to NATS", slog.String("url", observability.RedactURL(p.config.URL)))
	return nil
}

// Publish sends doc and waits for the server to acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, doc Document) (err error) {
	ctx, span := observability.StartSpan(ctx, "report.Publish", attribute.String("report.subject", p.config.Subject))
	defer func() {
		observability.EndSpan(span, err)
		p.audit.LogReportPublished(ctx, p.config.Subject, err == nil)
	}()

	if p.conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := p.conn.Publish(p.config.Subject, data); err != nil {
		return fmt.Errorf("publishing report: %w", err)
	}
	if err := p.conn.FlushTimeout(p.config.Timeout); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
