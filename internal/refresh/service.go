// ABOUTME: Watch service refreshing every registered artifact kind on a schedule
// ABOUTME: One worker per kind with retry backoff, manual triggers, and status

package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
)

// ErrUnknownKind is returned for kinds that were never registered.
var ErrUnknownKind = errors.New("unknown artifact kind")

// ServiceConfig configures the Service.
type ServiceConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Retry configures retries of failed refreshes.
	Retry config.RetryConfig

	// RunInitialRefresh refreshes every kind immediately on Start.
	RunInitialRefresh bool
}

type updaterEntry struct {
	updater  Updater
	interval time.Duration
	trigger  chan struct{}
}

// Service runs periodic refreshes.
type Service struct {
	config   ServiceConfig
	status   *StatusTracker
	updaters map[string]*updaterEntry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		config:   cfg,
		status:   NewStatusTracker(),
		updaters: make(map[string]*updaterEntry),
	}
}

// Register adds an updater refreshed every interval.
func (s *Service) Register(u Updater, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := u.Name()
	s.updaters[name] = &updaterEntry{
		updater:  u,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
	s.status.Register(name, u.Current())
}

// Start launches one worker per registered kind.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("service already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	entries := make(map[string]*updaterEntry, len(s.updaters))
	for name, e := range s.updaters {
		entries[name] = e
	}
	s.mu.Unlock()

	for name, entry := range entries {
		s.wg.Add(1)
		go s.runWorker(ctx, name, entry)
	}

	s.config.Logger.Info("refresh service started", slog.Int("kinds", len(entries)))
	return nil
}

// Stop cancels the workers and waits for them.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.config.Logger.Info("refresh service stopped")
}

// IsRunning reports whether the service is running.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger requests an immediate refresh of kind.
func (s *Service) Trigger(kind string) error {
	s.mu.Lock()
	entry, ok := s.updaters[kind]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}

	select {
	case entry.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Status returns the status of every kind.
func (s *Service) Status() []KindStatus {
	return s.status.All()
}

// RefreshOnce refreshes every registered kind once without retries and
// returns the results in kind order. Failures are joined.
func (s *Service) RefreshOnce(ctx context.Context) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)
	for _, st := range s.status.All() {
		s.mu.Lock()
		entry := s.updaters[st.Kind]
		s.mu.Unlock()

		res, err := entry.updater.Refresh(ctx)
		if err != nil {
			s.status.SetState(st.Kind, StateFailed)
			s.status.SetError(st.Kind, err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", st.Kind, err))
			continue
		}
		s.status.RecordSuccess(st.Kind, res, time.Now())
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (s *Service) runWorker(ctx context.Context, name string, entry *updaterEntry) {
	defer s.wg.Done()

	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()

	logger := s.config.Logger.With(slog.String("kind", name))
	s.status.SetNextScheduled(name, time.Now().Add(entry.interval))

	if s.config.RunInitialRefresh {
		s.refresh(ctx, name, entry, logger)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("refresh worker stopped")
			return

		case <-ticker.C:
			s.refresh(ctx, name, entry, logger)
			s.status.SetNextScheduled(name, time.Now().Add(entry.interval))

		case <-entry.trigger:
			logger.Info("manual refresh triggered")
			s.refresh(ctx, name, entry, logger)
		}
	}
}

// refresh runs one refresh with retries.
func (s *Service) refresh(ctx context.Context, name string, entry *updaterEntry, logger *slog.Logger) {
	s.status.SetState(name, StateRefreshing)
	retrier := NewRetrier(s.config.Retry)

	for {
		res, err := entry.updater.Refresh(ctx)
		if err == nil {
			s.status.RecordSuccess(name, res, time.Now())
			logger.Info("refresh completed",
				slog.String("status", string(res.Status)),
				slog.String("version", res.Version),
				slog.Duration("duration", res.Duration),
			)
			return
		}

		s.status.SetError(name, err.Error())
		logger.Warn("refresh failed",
			slog.String("error", err.Error()),
			slog.Int("attempt", retrier.Attempts()+1),
		)

		delay, ok := retrier.NextDelay()
		if !ok {
			s.status.SetState(name, StateFailed)
			logger.Error("refresh failed after max retries",
				slog.Int("attempts", retrier.Attempts()+1),
			)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.status.SetState(name, StateFailed)
			return
		case <-timer.C:
			logger.Debug("retrying refresh", slog.Duration("delay", delay))
		}
	}
}
