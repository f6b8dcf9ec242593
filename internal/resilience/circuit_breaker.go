// ABOUTME: Per-host circuit breakers for upstream HTTP endpoints
// ABOUTME: Trips after consecutive failures and recovers with exponential backoff

package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// Default circuit breaker configuration values.
const (
	DefaultMaxFailures     = 5
	DefaultInitialInterval = 30 * time.Second
	DefaultMaxInterval     = 5 * time.Minute
)

// State describes a breaker as seen by status reporting.
type State int

const (
	// StateClosed allows requests through normally.
	StateClosed State = iota

	// StateOpen rejects all requests immediately.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker for a host is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures every breaker created by a HostBreakers.
type Config struct {
	// MaxFailures is the consecutive failure count that opens a breaker.
	// Zero uses DefaultMaxFailures.
	MaxFailures int64

	// InitialInterval is the first wait before a tripped breaker lets a
	// trial request through. Zero uses DefaultInitialInterval.
	InitialInterval time.Duration

	// MaxInterval caps the backoff between trial requests. Zero uses DefaultMaxInterval.
	MaxInterval time.Duration
}

// HostBreakers keeps one circuit breaker per upstream host.
type HostBreakers struct {
	config   Config
	mu       sync.RWMutex
	breakers map[string]*circuit.Breaker
}

// NewHostBreakers creates an empty breaker registry.
func NewHostBreakers(config Config) *HostBreakers {
	if config.MaxFailures <= 0 {
		config.MaxFailures = DefaultMaxFailures
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = DefaultInitialInterval
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = DefaultMaxInterval
	}

	return &HostBreakers{
		config:   config,
		breakers: make(map[string]*circuit.Breaker),
	}
}

// breaker returns or creates the breaker for host.
func (h *HostBreakers) breaker(host string) *circuit.Breaker {
	h.mu.RLock()
	b, ok := h.breakers[host]
	h.mu.RUnlock()
	if ok {
		return b
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.breakers[host]; ok {
		return b
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = h.config.InitialInterval
	expBackoff.MaxInterval = h.config.MaxInterval
	expBackoff.Multiplier = 2.0
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(h.config.MaxFailures),
	})
	h.breakers[host] = b
	return b
}

// Execute runs fn through the breaker of rawURL's host. A non-nil error from
// fn counts as a failure; callers return nil for answers that should not
// trip the breaker, such as a 404.
func (h *HostBreakers) Execute(ctx context.Context, rawURL string, fn func(ctx context.Context) error) error {
	host := HostOf(rawURL)
	b := h.breaker(host)

	if !b.Ready() {
		return fmt.Errorf("%s: %w", host, ErrCircuitOpen)
	}

	return b.Call(func() error {
		return fn(ctx)
	}, 0)
}

// States returns the state of every known breaker keyed by host.
func (h *HostBreakers) States() map[string]State {
	h.mu.RLock()
	defer h.mu.RUnlock()

	states := make(map[string]State, len(h.breakers))
	for host, b := range h.breakers {
		if b.Tripped() {
			states[host] = StateOpen
		} else {
			states[host] = StateClosed
		}
	}
	return states
}

// Reset closes every breaker.
func (h *HostBreakers) Reset() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, b := range h.breakers {
		b.Reset()
	}
}

// HostOf extracts the breaker key from a URL.
func HostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
