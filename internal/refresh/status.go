// ABOUTME: Status tracking for watched artifact kinds
// ABOUTME: Thread-safe tracker read by the watch command's status log

package refresh

import (
	"sort"
	"sync"
	"time"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/cache"
)

// State is the refresh state of a kind.
type State string

const (
	// StatePending means the kind has not been refreshed yet.
	StatePending State = "pending"

	// StateIdle means the last refresh succeeded.
	StateIdle State = "idle"

	// StateRefreshing means a refresh is in progress.
	StateRefreshing State = "refreshing"

	// StateFailed means the last refresh exhausted its retries.
	StateFailed State = "failed"
)

// KindStatus is the status of one watched kind.
type KindStatus struct {
	Kind          string
	State         State
	LastRefresh   time.Time
	LastResult    cache.Status
	NextScheduled time.Time
	LastError     string
	Version       string
	Ready         bool
}

// TimeSinceLastRefresh returns the time since the last success, or 0.
func (s *KindStatus) TimeSinceLastRefresh() time.Duration {
	if s.LastRefresh.IsZero() {
		return 0
	}
	return time.Since(s.LastRefresh)
}

// StatusTracker holds the status of every watched kind.
type StatusTracker struct {
	mu       sync.RWMutex
	statuses map[string]*KindStatus
}

// NewStatusTracker creates an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		statuses: make(map[string]*KindStatus),
	}
}

// Register adds a kind seeded from what is already cached.
func (t *StatusTracker) Register(kind string, current cache.ArtifactInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statuses[kind] = &KindStatus{
		Kind:    kind,
		State:   StatePending,
		Version: current.Stamp,
		Ready:   current.Exists,
	}
}

// Get returns a copy of the status for kind, or nil.
func (t *StatusTracker) Get(kind string) *KindStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.statuses[kind]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// All returns copies of every status ordered by kind.
func (t *StatusTracker) All() []KindStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]KindStatus, 0, len(t.statuses))
	for _, s := range t.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (t *StatusTracker) update(kind string, fn func(*KindStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.statuses[kind]; ok {
		fn(s)
	}
}

// SetState sets the state of kind.
func (t *StatusTracker) SetState(kind string, state State) {
	t.update(kind, func(s *KindStatus) { s.State = state })
}

// SetNextScheduled sets when kind is next refreshed.
func (t *StatusTracker) SetNextScheduled(kind string, next time.Time) {
	t.update(kind, func(s *KindStatus) { s.NextScheduled = next })
}

// SetError records the last failure of kind.
func (t *StatusTracker) SetError(kind, msg string) {
	t.update(kind, func(s *KindStatus) { s.LastError = msg })
}

// RecordSuccess records a successful refresh.
func (t *StatusTracker) RecordSuccess(kind string, res *Result, at time.Time) {
	t.update(kind, func(s *KindStatus) {
		s.State = StateIdle
		s.LastRefresh = at
		s.LastResult = res.Status
		s.LastError = ""
		s.Ready = true
		if res.Version != "" {
			s.Version = res.Version
		}
	})
}
