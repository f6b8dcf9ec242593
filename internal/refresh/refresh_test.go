// ABOUTME: Tests for the watch service, retry schedule, and status tracker
// ABOUTME: Uses scripted updaters plus one real cache-backed updater

package refresh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/cache"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/version"
)

type scriptedUpdater struct {
	name     string
	failures int32
	calls    atomic.Int32
	refreshd chan struct{}
	once     sync.Once
}

func newScriptedUpdater(name string, failures int32) *scriptedUpdater {
	return &scriptedUpdater{name: name, failures: failures, refreshd: make(chan struct{})}
}

func (u *scriptedUpdater) Name() string { return u.name }

func (u *scriptedUpdater) Refresh(context.Context) (*Result, error) {
	n := u.calls.Add(1)
	if n <= u.failures {
		return nil, errors.New("upstream unavailable")
	}
	u.once.Do(func() { close(u.refreshd) })
	return &Result{Kind: u.name, Version: "v1", Status: cache.StatusRefreshed}, nil
}

func (u *scriptedUpdater) Current() cache.ArtifactInfo {
	return cache.ArtifactInfo{Kind: u.name}
}

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for refresh")
	}
}

func TestService_InitialRefreshWithRetry(t *testing.T) {
	t.Parallel()

	u := newScriptedUpdater("packages", 2)
	svc := NewService(ServiceConfig{Retry: fastRetry(), RunInitialRefresh: true})
	svc.Register(u, time.Hour)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, u.refreshd)
	svc.Stop()

	if got := u.calls.Load(); got != 3 {
		t.Errorf("Refresh calls = %d, want 3", got)
	}

	st := svc.Status()
	if len(st) != 1 || st[0].State != StateIdle || st[0].Version != "v1" || !st[0].Ready {
		t.Errorf("Status() = %+v", st)
	}
	if st[0].LastError != "" {
		t.Errorf("LastError = %q, want cleared", st[0].LastError)
	}
}

func TestService_RetriesExhausted(t *testing.T) {
	t.Parallel()

	u := newScriptedUpdater("options", 100)
	svc := NewService(ServiceConfig{Retry: fastRetry()})
	svc.Register(u, time.Hour)

	entry := svc.updaters["options"]
	svc.refresh(context.Background(), "options", entry, svc.config.Logger)

	if got := u.calls.Load(); got != 4 {
		t.Errorf("Refresh calls = %d, want 4 (1 + 3 retries)", got)
	}
	st := svc.status.Get("options")
	if st.State != StateFailed || st.LastError == "" {
		t.Errorf("status = %+v, want failed with error", st)
	}
}

func TestService_Trigger(t *testing.T) {
	t.Parallel()

	u := newScriptedUpdater("packages", 0)
	svc := NewService(ServiceConfig{Retry: fastRetry()})
	svc.Register(u, time.Hour)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.Stop()

	if err := svc.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	if err := svc.Trigger("packages"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	waitFor(t, u.refreshd)

	if err := svc.Trigger("nope"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Trigger(nope) error = %v, want ErrUnknownKind", err)
	}
	if !svc.IsRunning() {
		t.Error("IsRunning() = false while started")
	}
}

func TestService_RefreshOnce(t *testing.T) {
	t.Parallel()

	ok := newScriptedUpdater("options", 0)
	bad := newScriptedUpdater("packages", 100)
	svc := NewService(ServiceConfig{})
	svc.Register(ok, time.Hour)
	svc.Register(bad, time.Hour)

	results, err := svc.RefreshOnce(context.Background())
	if err == nil {
		t.Fatal("RefreshOnce() error = nil, want packages failure")
	}
	if len(results) != 1 || results[0].Kind != "options" {
		t.Errorf("results = %+v, want options only", results)
	}
	if got := bad.calls.Load(); got != 1 {
		t.Errorf("failing updater calls = %d, want 1 (no retries)", got)
	}
}

func TestRetrier(t *testing.T) {
	t.Parallel()

	r := NewRetrier(config.RetryConfig{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		Multiplier:   2,
	})

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	for i, w := range want {
		d, ok := r.NextDelay()
		if !ok {
			t.Fatalf("NextDelay() #%d exhausted early", i)
		}
		if d != w {
			t.Errorf("NextDelay() #%d = %v, want %v", i, d, w)
		}
	}
	if _, ok := r.NextDelay(); ok {
		t.Error("NextDelay() should be exhausted after MaxRetries")
	}
	if r.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", r.Attempts())
	}

	r.Reset()
	if d, ok := r.NextDelay(); !ok || d != 10*time.Millisecond {
		t.Errorf("NextDelay() after Reset = %v, %v", d, ok)
	}
}

func TestValidateRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.RetryConfig
		wantErr bool
	}{
		{name: "defaults", cfg: config.DefaultRetryConfig()},
		{name: "jitter too high", cfg: config.RetryConfig{JitterFraction: 1.5}, wantErr: true},
		{name: "shrinking multiplier", cfg: config.RetryConfig{Multiplier: 0.5}, wantErr: true},
		{name: "negative retries", cfg: config.RetryConfig{MaxRetries: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := ValidateRetry(tt.cfg); (err != nil) != tt.wantErr {
				t.Errorf("ValidateRetry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type staticResolver struct{ token string }

func (r staticResolver) Resolve(context.Context) (version.Resolution, error) {
	return version.Resolution{Token: r.token, Channel: "25.11"}, nil
}

type staticFetcher struct{ calls atomic.Int32 }

func (f *staticFetcher) Fetch(context.Context, string, string) ([]byte, error) {
	f.calls.Add(1)
	return []byte("snapshot"), nil
}

func TestKindUpdater(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := cache.NewStore(dir)
	kind := cache.ArtifactKind{
		Name:         "packages",
		URLTemplate:  "https://example.test/nixos-{channel}/nixpkgs.db.br",
		StampName:    "nixospkgs.ver",
		ArtifactName: "nixospkgs.db",
	}
	fetcher := &staticFetcher{}
	u := NewKindUpdater(store, kind, staticResolver{token: "25.11.1.abc"}, fetcher)

	if u.Name() != "packages" {
		t.Errorf("Name() = %q", u.Name())
	}
	if u.Current().Exists {
		t.Error("Current().Exists = true before refresh")
	}

	res, err := u.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Status != cache.StatusRefreshed || res.Version != "25.11.1.abc" {
		t.Errorf("Refresh() = %s", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "nixospkgs.db")); err != nil {
		t.Errorf("artifact missing: %v", err)
	}

	res, err = u.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if res.Status != cache.StatusHit || fetcher.calls.Load() != 1 {
		t.Errorf("second Refresh() = %s, fetch calls = %d", res, fetcher.calls.Load())
	}
	if !u.Current().Exists {
		t.Error("Current().Exists = false after refresh")
	}
}
