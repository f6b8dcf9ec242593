// ABOUTME: Tests for the alias answer cache and the caching oracle
// ABOUTME: Runs against an in-memory BadgerDB

package aliascache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/audit"
)

func setupTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()

	cache, err := Open(StoreConfig{InMemory: true}, ttl)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCache_Put_Get(t *testing.T) {
	t.Parallel()

	cache := setupTestCache(t, 24*time.Hour)
	ctx := context.Background()

	want := Entry{Known: true, Evaluated: true, Failed: true, Message: "renamed"}
	if err := cache.Put(ctx, "/nix/store/a-source", "oldname", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, found, err := cache.Get(ctx, "/nix/store/a-source", "oldname")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Get() found = false, want true")
	}
	if got.Known != want.Known || got.Failed != want.Failed || got.Message != want.Message {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if got.CheckedAt.IsZero() {
		t.Error("CheckedAt should be set on Put")
	}

	if _, found, _ := cache.Get(ctx, "/nix/store/b-source", "oldname"); found {
		t.Error("entries must be scoped by nixpkgs source path")
	}
}

func TestCache_Count_Clear(t *testing.T) {
	t.Parallel()

	cache := setupTestCache(t, time.Hour)
	ctx := context.Background()

	for _, attr := range []string{"a", "b", "c"} {
		if err := cache.Put(ctx, "/src", attr, Entry{}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	count, err := cache.Count(ctx)
	if err != nil || count != 3 {
		t.Fatalf("Count() = %d, %v, want 3", count, err)
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	count, err = cache.Count(ctx)
	if err != nil || count != 0 {
		t.Errorf("Count() after Clear = %d, %v, want 0", count, err)
	}

	if cache.TTL() != time.Hour {
		t.Errorf("TTL() = %v, want 1h", cache.TTL())
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	cache := setupTestCache(t, time.Second)
	ctx := context.Background()

	if err := cache.Put(ctx, "/src", "short", Entry{Known: true}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	time.Sleep(2 * time.Second)

	if _, found, err := cache.Get(ctx, "/src", "short"); err != nil || found {
		t.Errorf("Get() after TTL found = %v, err = %v, want expired", found, err)
	}
}

type countingOracle struct {
	aliasCalls atomic.Int32
	evalCalls  atomic.Int32
	pathErr    error
}

func (o *countingOracle) NixpkgsPath(context.Context) (string, error) {
	if o.pathErr != nil {
		return "", o.pathErr
	}
	return "/nix/store/abc-source", nil
}

func (o *countingOracle) IsKnownAlias(_ context.Context, attr string) (bool, error) {
	o.aliasCalls.Add(1)
	return attr == "oldname", nil
}

func (o *countingOracle) Evaluate(_ context.Context, attr string) (audit.Evaluation, error) {
	o.evalCalls.Add(1)
	return audit.Evaluation{Failed: true, Message: "error: '" + attr + "' has been renamed"}, nil
}

func TestCachingOracle(t *testing.T) {
	t.Parallel()

	inner := &countingOracle{}
	oracle := NewCachingOracle(inner, setupTestCache(t, time.Hour), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		known, err := oracle.IsKnownAlias(ctx, "oldname")
		if err != nil || !known {
			t.Fatalf("IsKnownAlias(oldname) = %v, %v", known, err)
		}
		eval, err := oracle.Evaluate(ctx, "oldname")
		if err != nil || !eval.Failed || eval.Message != "error: 'oldname' has been renamed" {
			t.Fatalf("Evaluate(oldname) = %+v, %v", eval, err)
		}
		known, err = oracle.IsKnownAlias(ctx, "hello")
		if err != nil || known {
			t.Fatalf("IsKnownAlias(hello) = %v, %v", known, err)
		}
	}

	if got := inner.aliasCalls.Load(); got != 2 {
		t.Errorf("inner IsKnownAlias calls = %d, want 2", got)
	}
	if got := inner.evalCalls.Load(); got != 1 {
		t.Errorf("inner Evaluate calls = %d, want 1", got)
	}
}

func TestCachingOracle_SourceError(t *testing.T) {
	t.Parallel()

	inner := &countingOracle{pathErr: audit.ErrAliasOracle}
	oracle := NewCachingOracle(inner, setupTestCache(t, time.Hour), nil)

	if _, err := oracle.IsKnownAlias(context.Background(), "x"); !errors.Is(err, audit.ErrAliasOracle) {
		t.Errorf("IsKnownAlias() error = %v, want ErrAliasOracle", err)
	}
	if _, err := oracle.Evaluate(context.Background(), "x"); !errors.Is(err, audit.ErrAliasOracle) {
		t.Errorf("Evaluate() error = %v, want ErrAliasOracle", err)
	}
}
