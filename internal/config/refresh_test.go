// ABOUTME: Tests for watch mode configuration types
// ABOUTME: Validates defaults, intervals, and retry settings

package config

import (
	"testing"
	"time"
)

func TestRefreshConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultRefreshConfig()

	if cfg.Interval != 6*time.Hour {
		t.Errorf("Interval = %v, want 6h", cfg.Interval)
	}
	if len(cfg.Kinds) != 2 || cfg.Kinds[0] != KindPackages || cfg.Kinds[1] != KindOptions {
		t.Errorf("Kinds = %v, want [packages options]", cfg.Kinds)
	}
	if cfg.Retry != nil {
		t.Error("Retry should be nil by default")
	}
}

func TestRetryConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 30*time.Second {
		t.Errorf("InitialDelay = %v, want 30s", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 30*time.Minute {
		t.Errorf("MaxDelay = %v, want 30m", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", cfg.Multiplier)
	}
	if cfg.JitterFraction != 0.2 {
		t.Errorf("JitterFraction = %v, want 0.2", cfg.JitterFraction)
	}
}

func TestRefreshConfig_GetRetry(t *testing.T) {
	t.Parallel()

	t.Run("nil uses defaults", func(t *testing.T) {
		t.Parallel()
		cfg := RefreshConfig{}
		if got := cfg.GetRetry(); got != DefaultRetryConfig() {
			t.Errorf("GetRetry() = %+v, want defaults", got)
		}
	})

	t.Run("custom is returned", func(t *testing.T) {
		t.Parallel()
		custom := RetryConfig{MaxRetries: 1, InitialDelay: time.Second}
		cfg := RefreshConfig{Retry: &custom}
		if got := cfg.GetRetry(); got != custom {
			t.Errorf("GetRetry() = %+v, want %+v", got, custom)
		}
	})
}
