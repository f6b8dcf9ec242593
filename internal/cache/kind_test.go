// ABOUTME: Tests for artifact kind URL expansion
// ABOUTME: Validates primary/fallback URLs and config conversion

package cache

import (
	"testing"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/version"
)

func TestArtifactKind_URLs(t *testing.T) {
	t.Parallel()

	kind := ArtifactKind{URLTemplate: "https://h/nixos-{channel}/{version}.br"}

	tests := []struct {
		name         string
		res          version.Resolution
		wantPrimary  string
		wantFallback string
	}{
		{
			name:         "primary with fallback",
			res:          version.Resolution{Token: "t", Channel: "25.11", FallbackChannel: "unstable"},
			wantPrimary:  "https://h/nixos-25.11/t.br",
			wantFallback: "https://h/nixos-unstable/t.br",
		},
		{
			name:        "already fallback",
			res:         version.Resolution{Token: "t", Channel: "unstable", Fallback: true, FallbackChannel: "unstable"},
			wantPrimary: "https://h/nixos-unstable/t.br",
		},
		{
			name:        "no fallback channel",
			res:         version.Resolution{Token: "t", Channel: "25.11"},
			wantPrimary: "https://h/nixos-25.11/t.br",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			primary, fallback := kind.URLs(tt.res)
			if primary != tt.wantPrimary || fallback != tt.wantFallback {
				t.Errorf("URLs() = (%q, %q), want (%q, %q)", primary, fallback, tt.wantPrimary, tt.wantFallback)
			}
		})
	}
}

func TestKindFromSource(t *testing.T) {
	t.Parallel()

	src := config.DefaultSourcesConfig().Options
	kind := KindFromSource(config.KindOptions, src)

	if kind.Name != "options" || kind.ArtifactName != "nixosoptions.json" || kind.StampName != "nixosoptions.ver" {
		t.Errorf("KindFromSource() = %+v", kind)
	}
	if kind.URLTemplate != src.ArtifactURL {
		t.Errorf("URLTemplate = %q", kind.URLTemplate)
	}
}
