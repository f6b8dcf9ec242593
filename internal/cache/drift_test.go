// ABOUTME: Tests for revision drift detection between stamps
// ABOUTME: Validates last-segment comparison and stamp file reading

package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		older     string
		newer     string
		wantDrift bool
	}{
		{"same revision", "25.11.20251020.abcdef0", "25.11.1234.abcdef0", false},
		{"short prefix", "25.11.20251020.abc", "25.11.1234.abcdef0", false},
		{"different revision", "25.11.20251020.abc", "25.11.1300.fff", true},
		{"whitespace", "25.11.1.abc\n", " 25.11.2.abc ", false},
		{"no dots", "abc", "abcdef", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CompareVersions(tt.older, tt.newer)
			if (got != nil) != tt.wantDrift {
				t.Errorf("CompareVersions(%q, %q) = %v, wantDrift %v", tt.older, tt.newer, got, tt.wantDrift)
			}
		})
	}
}

func TestStore_CompareStamps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	flakes := ArtifactKind{Name: "flake-packages", StampName: "flakespkgs.ver", ArtifactName: "flakespkgs.db"}
	packages := ArtifactKind{Name: "packages", StampName: "nixospkgs.ver", ArtifactName: "nixospkgs.db"}

	store := NewStore(dir)
	if _, err := store.CompareStamps(flakes, packages); err == nil {
		t.Error("CompareStamps() should fail without stamps")
	}

	_ = os.WriteFile(filepath.Join(dir, "flakespkgs.ver"), []byte("25.11.1.aaa"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "nixospkgs.ver"), []byte("25.11.2.bbb"), 0o644)

	drift, err := store.CompareStamps(flakes, packages)
	if err != nil {
		t.Fatalf("CompareStamps() error = %v", err)
	}
	if drift == nil || drift.Old != "25.11.1.aaa" || drift.New != "25.11.2.bbb" {
		t.Errorf("CompareStamps() = %v", drift)
	}
	if drift.String() != "25.11.1.aaa -> 25.11.2.bbb" {
		t.Errorf("String() = %q", drift.String())
	}
}
