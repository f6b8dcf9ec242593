// ABOUTME: Shared fixtures for pkgaudit command tests
// ABOUTME: Serves brotli snapshots over httptest and fakes the alias oracle

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/andybalholm/brotli"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/aliascache"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/audit"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/fetch"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/hostversion"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/nixeval"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/pkgdb"
)

const (
	testToken        = "25.11.100.abc1234"
	testNixOSVersion = "25.11.20250101.abc1234"
)

// fakeOracle answers alias questions from a fixed table.
type fakeOracle struct {
	mu      sync.Mutex
	aliases map[string]audit.Evaluation
	calls   atomic.Int64
}

func (f *fakeOracle) NixpkgsPath(context.Context) (string, error) {
	return "/nix/store/fake-nixpkgs", nil
}

func (f *fakeOracle) IsKnownAlias(_ context.Context, attr string) (bool, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.aliases[attr]
	return ok, nil
}

func (f *fakeOracle) Evaluate(_ context.Context, attr string) (audit.Evaluation, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aliases[attr], nil
}

// upstream serves version tokens and brotli artifacts.
type upstream struct {
	srv      *httptest.Server
	mu       sync.Mutex
	files    map[string][]byte
	failAll  atomic.Bool
	artifact atomic.Int64
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{files: make(map[string][]byte)}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.failAll.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		u.mu.Lock()
		body, ok := u.files[r.URL.Path]
		u.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".br") {
			u.artifact.Add(1)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) serve(path string, body []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[path] = body
}

// servePackages publishes a snapshot built from records under token.
func (u *upstream) servePackages(t *testing.T, token string, records []pkgdb.PackageRecord) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "snapshot.db")
	if err := pkgdb.BuildSnapshot(context.Background(), path, records); err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}

	u.serve("/nixos-25.11/nixpkgs.ver", []byte(token+"\n"))
	u.serve("/nixos-25.11/nixpkgs.db.br", compress(t, data))
}

// serveOptions publishes an options document under token.
func (u *upstream) serveOptions(t *testing.T, token, doc string) {
	t.Helper()
	u.serve("/nixos-25.11/options.ver", []byte(token))
	u.serve("/nixos-25.11/options.json.br", compress(t, []byte(doc)))
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}
	return buf.Bytes()
}

// writeConfig writes a config pointing every source at u.
func writeConfig(t *testing.T, u *upstream, extra string) string {
	t.Helper()

	dir := t.TempDir()
	base := u.srv.URL
	cfg := `cache_dir: ` + filepath.Join(dir, "cache") + `
channel: "25.11"
profile_manifest: ""
log:
  level: error
oracle:
  cache_ttl: 0
sources:
  packages:
    version_url: ` + base + `/nixos-{channel}/nixpkgs.ver
    fallback_version_url: ` + base + `/nixos-unstable/nixpkgs.ver
    fallback_channel: unstable
    token_source: body
    artifact_url: ` + base + `/nixos-{channel}/nixpkgs.db.br
    stamp: nixospkgs.ver
    artifact: nixospkgs.db
  options:
    version_url: ` + base + `/nixos-{channel}/options.ver
    fallback_version_url: ` + base + `/nixos-unstable/options.ver
    fallback_channel: unstable
    token_source: body
    artifact_url: ` + base + `/nixos-{channel}/options.json.br
    stamp: nixosoptions.ver
    artifact: nixosoptions.json
` + extra

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// newTestApp builds an app against u with a fake host and oracle.
func newTestApp(t *testing.T, u *upstream, oracle *fakeOracle, extra string) (*app, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	a, err := newApp(context.Background(), appOptions{
		ConfigPath: writeConfig(t, u, extra),
		Out:        &out,
		Err:        io.Discard,
	})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}

	a.client.Close()
	a.client = fetch.NewClient(fetch.DefaultClientConfig(), fetch.WithHTTPClient(u.srv.Client()))
	a.host = hostversion.NewStatic(testNixOSVersion, "abc1234")
	a.newOracle = func(nixeval.Config) aliascache.SourceOracle { return oracle }

	t.Cleanup(a.Close)
	return a, &out
}

// writeDocument writes a declarative document listing attrs.
func writeDocument(t *testing.T, attrs ...string) string {
	t.Helper()

	quoted := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		quoted = append(quoted, `"`+attr+`"`)
	}
	doc := `{"environment.systemPackages": [` + strings.Join(quoted, ", ") + `]}`

	path := filepath.Join(t.TempDir(), "configuration.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing document: %v", err)
	}
	return path
}
