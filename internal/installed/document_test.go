// ABOUTME: Tests for the document readers across supported formats
// ABOUTME: Covers literal dotted keys, nested paths, and Nix list scanning

package installed

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseDocument_ArrayValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		data string
		want []string
	}{
		{
			name: "json literal dotted key",
			path: "config.json",
			data: `{"environment.systemPackages": ["pkgs.git", "vim"]}`,
			want: []string{"pkgs.git", "vim"},
		},
		{
			name: "json nested path",
			path: "config.json",
			data: `{"environment": {"systemPackages": ["htop"]}}`,
			want: []string{"htop"},
		},
		{
			name: "yaml nested path",
			path: "config.yaml",
			data: "environment:\n  systemPackages:\n    - pkgs.firefox\n    - git\n",
			want: []string{"pkgs.firefox", "git"},
		},
		{
			name: "yaml literal key",
			path: "config.yml",
			data: "environment.systemPackages: [ripgrep]\n",
			want: []string{"ripgrep"},
		},
		{
			name: "toml nested table",
			path: "config.toml",
			data: "[environment]\nsystemPackages = [\"pkgs.jq\", \"fd\"]\n",
			want: []string{"pkgs.jq", "fd"},
		},
		{
			name: "toml quoted dotted key",
			path: "config.toml",
			data: "\"environment.systemPackages\" = [\"tmux\"]\n",
			want: []string{"tmux"},
		},
		{
			name: "nix plain list",
			path: "configuration.nix",
			data: "{ pkgs, ... }:\n{\n  environment.systemPackages = [ pkgs.git pkgs.vim ];\n}\n",
			want: []string{"pkgs.git", "pkgs.vim"},
		},
		{
			name: "nix with pkgs and comments",
			path: "configuration.nix",
			data: `{ pkgs, ... }:
{
  # environment.systemPackages = [ old ];
  environment.systemPackages = with pkgs; [
    git # version control
    /* editor */ neovim
    (python3.withPackages (ps: [ ps.requests ]))
  ];
}
`,
			want: []string{"git", "neovim", "(python3.withPackages (ps: [ ps.requests ]))"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := ParseDocument(tt.path, []byte(tt.data))
			if err != nil {
				t.Fatalf("ParseDocument() error = %v", err)
			}
			got, err := doc.ArrayValues(DefaultFieldPath)
			if err != nil {
				t.Fatalf("ArrayValues() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ArrayValues() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDocument_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		data       string
		wantParse bool
		wantField error
	}{
		{name: "malformed json", path: "a.json", data: `{"x": [`, wantParse: true},
		{name: "malformed yaml", path: "a.yaml", data: "a: [b\n", wantParse: true},
		{name: "malformed toml", path: "a.toml", data: "a = [", wantParse: true},
		{name: "unknown extension", path: "a.ini", data: "x=1", wantParse: true},
		{name: "missing json field", path: "a.json", data: `{"other": []}`, wantField: ErrFieldNotFound},
		{name: "json scalar field", path: "a.json", data: `{"environment.systemPackages": "git"}`, wantField: ErrNotArray},
		{name: "missing nix field", path: "a.nix", data: "{ services.foo.enable = true; }", wantField: ErrFieldNotFound},
		{name: "nix non-list", path: "a.nix", data: "{ environment.systemPackages = lib.mkForce x; }", wantField: ErrNotArray},
		{name: "nix unterminated", path: "a.nix", data: "{ environment.systemPackages = [ git ", wantField: ErrDocumentParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := ParseDocument(tt.path, []byte(tt.data))
			if tt.wantParse {
				if !errors.Is(err, ErrDocumentParse) {
					t.Fatalf("ParseDocument() error = %v, want ErrDocumentParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDocument() error = %v", err)
			}
			if _, err := doc.ArrayValues(DefaultFieldPath); !errors.Is(err, tt.wantField) {
				t.Errorf("ArrayValues() error = %v, want %v", err, tt.wantField)
			}
		})
	}
}

func TestOpenDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "configuration.nix")
	if err := os.WriteFile(path, []byte("{ environment.systemPackages = [ \"hello\" ]; }"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	doc, err := OpenDocument(path)
	if err != nil {
		t.Fatalf("OpenDocument() error = %v", err)
	}
	if doc.Path() != path {
		t.Errorf("Path() = %q, want %q", doc.Path(), path)
	}

	if _, err := OpenDocument(filepath.Join(dir, "absent.nix")); !errors.Is(err, ErrDocumentParse) {
		t.Errorf("OpenDocument(absent) error = %v, want ErrDocumentParse", err)
	}
}

func TestStripNixComments_KeepsStrings(t *testing.T) {
	t.Parallel()

	src := `x = "a # not a comment"; # real comment
y = ''multi # kept''; /* gone */ z = 1;`
	got := stripNixComments(src)
	for _, keep := range []string{`"a # not a comment"`, `''multi # kept''`, "z = 1;"} {
		if !strings.Contains(got, keep) {
			t.Errorf("stripNixComments() lost %q: %q", keep, got)
		}
	}
	for _, drop := range []string{"real comment", "gone"} {
		if strings.Contains(got, drop) {
			t.Errorf("stripNixComments() kept %q: %q", drop, got)
		}
	}
}
