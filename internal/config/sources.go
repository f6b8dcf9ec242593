// ABOUTME: Remote source definitions per cached artifact kind
// ABOUTME: Version endpoints, artifact URL templates, and on-disk names

package config

import (
	"errors"
	"path"
	"strings"
)

// Token sources understood by the version resolver.
const (
	TokenSourceBody     = "body"
	TokenSourceRedirect = "redirect"
)

// Artifact kind names.
const (
	KindPackages      = "packages"
	KindOptions       = "options"
	KindFlakePackages = "flake-packages"
)

// SourcesConfig holds the remote source of each artifact kind.
type SourcesConfig struct {
	Packages      SourceConfig `yaml:"packages"`
	Options       SourceConfig `yaml:"options"`
	FlakePackages SourceConfig `yaml:"flake_packages"`
}

// SourceConfig describes where one artifact kind is versioned and fetched.
// URL templates may contain {channel} and {version}.
type SourceConfig struct {
	// VersionURL is the primary version endpoint, expanded with {channel}.
	VersionURL string `yaml:"version_url"`

	// FallbackVersionURL is asked when the primary fails.
	FallbackVersionURL string `yaml:"fallback_version_url"`

	// FallbackChannel is the rolling channel substituted on fallback.
	FallbackChannel string `yaml:"fallback_channel"`

	// TokenSource selects body or redirect token extraction.
	TokenSource string `yaml:"token_source"`

	// ArtifactURL is the compressed artifact template.
	ArtifactURL string `yaml:"artifact_url"`

	// Stamp is the version stamp file name in the cache dir.
	Stamp string `yaml:"stamp"`

	// Artifact is the decompressed artifact file name in the cache dir.
	Artifact string `yaml:"artifact"`

	// Compression names the payload codec: brotli (default) or none.
	Compression string `yaml:"compression"`

	// Format names the decoded artifact format checked before caching:
	// sqlite, json or none. Empty infers it from the artifact file name.
	Format string `yaml:"format"`
}

// ArtifactFormat returns Format, or the format implied by the artifact
// file extension.
func (s SourceConfig) ArtifactFormat() string {
	if s.Format != "" {
		return s.Format
	}
	switch strings.ToLower(path.Ext(s.Artifact)) {
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	case ".json":
		return "json"
	default:
		return "none"
	}
}

const (
	xinuxDatabase = "https://raw.githubusercontent.com/xinux-org/database"
	nixosChannels = "https://channels.nixos.org"
)

// DefaultSourcesConfig returns the upstream NixOS sources.
func DefaultSourcesConfig() SourcesConfig {
	packages := SourceConfig{
		VersionURL:         xinuxDatabase + "/refs/heads/main/nixos-{channel}/nixpkgs.ver",
		FallbackVersionURL: xinuxDatabase + "/refs/heads/main/nixpkgs-unstable/nixpkgs.ver",
		FallbackChannel:    "unstable",
		TokenSource:        TokenSourceBody,
		ArtifactURL:        xinuxDatabase + "/main/nixos-{channel}/nixpkgs.db.br",
		Stamp:              "nixospkgs.ver",
		Artifact:           "nixospkgs.db",
	}

	flakes := packages
	flakes.Stamp = "flakespkgs.ver"
	flakes.Artifact = "flakespkgs.db"

	return SourcesConfig{
		Packages: packages,
		Options: SourceConfig{
			VersionURL:         nixosChannels + "/nixos-{channel}",
			FallbackVersionURL: nixosChannels + "/nixos-unstable",
			FallbackChannel:    "unstable",
			TokenSource:        TokenSourceRedirect,
			ArtifactURL:        nixosChannels + "/nixos-{channel}/options.json.br",
			Stamp:              "nixosoptions.ver",
			Artifact:           "nixosoptions.json",
		},
		FlakePackages: flakes,
	}
}

// ByKind returns the sources keyed by artifact kind name.
func (s SourcesConfig) ByKind() map[string]SourceConfig {
	return map[string]SourceConfig{
		KindPackages:      s.Packages,
		KindOptions:       s.Options,
		KindFlakePackages: s.FlakePackages,
	}
}

func (s SourceConfig) validate() error {
	switch {
	case s.FallbackVersionURL == "" && s.VersionURL == "":
		return errors.New("no version url")
	case s.ArtifactURL == "":
		return errors.New("artifact_url is empty")
	case s.Stamp == "" || s.Artifact == "":
		return errors.New("stamp and artifact names are required")
	case s.Stamp == s.Artifact:
		return errors.New("stamp and artifact must differ")
	case strings.ContainsRune(s.Stamp, '/') || strings.ContainsRune(s.Artifact, '/'):
		return errors.New("stamp and artifact must be plain file names")
	}

	switch s.Compression {
	case "", "brotli", "none":
	default:
		return errors.New("compression must be brotli or none")
	}

	switch s.Format {
	case "", "sqlite", "json", "none":
	default:
		return errors.New("format must be sqlite, json or none")
	}

	switch s.TokenSource {
	case TokenSourceBody, TokenSourceRedirect:
		return nil
	default:
		return errors.New("token_source must be body or redirect")
	}
}
