// ABOUTME: Artifact kinds cached by the store and their URL expansion
// ABOUTME: Built from configured sources with stamp and artifact file names

package cache

import (
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/version"
)

// ArtifactKind names one cached artifact and where it comes from.
type ArtifactKind struct {
	// Name identifies the kind in logs and metrics, e.g. "packages".
	Name string

	// URLTemplate is the compressed artifact URL; {channel} and {version}
	// are substituted from the resolution.
	URLTemplate string

	// StampName is the version stamp file name in the cache dir.
	StampName string

	// ArtifactName is the decompressed artifact file name in the cache dir.
	ArtifactName string
}

// KindFromSource builds an ArtifactKind from a configured source.
func KindFromSource(name string, src config.SourceConfig) ArtifactKind {
	return ArtifactKind{
		Name:         name,
		URLTemplate:  src.ArtifactURL,
		StampName:    src.Stamp,
		ArtifactName: src.Artifact,
	}
}

// URLs returns the primary and fallback artifact URLs for a resolution.
// The fallback is empty when the resolution already came from the
// fallback channel.
func (k ArtifactKind) URLs(res version.Resolution) (primary, fallback string) {
	primary = version.Expand(k.URLTemplate, res.Channel, res.Token)
	if res.Fallback || res.FallbackChannel == "" {
		return primary, ""
	}
	fallback = version.Expand(k.URLTemplate, res.FallbackChannel, res.Token)
	if fallback == primary {
		fallback = ""
	}
	return primary, fallback
}
