// ABOUTME: Reads the nix profile manifest into installed package identities
// ABOUTME: Normalizes legacyPackages paths and flake references

package installed

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// StorePathHashPrefixLength is the length of "/nix/store/<32-char hash>-".
const StorePathHashPrefixLength = 44

// LegacyPackagesMarker prefixes attribute paths installed from legacyPackages.
const LegacyPackagesMarker = "legacyPackages"

// InstalledPackage is one package to audit.
type InstalledPackage struct {
	Identity    string
	DisplayName string
}

// ManifestEntry is one profile manifest element.
type ManifestEntry struct {
	AttrPath    string
	OriginalURL *string
	StorePaths  []string
}

// NormalizeIdentity returns the audit identity for a manifest entry.
// legacyPackages.<system>.<attr> becomes <attr>; anything else becomes
// <originalURL>#<attrPath>.
func NormalizeIdentity(attrPath, originalURL string) (string, error) {
	if strings.HasPrefix(attrPath, LegacyPackagesMarker) {
		segments := strings.Split(attrPath, ".")
		if len(segments) < 3 {
			return "", fmt.Errorf("%w: %q", ErrInvalidAttrPath, attrPath)
		}
		return strings.Join(segments[2:], "."), nil
	}
	return originalURL + "#" + attrPath, nil
}

// DisplayName strips the store hash prefix from a store path.
func DisplayName(storePath string) (string, error) {
	if len(storePath) < StorePathHashPrefixLength {
		return "", fmt.Errorf("%w: %q", ErrShortStorePath, storePath)
	}
	return storePath[StorePathHashPrefixLength:], nil
}

// ManifestReader reads profile manifests.
type ManifestReader struct {
	logger *slog.Logger
}

// NewManifestReader creates a reader. A nil logger uses slog.Default().
func NewManifestReader(logger *slog.Logger) *ManifestReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManifestReader{logger: logger}
}

// ReadProfileManifest uses the default logger.
func ReadProfileManifest(path string) ([]InstalledPackage, error) {
	return NewManifestReader(nil).Read(path)
}

// Read returns the installed packages in the manifest at path. A missing
// file yields no packages and no error.
func (r *ManifestReader) Read(path string) ([]InstalledPackage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &DocumentParseError{Path: path, Err: err}
	}
	return r.Parse(path, data)
}

// Parse decodes manifest data. elements may be an object keyed by name or
// an array. Invalid entries are skipped; later duplicates win.
func (r *ManifestReader) Parse(path string, data []byte) ([]InstalledPackage, error) {
	entries, err := ParseManifestEntries(path, data)
	if err != nil {
		return nil, err
	}

	var (
		out   []InstalledPackage
		index = make(map[string]int)
	)
	for _, entry := range entries {
		pkg, ok := r.resolve(entry)
		if !ok {
			continue
		}
		if i, dup := index[pkg.Identity]; dup {
			out[i] = pkg
			continue
		}
		index[pkg.Identity] = len(out)
		out = append(out, pkg)
	}
	return out, nil
}

func (r *ManifestReader) resolve(entry ManifestEntry) (InstalledPackage, bool) {
	if entry.AttrPath == "" || entry.OriginalURL == nil || len(entry.StorePaths) == 0 {
		return InstalledPackage{}, false
	}

	identity, err := NormalizeIdentity(entry.AttrPath, *entry.OriginalURL)
	if err != nil {
		r.logger.Warn("skipping manifest entry",
			slog.String("attr_path", entry.AttrPath),
			slog.String("error", err.Error()),
		)
		return InstalledPackage{}, false
	}

	name, err := DisplayName(entry.StorePaths[0])
	if err != nil {
		r.logger.Warn("skipping manifest entry",
			slog.String("attr_path", entry.AttrPath),
			slog.String("error", err.Error()),
		)
		return InstalledPackage{}, false
	}

	return InstalledPackage{Identity: identity, DisplayName: name}, true
}

// ParseManifestEntries decodes the raw elements of a manifest.
func ParseManifestEntries(path string, data []byte) ([]ManifestEntry, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DocumentParseError{Path: path, Err: errors.New("invalid JSON")}
	}

	elements := gjson.GetBytes(data, "elements")
	if !elements.Exists() {
		return nil, nil
	}
	if !elements.IsObject() && !elements.IsArray() {
		return nil, &DocumentParseError{Path: path, Err: errors.New("elements is neither an object nor an array")}
	}

	var entries []ManifestEntry
	elements.ForEach(func(_, value gjson.Result) bool {
		entry := ManifestEntry{}
		if attr := value.Get("attrPath"); attr.Type == gjson.String {
			entry.AttrPath = attr.Str
		}
		if url := value.Get("originalUrl"); url.Type == gjson.String {
			s := url.Str
			entry.OriginalURL = &s
		}
		for _, sp := range value.Get("storePaths").Array() {
			if sp.Type == gjson.String {
				entry.StorePaths = append(entry.StorePaths, sp.Str)
			}
		}
		entries = append(entries, entry)
		return true
	})
	return entries, nil
}
