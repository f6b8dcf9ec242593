// ABOUTME: Builds the declared package set from declarative documents
// ABOUTME: Unions array fields across documents, skipping ones that fail

package installed

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
)

// DefaultFieldPath is the NixOS option holding declared system packages.
const DefaultFieldPath = "environment.systemPackages"

// PackagePrefix is stripped from declared entries.
const PackagePrefix = "pkgs."

// Set is a deduplicated set of attribute names.
type Set map[string]struct{}

// Add inserts attr.
func (s Set) Add(attr string) { s[attr] = struct{}{} }

// Has reports whether attr is present.
func (s Set) Has(attr string) bool {
	_, ok := s[attr]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for attr := range s {
		out = append(out, attr)
	}
	sort.Strings(out)
	return out
}

// Packages converts the set to installed packages whose display name is
// the attribute.
func (s Set) Packages() []InstalledPackage {
	attrs := s.Sorted()
	out := make([]InstalledPackage, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, InstalledPackage{Identity: attr, DisplayName: attr})
	}
	return out
}

// Extractor unions declared packages from documents.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger uses slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract uses the default logger.
func Extract(docs []Document, fieldPath string) Set {
	return NewExtractor(nil).Extract(docs, fieldPath)
}

// Extract returns the union of fieldPath entries across docs. Documents
// without the field or that fail to parse are logged and skipped.
func (e *Extractor) Extract(docs []Document, fieldPath string) Set {
	set := make(Set)
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		values, err := doc.ArrayValues(fieldPath)
		if err != nil {
			e.logSkip(doc.Path(), fieldPath, err)
			continue
		}
		for _, v := range values {
			v = strings.TrimPrefix(strings.TrimSpace(v), PackagePrefix)
			if v != "" {
				set.Add(v)
			}
		}
	}
	return set
}

// ExtractFiles opens each path and extracts fieldPath. Unreadable or
// unsupported files are logged and skipped.
func (e *Extractor) ExtractFiles(paths []string, fieldPath string) Set {
	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		doc, err := OpenDocument(path)
		if err != nil {
			e.logger.Warn("skipping document",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		docs = append(docs, doc)
	}
	return e.Extract(docs, fieldPath)
}

func (e *Extractor) logSkip(path, fieldPath string, err error) {
	if errors.Is(err, ErrFieldNotFound) {
		e.logger.Debug("document does not declare field",
			slog.String("path", path),
			slog.String("field", fieldPath),
		)
		return
	}
	e.logger.Warn("skipping document",
		slog.String("path", path),
		slog.String("field", fieldPath),
		slog.String("error", err.Error()),
	)
}
