// ABOUTME: Serializable audit report and its text and JSON renderings
// ABOUTME: Problems are listed in identity order with display names attached

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/audit"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/installed"
)

// Problem is one non-available package.
type Problem struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	Verdict     string `json:"verdict"`
	Message     string `json:"message"`
}

// Document is the published form of an audit.
type Document struct {
	RunID           string    `json:"run_id,omitempty"`
	Host            string    `json:"host,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
	SnapshotVersion string    `json:"snapshot_version,omitempty"`
	Installed       int       `json:"installed"`
	Problems        []Problem `json:"problems"`
}

// Meta describes the run a report came from.
type Meta struct {
	RunID           string
	Host            string
	SnapshotVersion string
}

// Build converts an audit report into a Document.
func Build(r audit.Report, pkgs []installed.InstalledPackage, meta Meta) Document {
	names := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		names[p.Identity] = p.DisplayName
	}

	doc := Document{
		RunID:           meta.RunID,
		Host:            meta.Host,
		GeneratedAt:     time.Now().UTC(),
		SnapshotVersion: meta.SnapshotVersion,
		Installed:       len(names),
		Problems:        make([]Problem, 0, len(r)),
	}
	for _, id := range r.Identities() {
		v := r[id]
		doc.Problems = append(doc.Problems, Problem{
			Identity:    id,
			DisplayName: names[id],
			Verdict:     v.Kind.String(),
			Message:     v.Text(),
		})
	}
	return doc
}

// HasProblems reports whether any problem was found.
func (d Document) HasProblems() bool {
	return len(d.Problems) > 0
}

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, doc Document) error {
	if !doc.HasProblems() {
		_, err := fmt.Fprintf(w, "No problems found in %d installed packages\n", doc.Installed)
		return err
	}

	width := 0
	for _, p := range doc.Problems {
		if n := len(p.Identity); n > width {
			width = n
		}
	}

	if _, err := fmt.Fprintf(w, "%d of %d installed packages have problems:\n", len(doc.Problems), doc.Installed); err != nil {
		return err
	}
	for _, p := range doc.Problems {
		if _, err := fmt.Fprintf(w, "  %-*s  %s\n", width, p.Identity, p.Message); err != nil {
			return err
		}
	}
	if doc.SnapshotVersion != "" {
		if _, err := fmt.Fprintf(w, "Snapshot: %s\n", doc.SnapshotVersion); err != nil {
			return err
		}
	}
	return nil
}
