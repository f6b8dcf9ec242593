// ABOUTME: Declarative document readers keyed by file extension
// ABOUTME: Reads array-valued fields from Nix, JSON, YAML, and TOML documents

package installed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Document is a parsed declarative configuration file.
type Document interface {
	// Path identifies the document in logs and errors.
	Path() string

	// ArrayValues returns the raw entries of the array at fieldPath.
	ArrayValues(fieldPath string) ([]string, error)
}

// OpenDocument reads path and picks a parser by extension.
func OpenDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DocumentParseError{Path: path, Err: err}
	}
	return ParseDocument(path, data)
}

// ParseDocument parses data using the parser for path's extension.
func ParseDocument(path string, data []byte) (Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nix":
		return &nixDocument{path: path, src: string(data)}, nil
	case ".json":
		if !gjson.ValidBytes(data) {
			return nil, &DocumentParseError{Path: path, Err: errors.New("invalid JSON")}
		}
		return &jsonDocument{path: path, data: data}, nil
	case ".yaml", ".yml":
		var root map[string]any
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, &DocumentParseError{Path: path, Err: err}
		}
		return &treeDocument{path: path, root: root}, nil
	case ".toml":
		var root map[string]any
		if _, err := toml.Decode(string(data), &root); err != nil {
			return nil, &DocumentParseError{Path: path, Err: err}
		}
		return &treeDocument{path: path, root: root}, nil
	default:
		return nil, &DocumentParseError{Path: path, Err: ErrUnsupportedDocument}
	}
}

// jsonDocument resolves fields with gjson.
type jsonDocument struct {
	path string
	data []byte
}

func (d *jsonDocument) Path() string { return d.path }

func (d *jsonDocument) ArrayValues(fieldPath string) ([]string, error) {
	result := gjson.GetBytes(d.data, escapeGJSON(fieldPath))
	if !result.Exists() {
		result = gjson.GetBytes(d.data, fieldPath)
	}
	if !result.Exists() {
		return nil, fmt.Errorf("%s: %w", fieldPath, ErrFieldNotFound)
	}
	if !result.IsArray() {
		return nil, fmt.Errorf("%s: %w", fieldPath, ErrNotArray)
	}

	var values []string
	for _, item := range result.Array() {
		if item.Type == gjson.String {
			values = append(values, item.Str)
		}
	}
	return values, nil
}

// escapeGJSON makes a dotted key match literally.
func escapeGJSON(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// treeDocument holds decoded YAML or TOML.
type treeDocument struct {
	path string
	root map[string]any
}

func (d *treeDocument) Path() string { return d.path }

func (d *treeDocument) ArrayValues(fieldPath string) ([]string, error) {
	value, ok := d.root[fieldPath]
	if !ok {
		value, ok = lookupNested(d.root, strings.Split(fieldPath, "."))
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", fieldPath, ErrFieldNotFound)
	}

	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w", fieldPath, ErrNotArray)
	}

	var values []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}
	return values, nil
}

func lookupNested(node map[string]any, segments []string) (any, bool) {
	var current any = node
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
