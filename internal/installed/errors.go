// ABOUTME: Error types for declarative documents and profile manifests
// ABOUTME: Parse errors are recoverable per document or per manifest entry

package installed

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentParse matches malformed documents.
	ErrDocumentParse = errors.New("document parse failed")

	// ErrFieldNotFound is returned when a document lacks the requested field.
	ErrFieldNotFound = errors.New("field not found")

	// ErrNotArray is returned when the field exists but is not a list.
	ErrNotArray = errors.New("field is not an array")

	// ErrUnsupportedDocument is returned for unknown file extensions.
	ErrUnsupportedDocument = errors.New("unsupported document type")

	// ErrShortStorePath is returned when a store path is shorter than
	// StorePathHashPrefixLength.
	ErrShortStorePath = errors.New("store path shorter than hash prefix")

	// ErrInvalidAttrPath is returned when an attribute path normalizes to nothing.
	ErrInvalidAttrPath = errors.New("invalid attribute path")
)

// DocumentParseError reports a document that could not be read or parsed.
type DocumentParseError struct {
	Path string
	Err  error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDocumentParse, e.Path, e.Err)
}

// Is reports whether target is ErrDocumentParse.
func (e *DocumentParseError) Is(target error) bool {
	return target == ErrDocumentParse
}

func (e *DocumentParseError) Unwrap() error {
	return e.Err
}
