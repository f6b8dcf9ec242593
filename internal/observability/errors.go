// ABOUTME: Structured failure reports for pkgaudit commands
// ABOUTME: Codes map to a retry category and a remediation hint for the operator

package observability

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
)

// Failure categories.
const (
	CategoryTransient = "transient"  // Network or nix availability; retry later.
	CategoryPermanent = "permanent"  // Bad snapshot or bug; retrying will not help.
	CategoryUserError = "user_error" // Config, documents or lookups supplied by the user.
)

// Error codes reported by the CLI.
const (
	CodeNoCacheNoConnectivity = "NO_CACHE_NO_CONNECTIVITY"
	CodeVersionResolution     = "VERSION_RESOLUTION"
	CodeDownload              = "DOWNLOAD"
	CodeDecompression         = "DECOMPRESSION"
	CodeDatabaseBuild         = "DATABASE_BUILD"
	CodeSchemaInvariant       = "SCHEMA_INVARIANT"
	CodeDocumentParse         = "DOCUMENT_PARSE"
	CodeAliasOracle           = "ALIAS_ORACLE"
	CodeConfig                = "CONFIG"
	CodeNotFound              = "NOT_FOUND"
	CodeInternal              = "INTERNAL"
)

type codeInfo struct {
	category string
	hint     string
}

var codes = map[string]codeInfo{
	CodeNoCacheNoConnectivity: {CategoryTransient, "connect to the network once so the package snapshots can be cached"},
	CodeVersionResolution:     {CategoryTransient, "check access to channels.nixos.org or set channel in the config"},
	CodeDownload:              {CategoryTransient, "check network access to the snapshot mirrors and retry"},
	CodeDecompression:         {CategoryPermanent, "the download was incomplete or corrupt; run `pkgaudit cache refresh`"},
	CodeDatabaseBuild:         {CategoryPermanent, "check free space and permissions in the cache directory"},
	CodeSchemaInvariant:       {CategoryPermanent, "the cached snapshot is inconsistent; run `pkgaudit cache refresh`"},
	CodeDocumentParse:         {CategoryUserError, "fix the syntax of the declared packages document"},
	CodeAliasOracle:           {CategoryTransient, "check that nix is installed and on PATH"},
	CodeConfig:                {CategoryUserError, "check the configuration file"},
	CodeNotFound:              {CategoryUserError, ""},
	CodeInternal:              {CategoryPermanent, ""},
}

// CategoryOf returns the category of code. Unknown codes are permanent.
func CategoryOf(code string) string {
	if info, ok := codes[code]; ok {
		return info.category
	}
	return CategoryPermanent
}

// ErrorContext is a classified command failure.
type ErrorContext struct {
	Code      string         `json:"code"`
	Category  string         `json:"category"`
	Operation string         `json:"operation"`
	Hint      string         `json:"hint,omitempty"`
	Details   map[string]any `json:"details,omitempty"`

	// Stack is captured for internal errors only, one "func file:line"
	// entry per frame.
	Stack []string `json:"stack,omitempty"`

	Err error `json:"-"`
}

// NewErrorContext creates an ErrorContext for a failed operation. The
// category and hint follow from code.
func NewErrorContext(code, operation string) *ErrorContext {
	info, ok := codes[code]
	if !ok {
		info.category = CategoryPermanent
	}
	return &ErrorContext{
		Code:      code,
		Category:  info.category,
		Operation: operation,
		Hint:      info.hint,
	}
}

// WithStack records the caller's stack, skipping runtime frames.
func (e *ErrorContext) WithStack() *ErrorContext {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])

	frames := runtime.CallersFrames(pcs[:n])
	e.Stack = e.Stack[:0]
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			e.Stack = append(e.Stack, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return e
}

// WithDetail sets one detail, such as the attribute or URL involved.
func (e *ErrorContext) WithDetail(key string, value any) *ErrorContext {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithError attaches the underlying error.
func (e *ErrorContext) WithError(err error) *ErrorContext {
	e.Err = err
	return e
}

// IsRetryable reports whether running the command again may succeed.
func (e *ErrorContext) IsRetryable() bool {
	return e.Category == CategoryTransient
}

func (e *ErrorContext) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Operation)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Operation, e.Err)
}

func (e *ErrorContext) Unwrap() error {
	return e.Err
}

// LogValue implements slog.LogValuer. Details become a nested group with
// sorted keys.
func (e *ErrorContext) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", e.Code),
		slog.String("category", e.Category),
		slog.String("operation", e.Operation),
		slog.Bool("retryable", e.IsRetryable()),
	}
	if e.Hint != "" {
		attrs = append(attrs, slog.String("hint", e.Hint))
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		details := make([]any, 0, len(keys))
		for _, k := range keys {
			details = append(details, slog.Any(k, e.Details[k]))
		}
		attrs = append(attrs, slog.Group("details", details...))
	}
	if len(e.Stack) > 0 {
		attrs = append(attrs, slog.Any("stack", e.Stack))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}
