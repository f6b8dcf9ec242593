// ABOUTME: Maps command failures to structured error codes
// ABOUTME: Wraps errors in observability.ErrorContext for logging and exit handling

package main

import (
	"errors"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/audit"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/cache"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/fetch"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/installed"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/pkgdb"
	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/version"
)

// classify wraps err in an ErrorContext describing operation. Already
// classified errors and errProblemsFound pass through.
func classify(operation string, err error) error {
	if err == nil || errors.Is(err, errProblemsFound) {
		return err
	}
	var ectx *observability.ErrorContext
	if errors.As(err, &ectx) {
		return err
	}

	ectx = observability.NewErrorContext(errorCode(err), operation).WithError(err)
	addDetails(ectx, err)
	if ectx.Code == observability.CodeInternal {
		ectx.WithStack()
	}
	return ectx
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, cache.ErrNoConnectivityAndNoCache):
		return observability.CodeNoCacheNoConnectivity
	case errors.Is(err, version.ErrVersionResolution):
		return observability.CodeVersionResolution
	case errors.Is(err, fetch.ErrDownload):
		return observability.CodeDownload
	case errors.Is(err, fetch.ErrDecompression):
		return observability.CodeDecompression
	case errors.Is(err, pkgdb.ErrDatabaseBuild):
		return observability.CodeDatabaseBuild
	case errors.Is(err, pkgdb.ErrSchemaInvariant), errors.Is(err, pkgdb.ErrUnsupportedSchema):
		return observability.CodeSchemaInvariant
	case errors.Is(err, installed.ErrDocumentParse):
		return observability.CodeDocumentParse
	case errors.Is(err, audit.ErrAliasOracle):
		return observability.CodeAliasOracle
	case errors.Is(err, config.ErrInvalidConfig):
		return observability.CodeConfig
	case errors.Is(err, errOptionNotFound), errors.Is(err, pkgdb.ErrNotFound):
		return observability.CodeNotFound
	default:
		return observability.CodeInternal
	}
}

// addDetails copies the fields of typed fetch and snapshot errors into ectx.
func addDetails(ectx *observability.ErrorContext, err error) {
	var dl *fetch.DownloadError
	if errors.As(err, &dl) {
		urls := make([]string, 0, len(dl.Attempts))
		for _, a := range dl.Attempts {
			urls = append(urls, observability.RedactURL(a.URL))
		}
		ectx.WithDetail("urls", urls)
	}

	var dec *fetch.DecompressionError
	if errors.As(err, &dec) {
		ectx.WithDetail("url", observability.RedactURL(dec.URL))
	}

	var schema *pkgdb.SchemaInvariantError
	if errors.As(err, &schema) {
		ectx.WithDetail("attribute", schema.Attribute).WithDetail("rows", schema.Rows)
	}
}
