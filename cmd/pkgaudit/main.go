// ABOUTME: Main entry point for the pkgaudit CLI
// ABOUTME: Initializes cobra root command and maps failures to exit codes

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/observability"
)

// Version information (set by ldflags).
var (
	buildVersion = "dev"
	gitSHA       = "unknown"
	buildTime    = "unknown"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitProblems = 2
)

// errProblemsFound ends an audit run that found problems with
// --fail-on-problems set.
var errProblemsFound = errors.New("installed packages have problems")

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		code := exitCode(err)
		if code != exitProblems {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			var ectx *observability.ErrorContext
			if errors.As(err, &ectx) && ectx.Hint != "" {
				fmt.Fprintf(os.Stderr, "Hint: %s\n", ectx.Hint)
			}
		}
		os.Exit(code)
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errProblemsFound):
		return exitProblems
	default:
		return exitFailure
	}
}
