// ABOUTME: Alias oracle contract consulted before the snapshot lookup
// ABOUTME: Separates invocation failures from evaluation failures

package audit

import (
	"context"
	"errors"
)

// ErrAliasOracle matches failures to invoke the oracle itself.
var ErrAliasOracle = errors.New("alias oracle invocation failed")

// Evaluation is the result of evaluating an alias.
type Evaluation struct {
	// Failed reports whether evaluation failed.
	Failed bool

	// Message is the evaluator's raw error output when Failed.
	Message string
}

// AliasOracle answers whether an attribute is an alias and whether it
// currently evaluates.
type AliasOracle interface {
	IsKnownAlias(ctx context.Context, attr string) (bool, error)
	Evaluate(ctx context.Context, attr string) (Evaluation, error)
}
