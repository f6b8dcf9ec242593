// ABOUTME: Availability verdicts and the problem report produced by an audit
// ABOUTME: Only non-available verdicts appear in a report

package audit

import (
	"sort"
	"strings"
)

// VerdictKind classifies one installed identity.
type VerdictKind int

const (
	// Available means no problem was found.
	Available VerdictKind = iota

	// NotFoundInLatestSnapshot means the attribute is absent from the snapshot.
	NotFoundInLatestSnapshot

	// MarkedBroken means the snapshot flags the package as broken.
	MarkedBroken

	// MarkedInsecure means the snapshot flags the package as insecure.
	MarkedInsecure

	// AliasEvaluationError means the attribute is an alias that fails to evaluate.
	AliasEvaluationError
)

func (k VerdictKind) String() string {
	switch k {
	case Available:
		return "available"
	case NotFoundInLatestSnapshot:
		return "not_found"
	case MarkedBroken:
		return "broken"
	case MarkedInsecure:
		return "insecure"
	case AliasEvaluationError:
		return "alias_error"
	default:
		return "unknown"
	}
}

// Verdict is the outcome for one identity.
type Verdict struct {
	Kind VerdictKind

	// Message is the oracle's error text for AliasEvaluationError.
	Message string
}

// Message texts for database verdicts.
const (
	MessageNotFound = "Package not found in newer version of nixpkgs"
	MessageBroken   = "Package is marked as broken"
	MessageInsecure = "Package is marked as insecure"
)

// Text returns the human-readable explanation.
func (v Verdict) Text() string {
	switch v.Kind {
	case NotFoundInLatestSnapshot:
		return MessageNotFound
	case MarkedBroken:
		return MessageBroken
	case MarkedInsecure:
		return MessageInsecure
	case AliasEvaluationError:
		return v.Message
	default:
		return ""
	}
}

// Report maps identity to verdict for identities with problems.
type Report map[string]Verdict

// Identities returns the report keys in lexical order.
func (r Report) Identities() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Counts returns the number of verdicts per kind.
func (r Report) Counts() map[VerdictKind]int {
	counts := make(map[VerdictKind]int)
	for _, v := range r {
		counts[v.Kind]++
	}
	return counts
}

// CleanOracleMessage strips the evaluator's "error: " prefix and
// surrounding whitespace.
func CleanOracleMessage(stderr string) string {
	return strings.TrimSpace(strings.TrimPrefix(stderr, "error: "))
}
