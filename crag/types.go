package crag

import "context"

// Verdict is the grader's decision for one evidence item.
type Verdict int

const (
	VerdictRelevant Verdict = iota
	VerdictIrrelevant
	// VerdictUnparsed means the evaluator answered but no verdict could be read.
	VerdictUnparsed
	// VerdictError means the evaluator could not be reached.
	VerdictError
)

// String returns the string representation of Verdict
func (v Verdict) String() string {
	switch v {
	case VerdictRelevant:
		return "relevant"
	case VerdictIrrelevant:
		return "irrelevant"
	case VerdictUnparsed:
		return "unparsed"
	case VerdictError:
		return "error"
	default:
		return "unknown"
	}
}

// Keep reports whether an item with this verdict stays in the evidence.
// Only an explicit "irrelevant" drops an item.
func (v Verdict) Keep() bool { return v != VerdictIrrelevant }

// Evaluator judges whether one passage is relevant to a question.
type Evaluator interface {
	Evaluate(ctx context.Context, query string, contextText string) (Verdict, error)
}
