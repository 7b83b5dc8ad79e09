// Package evaluator decides whether a bot message is safe to leave on
// screen. The primary path asks the remote evaluation service under a
// hard deadline; every failure mode degrades to a deterministic verdict,
// so callers never see an error.
package evaluator

import "context"

// Verdict is the outcome of a safety evaluation.
type Verdict struct {
	Safe   bool
	Reason string
}

// Evaluator produces a verdict for a bot message and the user message
// that prompted it. Implementations must respect ctx and always return.
type Evaluator interface {
	Evaluate(ctx context.Context, botText, userText string) Verdict
}

// Reasons attached to verdicts that were not produced by the remote
// service. Kept stable because they end up in audit records.
const (
	ReasonInvalidResponse = "Invalid response structure"
	ReasonNoReason        = "No reason provided"
	ReasonRiskyKeyword    = "Risky keyword detected"
	ReasonNoRiskyKeyword  = "No risky keywords"
)
