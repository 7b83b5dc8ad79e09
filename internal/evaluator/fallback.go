package evaluator

import (
	"context"
	"regexp"
)

// riskyPatterns are the lexical signals the offline classifier treats as
// unsafe: explicit guarantees and promises, concrete dollar amounts,
// zero-percent financing, free-lifetime/unlimited offers, and commitments
// to match competitors. Deliberately false-positive tolerant; an
// ambiguous message costs a conversation, a missed one costs a lawsuit.
var riskyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)guarantee`),
	regexp.MustCompile(`(?i)promise`),
	regexp.MustCompile(`\$\d{1,3},?\d{3}`),
	regexp.MustCompile(`(?i)0%\s*apr`),
	regexp.MustCompile(`(?i)free.{0,15}(lifetime|unlimited)`),
	regexp.MustCompile(`(?i)will\s+match`),
}

// Heuristic is the local, network-independent classifier used when the
// remote service is unreachable.
type Heuristic struct{}

// NewHeuristic creates the fallback classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Evaluate pattern-matches the bot text only; the user utterance does not
// change what the bot is allowed to claim.
func (h *Heuristic) Evaluate(_ context.Context, botText, _ string) Verdict {
	for _, p := range riskyPatterns {
		if p.MatchString(botText) {
			return Verdict{Safe: false, Reason: ReasonRiskyKeyword}
		}
	}
	return Verdict{Safe: true, Reason: ReasonNoRiskyKeyword}
}
