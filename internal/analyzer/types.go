// Package analyzer classifies normalized command segments against the rule
// catalog and aggregates the per-segment verdicts into one decision.
package analyzer

import "github.com/remote-claude/rcguard/internal/policy"

// Category is the classification of one segment or of a whole invocation.
type Category string

const (
	CategoryAllow       Category = "allow"
	CategoryEscalate    Category = "escalate"
	CategoryBlock       Category = "block"
	CategorySelfProtect Category = "self_protect"
)

// CategoryForTier maps a rule tier to the category its matches produce.
func CategoryForTier(t policy.Tier) Category {
	switch t {
	case policy.TierSelfProtect:
		return CategorySelfProtect
	case policy.TierBlock:
		return CategoryBlock
	case policy.TierEscalate:
		return CategoryEscalate
	}
	return CategoryAllow
}

// Severity orders categories. self_protect and block share the top rank.
func (c Category) Severity() int {
	switch c {
	case CategorySelfProtect, CategoryBlock:
		return 3
	case CategoryEscalate:
		return 2
	case CategoryAllow:
		return 1
	default:
		return 0
	}
}

// Outcome is the externally visible decision.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeBlock Outcome = "block"
	OutcomeAsk   Outcome = "ask"
)

// Outcome maps the category to what the host should do.
func (c Category) Outcome() Outcome {
	switch c {
	case CategorySelfProtect, CategoryBlock:
		return OutcomeBlock
	case CategoryEscalate:
		return OutcomeAsk
	}
	return OutcomeAllow
}

// label is the reason prefix shown to the user.
func (c Category) label() string {
	switch c {
	case CategorySelfProtect:
		return "[self-protection] "
	case CategoryBlock:
		return "[blocked] "
	case CategoryEscalate:
		return "[needs approval] "
	}
	return ""
}

// Verdict is the classification of one segment. Segment -1 denotes a
// whole-command verdict.
type Verdict struct {
	Segment  int
	Category Category
	RuleID   string
	Reason   string
	// Unresolved is set when the verdict rests on a path that could not be
	// resolved statically.
	Unresolved bool
}

// Decision is the single aggregated result of an invocation.
type Decision struct {
	Outcome  Outcome
	Category Category
	Segment  int
	RuleID   string
	Reason   string
}

// Rule ids of decisions that are not produced by catalog rules.
const (
	RuleUnparsable         = "unparsable"
	RuleUnicodeObfuscation = "unicode-obfuscation"
)
