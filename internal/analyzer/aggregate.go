package analyzer

import "github.com/remote-claude/rcguard/internal/shell"

// Aggregate reduces per-segment verdicts to one decision. The most
// restrictive category wins; among equally severe verdicts the lowest
// segment index wins. No verdicts, or only allow verdicts, yield allow.
func Aggregate(verdicts []Verdict) Decision {
	best := Verdict{Segment: -1, Category: CategoryAllow}
	matched := false

	for _, v := range verdicts {
		if v.Category == "" {
			v.Category = CategoryAllow
		}
		sev := v.Category.Severity()
		switch {
		case !matched || sev > best.Category.Severity():
			best = v
			matched = true
		case sev == best.Category.Severity() && v.Segment < best.Segment:
			best = v
		}
	}

	if best.Category == CategoryAllow {
		return Decision{Outcome: OutcomeAllow, Category: CategoryAllow, Segment: -1}
	}
	return Decision{
		Outcome:  best.Category.Outcome(),
		Category: best.Category,
		Segment:  best.Segment,
		RuleID:   best.RuleID,
		Reason:   best.Category.label() + best.Reason,
	}
}

// Unparsable is the fail-closed decision for input the segmenter rejects.
func Unparsable() Decision {
	return Decision{
		Outcome:  OutcomeAsk,
		Category: CategoryEscalate,
		Segment:  -1,
		RuleID:   RuleUnparsable,
		Reason:   CategoryEscalate.label() + shell.ErrUnparsable.Error(),
	}
}
