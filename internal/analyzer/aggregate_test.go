package analyzer

import (
	"strings"
	"testing"
)

func TestAggregate_MostRestrictiveWins(t *testing.T) {
	verdicts := []Verdict{
		{Segment: 0, Category: CategoryEscalate, RuleID: "e1", Reason: "escalate reason"},
		{Segment: 1, Category: CategoryBlock, RuleID: "b1", Reason: "block reason"},
		{Segment: 2, Category: CategoryAllow},
	}
	d := Aggregate(verdicts)
	if d.Outcome != OutcomeBlock || d.RuleID != "b1" || d.Segment != 1 {
		t.Errorf("expected block b1 at segment 1, got %+v", d)
	}
	if d.Reason != "[blocked] block reason" {
		t.Errorf("expected category-labelled reason, got %q", d.Reason)
	}
}

func TestAggregate_TieGoesToLowestSegment(t *testing.T) {
	verdicts := []Verdict{
		{Segment: 3, Category: CategoryBlock, RuleID: "late"},
		{Segment: 1, Category: CategorySelfProtect, RuleID: "early"},
		{Segment: 2, Category: CategoryBlock, RuleID: "middle"},
	}
	d := Aggregate(verdicts)
	if d.RuleID != "early" || d.Category != CategorySelfProtect || d.Outcome != OutcomeBlock {
		t.Errorf("expected self_protect early, got %+v", d)
	}
	if !strings.HasPrefix(d.Reason, "[self-protection] ") {
		t.Errorf("expected self-protection label, got %q", d.Reason)
	}
}

func TestAggregate_WholeCommandVerdict(t *testing.T) {
	verdicts := []Verdict{
		{Segment: 0, Category: CategoryEscalate, RuleID: "terraform"},
		{Segment: -1, Category: CategoryEscalate, RuleID: RuleUnicodeObfuscation},
	}
	d := Aggregate(verdicts)
	if d.RuleID != RuleUnicodeObfuscation || d.Outcome != OutcomeAsk {
		t.Errorf("expected whole-command verdict first, got %+v", d)
	}
	if !strings.HasPrefix(d.Reason, "[needs approval] ") {
		t.Errorf("expected needs-approval label, got %q", d.Reason)
	}
}

func TestAggregate_NoVerdicts(t *testing.T) {
	for _, verdicts := range [][]Verdict{nil, {{Segment: 0, Category: CategoryAllow}}, {{Segment: 0}}} {
		d := Aggregate(verdicts)
		if d.Outcome != OutcomeAllow || d.Category != CategoryAllow || d.RuleID != "" {
			t.Errorf("verdicts %+v: expected allow, got %+v", verdicts, d)
		}
	}
}

func TestUnparsable(t *testing.T) {
	d := Unparsable()
	if d.Outcome != OutcomeAsk || d.RuleID != RuleUnparsable || d.Category != CategoryEscalate {
		t.Errorf("expected ask unparsable, got %+v", d)
	}
	if !strings.Contains(d.Reason, "unable to statically analyze command") {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestCategory_OutcomeAndSeverity(t *testing.T) {
	tests := []struct {
		category Category
		outcome  Outcome
		severity int
	}{
		{CategorySelfProtect, OutcomeBlock, 3},
		{CategoryBlock, OutcomeBlock, 3},
		{CategoryEscalate, OutcomeAsk, 2},
		{CategoryAllow, OutcomeAllow, 1},
	}
	for _, tt := range tests {
		if got := tt.category.Outcome(); got != tt.outcome {
			t.Errorf("category %s: expected outcome %s, got %s", tt.category, tt.outcome, got)
		}
		if got := tt.category.Severity(); got != tt.severity {
			t.Errorf("category %s: expected severity %d, got %d", tt.category, tt.severity, got)
		}
	}
}
