package analyzer

import (
	"fmt"

	"github.com/remote-claude/rcguard/internal/normalize"
	"github.com/remote-claude/rcguard/internal/policy"
)

// Classifier assigns one verdict per segment. It holds no mutable state and
// is safe for concurrent use.
type Classifier struct {
	tiers [][]*policy.CompiledRule
}

// NewClassifier creates a classifier over a loaded catalog.
func NewClassifier(cat *policy.Catalog) *Classifier {
	c := &Classifier{}
	for _, t := range policy.Tiers {
		c.tiers = append(c.tiers, cat.Tier(t))
	}
	return c
}

// Classify returns exactly one verdict per command, in input order.
func (c *Classifier) Classify(cmds []normalize.Command) []Verdict {
	byIndex := make(map[int]*normalize.Command, len(cmds))
	for i := range cmds {
		byIndex[cmds[i].Segment.Index] = &cmds[i]
	}

	verdicts := make([]Verdict, 0, len(cmds))
	for i := range cmds {
		cmd := &cmds[i]
		v := view{cmd: cmd}
		if cmd.Segment.PipeTo >= 0 {
			v.pipeTo = byIndex[cmd.Segment.PipeTo]
		}
		if cmd.Segment.PipeFrom >= 0 {
			v.pipeFrom = byIndex[cmd.Segment.PipeFrom]
		}
		verdicts = append(verdicts, c.classify(v))
	}
	return verdicts
}

// classify walks the tiers in order and returns the first full match. An
// escalation caused by an unresolved path is held back while later tiers
// are searched, so a definite block still wins over it.
func (c *Classifier) classify(v view) Verdict {
	index := v.cmd.Segment.Index
	var pending *Verdict

	for _, rules := range c.tiers {
		for _, r := range rules {
			res := matchRule(r, v)
			switch res.kind {
			case fullMatch:
				cat := CategoryForTier(r.Tier)
				if pending != nil && pending.Category.Severity() >= cat.Severity() {
					return *pending
				}
				return verdictFor(index, cat, r, res)
			case askMatch:
				if pending == nil {
					verdict := verdictFor(index, CategoryEscalate, r, res)
					pending = &verdict
				}
			}
		}
	}
	if pending != nil {
		return *pending
	}
	return Verdict{Segment: index, Category: CategoryAllow}
}

func verdictFor(index int, cat Category, r *policy.CompiledRule, res matchResult) Verdict {
	v := Verdict{
		Segment:    index,
		Category:   cat,
		RuleID:     r.ID,
		Reason:     r.Reason,
		Unresolved: res.unresolved != "",
	}
	if res.unresolved != "" {
		v.Reason += fmt.Sprintf(" (path could not be resolved statically: %s)", res.unresolved)
	}
	if res.condErr != nil {
		v.Reason += " (condition could not be evaluated)"
	}
	return v
}
