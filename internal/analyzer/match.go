package analyzer

import (
	"github.com/remote-claude/rcguard/internal/normalize"
	"github.com/remote-claude/rcguard/internal/policy"
)

type matchKind int

const (
	noMatch matchKind = iota
	// fullMatch means the rule applies at its own tier.
	fullMatch
	// askMatch means a path predicate could only be decided by a path that
	// is unknown until run time, and the rule asked for escalation.
	askMatch
)

type matchResult struct {
	kind matchKind
	// unresolved is the raw text of the token that could not be resolved,
	// when the match rests on it.
	unresolved string
	// condErr is set when the when: condition failed to evaluate. The rule
	// is then treated as matching.
	condErr error
}

// view is a command together with its pipe neighbours.
type view struct {
	cmd      *normalize.Command
	pipeTo   *normalize.Command
	pipeFrom *normalize.Command
}

// matchRule evaluates one compiled rule against a command. All non-empty
// predicates must hold (AND logic). Cheap predicates run first; paths and
// the CEL condition run last.
func matchRule(r *policy.CompiledRule, v view) matchResult {
	cmd := v.cmd

	// --- Executable ---
	if len(r.Executables) > 0 {
		if cmd.NameDynamic || cmd.Name == "" || !anyPattern(r.Executables, cmd.Name) {
			return matchResult{}
		}
	}
	if r.Match.ExecutableDynamic && !cmd.NameDynamic {
		return matchResult{}
	}

	positionals := staticPositionals(cmd)

	// --- Subcommand ---
	if len(r.Subcommands) > 0 && !matchSubcommand(positionals, r.Subcommands) {
		return matchResult{}
	}

	// --- FlagsAll: must have ALL ---
	for _, flag := range r.Match.FlagsAll {
		if !commandHasFlag(cmd, flag) {
			return matchResult{}
		}
	}

	// --- FlagsAny: must have at least ONE ---
	if len(r.Match.FlagsAny) > 0 {
		found := false
		for _, flag := range r.Match.FlagsAny {
			if commandHasFlag(cmd, flag) {
				found = true
				break
			}
		}
		if !found {
			return matchResult{}
		}
	}

	// --- FlagsNone: must NOT have any ---
	for _, flag := range r.Match.FlagsNone {
		if commandHasFlag(cmd, flag) {
			return matchResult{}
		}
	}

	// --- ArgsAny: at least one positional matches at least one glob ---
	if len(r.ArgsAny) > 0 {
		found := false
		for _, arg := range positionals {
			if anyPattern(r.ArgsAny, arg) {
				found = true
				break
			}
		}
		if !found {
			return matchResult{}
		}
	}

	// --- ArgsNone: no positional matches any of these ---
	for _, arg := range positionals {
		if anyPattern(r.ArgsNone, arg) {
			return matchResult{}
		}
	}

	// --- ValuesRegex: positionals, option values and heredoc bodies ---
	if len(r.ValuesRegex) > 0 {
		found := false
	values:
		for _, val := range cmd.Values() {
			for _, re := range r.ValuesRegex {
				if re.MatchString(val) {
					found = true
					break values
				}
			}
		}
		if !found {
			return matchResult{}
		}
	}

	if r.Match.DynamicArgs && !cmd.HasDynamicArgs() {
		return matchResult{}
	}

	// --- Pipes ---
	if len(r.PipeTo) > 0 && !neighbourMatches(v.pipeTo, r.PipeTo) {
		return matchResult{}
	}
	if len(r.PipeFrom) > 0 && !neighbourMatches(v.pipeFrom, r.PipeFrom) {
		return matchResult{}
	}

	res := matchResult{kind: fullMatch}

	// --- Paths ---
	if len(r.PathsAny) > 0 {
		matched, unresolved := matchPaths(pathCandidates(cmd, r.Scope()), r.PathsAny)
		if !matched {
			if unresolved == "" {
				return matchResult{}
			}
			switch r.Unresolved() {
			case policy.UnresolvedIgnore:
				return matchResult{}
			case policy.UnresolvedAsk:
				res.kind = askMatch
			}
			res.unresolved = unresolved
		}
	}

	// --- When ---
	if r.When != nil {
		ok, err := r.When.Eval(celVars(v))
		if err != nil {
			res.condErr = err
			return res
		}
		if !ok {
			return matchResult{}
		}
	}
	return res
}

func anyPattern(patterns []policy.Pattern, s string) bool {
	for _, p := range patterns {
		if p.Match(s) {
			return true
		}
	}
	return false
}

// staticPositionals returns positional values known before run time.
func staticPositionals(cmd *normalize.Command) []string {
	out := make([]string, 0, len(cmd.Positionals))
	for _, t := range cmd.Positionals {
		if t.Dynamic || t.Synthetic {
			continue
		}
		out = append(out, t.Value)
	}
	return out
}

// matchSubcommand reports whether any sequence is a prefix of the leading
// positionals.
func matchSubcommand(positionals []string, seqs [][]string) bool {
	for _, seq := range seqs {
		if len(seq) > len(positionals) {
			continue
		}
		ok := true
		for i, word := range seq {
			if positionals[i] != word {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// commandHasFlag checks a flag by its own name or a known alias, so rules
// may write "r" and match "--recursive", or vice versa.
func commandHasFlag(cmd *normalize.Command, flag string) bool {
	if cmd.HasFlag(flag) {
		return true
	}
	for _, alias := range flagAliases[flag] {
		if cmd.HasFlag(alias) {
			return true
		}
	}
	return false
}

// flagAliases holds short and long spellings that mean the same thing for
// every tool that accepts them. Per-tool meanings (-f, -d, -i, -v) are not
// aliased; rules list those spellings explicitly.
var flagAliases = map[string][]string{
	"r":         {"R", "recursive"},
	"R":         {"r", "recursive"},
	"recursive": {"r", "R"},
	"q":         {"quiet"},
	"quiet":     {"q"},
	"y":         {"yes"},
	"yes":       {"y"},
	"n":         {"dry-run"},
	"dry-run":   {"n"},
}

func neighbourMatches(cmd *normalize.Command, patterns []policy.Pattern) bool {
	if cmd == nil || cmd.NameDynamic || cmd.Name == "" {
		return false
	}
	return anyPattern(patterns, cmd.Name)
}

// pathCandidates selects the tokens a paths_any predicate inspects.
func pathCandidates(cmd *normalize.Command, scope policy.PathScope) []normalize.Token {
	var out []normalize.Token
	switch scope {
	case policy.ScopeRedirects:
		for _, r := range cmd.Redirects {
			if r.Write {
				out = append(out, r.Target)
			}
		}
	case policy.ScopeLastArg:
		// An explicit target directory overrides the trailing operand.
		for _, t := range cmd.Args {
			if t.Flag && t.FlagValue != nil && (t.FlagName == "t" || t.FlagName == "target-directory") {
				out = append(out, *t.FlagValue)
			}
		}
		if len(out) == 0 && len(cmd.Positionals) > 0 {
			out = append(out, cmd.Positionals[len(cmd.Positionals)-1])
		}
	default:
		out = append(out, cmd.Positionals...)
		out = append(out, cmd.FlagValues()...)
	}
	return out
}

// matchPaths reports whether any resolved candidate matches a pattern. When
// nothing matches, it returns the raw text of the first candidate that could
// not be resolved, if any.
func matchPaths(candidates []normalize.Token, patterns []policy.PathPattern) (bool, string) {
	unresolved := ""
	for _, t := range candidates {
		if !t.Path.Candidate {
			continue
		}
		if t.Path.Unresolved {
			if unresolved == "" {
				unresolved = t.Raw
			}
			continue
		}
		if t.Path.Abs == "" {
			continue
		}
		for _, p := range patterns {
			if p.Match(t.Path.Abs) {
				return true, ""
			}
		}
	}
	return false, unresolved
}

func celVars(v view) policy.Vars {
	cmd := v.cmd
	positionals := staticPositionals(cmd)
	vars := policy.Vars{
		Name:     cmd.Name,
		Args:     positionals,
		Flags:    cmd.FlagNames(),
		Wrappers: cmd.Wrappers,
	}
	if len(positionals) > 0 {
		vars.Subcommand = positionals[0]
	}
	for _, t := range pathCandidates(cmd, policy.ScopeArgs) {
		if t.Path.Candidate && !t.Path.Unresolved && t.Path.Abs != "" {
			vars.Paths = append(vars.Paths, t.Path.Abs)
		}
	}
	if v.pipeTo != nil {
		vars.PipeTo = v.pipeTo.Name
	}
	if v.pipeFrom != nil {
		vars.PipeFrom = v.pipeFrom.Name
	}
	return vars
}
