package policy

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled glob. Argument and executable patterns are matched
// without separators so that "*" spans "/"; path patterns use "/" as the
// separator so that only "**" crosses directories.
type Pattern struct {
	Raw string
	g   glob.Glob
}

// Match reports whether s matches the pattern.
func (p Pattern) Match(s string) bool { return p.g.Match(s) }

// PathPattern is a compiled absolute-path glob.
type PathPattern struct {
	Raw      string // as written, before ~ expansion
	Expanded string
	g        glob.Glob
}

// Match reports whether the absolute path p matches.
func (pp PathPattern) Match(p string) bool { return pp.g.Match(p) }

// CompiledRule is a Rule with every predicate compiled. It is immutable.
type CompiledRule struct {
	Rule
	// Position is the rule's index in catalog order.
	Position int

	Executables  []Pattern
	Subcommands  [][]string
	ArgsAny      []Pattern
	ArgsNone     []Pattern
	ValuesRegex  []*regexp.Regexp
	PathsAny     []PathPattern
	PipeTo       []Pattern
	PipeFrom     []Pattern
	When         *Condition
	onUnresolved OnUnresolved
	scope        PathScope
}

// Unresolved returns the effective on_unresolved mode.
func (r *CompiledRule) Unresolved() OnUnresolved { return r.onUnresolved }

// Scope returns the effective path scope.
func (r *CompiledRule) Scope() PathScope { return r.scope }

func compileRule(r Rule, position int, protected []PathPattern, home string, env *celEnv) (*CompiledRule, error) {
	cr := &CompiledRule{
		Rule:         r,
		Position:     position,
		onUnresolved: r.OnUnresolved,
		scope:        r.Match.PathScope,
	}
	if cr.onUnresolved == "" {
		cr.onUnresolved = UnresolvedMatch
	}
	if cr.scope == "" {
		cr.scope = ScopeArgs
	}
	m := r.Match

	var err error
	if cr.Executables, err = compilePatterns(m.Executable); err != nil {
		return nil, fmt.Errorf("executable: %w", err)
	}
	for _, sub := range m.Subcommand {
		fields := strings.Fields(sub)
		if len(fields) == 0 {
			return nil, fmt.Errorf("subcommand: empty entry")
		}
		cr.Subcommands = append(cr.Subcommands, fields)
	}
	if cr.ArgsAny, err = compilePatterns(m.ArgsAny); err != nil {
		return nil, fmt.Errorf("args_any: %w", err)
	}
	if cr.ArgsNone, err = compilePatterns(m.ArgsNone); err != nil {
		return nil, fmt.Errorf("args_none: %w", err)
	}
	for _, expr := range m.ValuesRegex {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("values_regex %q: %w", expr, err)
		}
		cr.ValuesRegex = append(cr.ValuesRegex, re)
	}
	for _, raw := range m.PathsAny {
		if raw == ProtectedToken {
			cr.PathsAny = append(cr.PathsAny, protected...)
			continue
		}
		pp, err := compilePathPattern(raw, home)
		if err != nil {
			return nil, fmt.Errorf("paths_any: %w", err)
		}
		cr.PathsAny = append(cr.PathsAny, pp)
	}
	if cr.PipeTo, err = compilePatterns(m.PipeTo); err != nil {
		return nil, fmt.Errorf("pipe_to: %w", err)
	}
	if cr.PipeFrom, err = compilePatterns(m.PipeFrom); err != nil {
		return nil, fmt.Errorf("pipe_from: %w", err)
	}
	if m.When != "" {
		if cr.When, err = env.compile(m.When); err != nil {
			return nil, fmt.Errorf("when: %w", err)
		}
	}
	return cr, nil
}

func compilePatterns(raw []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(raw))
	for _, r := range raw {
		if r == "" {
			return nil, fmt.Errorf("empty pattern")
		}
		g, err := glob.Compile(r)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", r, err)
		}
		out = append(out, Pattern{Raw: r, g: g})
	}
	return out, nil
}

// compilePathPattern expands a leading ~ against home and compiles the
// result with "/" as separator. Patterns must be absolute after expansion;
// a "**/" prefix matches at any depth.
func compilePathPattern(raw, home string) (PathPattern, error) {
	expanded := raw
	if raw == "~" || strings.HasPrefix(raw, "~/") {
		if home == "" {
			return PathPattern{}, fmt.Errorf("pattern %q needs a home directory", raw)
		}
		expanded = home + raw[1:]
	}
	if !strings.HasPrefix(expanded, "/") && !strings.HasPrefix(expanded, "**") {
		return PathPattern{}, fmt.Errorf("pattern %q is not absolute", raw)
	}
	if !strings.ContainsAny(expanded, "*?[{") {
		expanded = path.Clean(expanded)
	}
	g, err := glob.Compile(expanded, '/')
	if err != nil {
		return PathPattern{}, fmt.Errorf("pattern %q: %w", raw, err)
	}
	return PathPattern{Raw: raw, Expanded: expanded, g: g}, nil
}
