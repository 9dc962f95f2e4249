// Package normalize turns a shell segment into a canonical command: the real
// executable behind any wrappers, parsed flags, positional arguments, and
// statically resolved path candidates.
package normalize

import (
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/remote-claude/rcguard/internal/shell"
)

// Env is the context paths are resolved against.
type Env struct {
	Cwd  string
	Home string
}

// PathInfo annotates a token that may name a filesystem path.
type PathInfo struct {
	// Candidate is set for every positional, flag value and redirect target.
	Candidate bool
	// Syntactic is set when the text itself looks like a path or follows a
	// path-bearing option.
	Syntactic bool
	// Abs is the cleaned absolute path. For glob tokens it is the static
	// directory the pattern expands under.
	Abs string
	// Unresolved is set when the path depends on run-time state (variables,
	// substitutions, ~user, or an unknown working directory).
	Unresolved bool
}

// Token is one normalized argument.
type Token struct {
	Raw       string
	Value     string
	Flag      bool
	FlagName  string
	FlagValue *Token
	Dynamic   bool
	Glob      bool
	// Synthetic marks arguments the command receives from elsewhere, such
	// as the stdin-supplied operands of xargs.
	Synthetic bool
	Path      PathInfo
}

// RedirectTarget is a normalized redirection.
type RedirectTarget struct {
	Op     string
	Write  bool
	Target Token
}

// Command is a normalized segment.
type Command struct {
	Segment     shell.Segment
	Name        string
	NameDynamic bool
	Wrappers    []string
	// Args holds every argument token in order. Combined short options
	// ("-rf") appear as one token per option.
	Args        []Token
	Positionals []Token
	Redirects   []RedirectTarget
	Heredocs    []string
}

// Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	valueFlags     flagSet
	pathFlags      flagSet
	singleDashLong map[string]bool
}

// New creates a normalizer from option tables, typically
// DefaultTables().Merge(catalogTables).
func New(t Tables) *Normalizer {
	n := &Normalizer{
		valueFlags:     newFlagSet(t.ValueFlags),
		pathFlags:      newFlagSet(t.PathFlags),
		singleDashLong: make(map[string]bool, len(t.SingleDashLong)),
	}
	for _, exe := range t.SingleDashLong {
		n.singleDashLong[exe] = true
	}
	return n
}

// Normalize canonicalizes one segment. It never fails: anything it cannot
// know statically is marked Dynamic or Unresolved.
func (n *Normalizer) Normalize(seg shell.Segment, env Env) Command {
	cmd := Command{Segment: seg}

	words := make([]word, len(seg.Words))
	for i, w := range seg.Words {
		words[i] = word{WordValue: shell.Unquote(w), raw: shell.Raw(w)}
	}

	i, stdinArgs := 0, false
	var replace []string
	for i < len(words) {
		next, name, ok := unwrap(words, i)
		if !ok {
			break
		}
		cmd.Wrappers = append(cmd.Wrappers, name)
		if name == "xargs" {
			stdinArgs = true
			if r, ok := xargsReplace(words[i+1 : next]); ok {
				replace = append(replace, r)
			}
		}
		i = next
	}
	// Words holding an xargs -I replace string are filled in from stdin.
	for k := i; k < len(words); k++ {
		for _, r := range replace {
			if strings.Contains(words[k].Value, r) {
				words[k].Dynamic = true
			}
		}
	}

	if i < len(words) {
		head := words[i]
		if head.Dynamic {
			cmd.NameDynamic = true
			cmd.Name = head.Value
		} else {
			cmd.Name = path.Base(head.Value)
			if head.Value == "" {
				cmd.Name = ""
			}
		}
		n.parseArgs(&cmd, words[i+1:], env)
	}

	if stdinArgs {
		tok := Token{
			Raw:       "<stdin>",
			Dynamic:   true,
			Synthetic: true,
			Path:      PathInfo{Candidate: true, Unresolved: true},
		}
		cmd.Args = append(cmd.Args, tok)
		cmd.Positionals = append(cmd.Positionals, tok)
	}

	n.redirects(&cmd, seg.Redirects, env)
	return cmd
}

type word struct {
	shell.WordValue
	raw string
}

func (n *Normalizer) parseArgs(cmd *Command, words []word, env Env) {
	exe := cmd.Name
	endOpts := false
	for k := 0; k < len(words); k++ {
		w := words[k]
		v := w.Value

		if endOpts || w.Dynamic || !strings.HasPrefix(v, "-") || v == "-" {
			tok := n.positional(w, env)
			cmd.Args = append(cmd.Args, tok)
			cmd.Positionals = append(cmd.Positionals, tok)
			continue
		}
		if v == "--" {
			endOpts = true
			continue
		}

		// takeValue consumes the next word as the value of spelling.
		takeValue := func(spelling string) *Token {
			if k+1 >= len(words) {
				return nil
			}
			k++
			val := n.flagValue(exe, spelling, words[k], env)
			return &val
		}

		long := strings.HasPrefix(v, "--") || n.singleDashLong[exe]
		if long {
			spelling, value, hasValue := strings.Cut(v, "=")
			tok := Token{Raw: w.raw, Value: v, Flag: true, FlagName: strings.TrimLeft(spelling, "-")}
			switch {
			case hasValue:
				val := n.flagValue(exe, spelling, word{WordValue: shell.WordValue{Value: value, Tilde: strings.HasPrefix(value, "~")}, raw: value}, env)
				tok.FlagValue = &val
			case n.valueFlags.has(exe, spelling):
				tok.FlagValue = takeValue(spelling)
			}
			cmd.Args = append(cmd.Args, tok)
			continue
		}

		if n.valueFlags.has(exe, v) {
			tok := Token{Raw: w.raw, Value: v, Flag: true, FlagName: v[1:]}
			tok.FlagValue = takeValue(v)
			cmd.Args = append(cmd.Args, tok)
			continue
		}

		// Combined short options. An option that takes a value ends the
		// group; the rest of the word (or the next word) is its value.
		letters := v[1:]
		for p, r := range letters {
			name := string(r)
			tok := Token{Raw: w.raw, Value: v, Flag: true, FlagName: name}
			if n.valueFlags.has(exe, "-"+name) {
				if rest := letters[p+len(name):]; rest != "" {
					val := n.flagValue(exe, "-"+name, word{WordValue: shell.WordValue{Value: rest}, raw: rest}, env)
					tok.FlagValue = &val
				} else {
					tok.FlagValue = takeValue("-" + name)
				}
				cmd.Args = append(cmd.Args, tok)
				break
			}
			cmd.Args = append(cmd.Args, tok)
		}
	}
}

func (n *Normalizer) positional(w word, env Env) Token {
	tok := Token{Raw: w.raw, Value: w.Value, Dynamic: w.Dynamic, Glob: w.Glob}
	tok.Path = resolveToken(w.WordValue, env)
	tok.Path.Syntactic = !w.Dynamic && looksLikePath(w.Value)

	// key=value operands (dd of=/dev/sda) carry the path in the value.
	if !w.Dynamic && !w.Glob {
		if key, value, ok := strings.Cut(w.Value, "="); ok && isKey(key) && value != "" {
			tok.Path = resolveToken(shell.WordValue{Value: value, Tilde: strings.HasPrefix(value, "~")}, env)
			tok.Path.Syntactic = looksLikePath(value)
		}
	}
	return tok
}

func (n *Normalizer) flagValue(exe, spelling string, w word, env Env) Token {
	tok := Token{Raw: w.raw, Value: w.Value, Dynamic: w.Dynamic, Glob: w.Glob}
	tok.Path = resolveToken(w.WordValue, env)
	tok.Path.Syntactic = n.pathFlags.has(exe, spelling) || (!w.Dynamic && looksLikePath(w.Value))
	return tok
}

func (n *Normalizer) redirects(cmd *Command, redirs []shell.Redirect, env Env) {
	for _, r := range redirs {
		switch r.Op {
		case syntax.Hdoc, syntax.DashHdoc:
			cmd.Heredocs = append(cmd.Heredocs, shell.Unquote(r.Heredoc).Value)
			continue
		case syntax.WordHdoc:
			cmd.Heredocs = append(cmd.Heredocs, shell.Unquote(r.Target).Value)
			continue
		}
		if r.Target == nil {
			continue
		}
		w := word{WordValue: shell.Unquote(r.Target), raw: shell.Raw(r.Target)}
		write := isWriteRedirect(r.Op)
		if r.Op == syntax.DplOut || r.Op == syntax.DplIn {
			// >&2 and <&0 duplicate descriptors; only ">& file" names a file.
			if w.Dynamic || isDescriptor(w.Value) {
				continue
			}
			write = r.Op == syntax.DplOut
		}
		tok := Token{Raw: w.raw, Value: w.Value, Dynamic: w.Dynamic, Glob: w.Glob}
		tok.Path = resolveToken(w.WordValue, env)
		tok.Path.Syntactic = true
		cmd.Redirects = append(cmd.Redirects, RedirectTarget{Op: r.Op.String(), Write: write, Target: tok})
	}
}

func isWriteRedirect(op syntax.RedirOperator) bool {
	switch op {
	case syntax.RdrOut, syntax.AppOut, syntax.ClbOut, syntax.RdrInOut, syntax.RdrAll, syntax.AppAll:
		return true
	}
	return false
}

func isDescriptor(s string) bool {
	if s == "-" {
		return true
	}
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isKey(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Command accessors used by the classifier
// ---------------------------------------------------------------------------

// HasFlag reports whether the command carries the option name.
func (c Command) HasFlag(name string) bool {
	for _, t := range c.Args {
		if t.Flag && t.FlagName == name {
			return true
		}
	}
	return false
}

// FlagNames returns every option name in order of appearance.
func (c Command) FlagNames() []string {
	var out []string
	for _, t := range c.Args {
		if t.Flag {
			out = append(out, t.FlagName)
		}
	}
	return out
}

// FlagValues returns the values attached to options.
func (c Command) FlagValues() []Token {
	var out []Token
	for _, t := range c.Args {
		if t.Flag && t.FlagValue != nil {
			out = append(out, *t.FlagValue)
		}
	}
	return out
}

// PositionalValues returns the dequoted positional values.
func (c Command) PositionalValues() []string {
	out := make([]string, 0, len(c.Positionals))
	for _, t := range c.Positionals {
		if t.Synthetic {
			continue
		}
		out = append(out, t.Value)
	}
	return out
}

// Values returns every static text the command consumes: positionals, option
// values and heredoc bodies.
func (c Command) Values() []string {
	out := c.PositionalValues()
	for _, t := range c.FlagValues() {
		out = append(out, t.Value)
	}
	return append(out, c.Heredocs...)
}

// HasDynamicArgs reports whether any positional or option value is only
// known at run time.
func (c Command) HasDynamicArgs() bool {
	for _, t := range c.Positionals {
		if t.Dynamic && !t.Synthetic {
			return true
		}
	}
	for _, t := range c.FlagValues() {
		if t.Dynamic {
			return true
		}
	}
	return false
}
