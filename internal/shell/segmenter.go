package shell

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// DefaultMaxDepth bounds how deeply substitutions and inline scripts nest.
const DefaultMaxDepth = 4

// Segmenter splits a raw shell command into its simple commands using the
// mvdan.cc/sh bash parser, so quoting and operators are handled the way a
// shell would handle them. A Segmenter holds no per-call state and is safe
// for concurrent use.
type Segmenter struct {
	maxDepth int
}

// NewSegmenter creates a segmenter. A non-positive maxDepth selects
// DefaultMaxDepth.
func NewSegmenter(maxDepth int) *Segmenter {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Segmenter{maxDepth: maxDepth}
}

// MaxDepth returns the nesting limit in effect.
func (s *Segmenter) MaxDepth() int { return s.maxDepth }

// Split parses command and returns its segments in execution order.
// Segments produced by command or process substitution are placed before
// the segment that contains them. Inline scripts passed to a shell with -c
// follow the segment that runs them.
//
// Split never returns a partial result: any parse failure yields
// ErrUnparsable and no segments.
func (s *Segmenter) Split(command string) ([]Segment, error) {
	w := &walker{maxDepth: s.maxDepth}
	if err := w.parse(command, OriginTop, 0); err != nil {
		return nil, err
	}
	for i := range w.segs {
		w.segs[i].Index = i
	}
	return w.segs, nil
}

type walker struct {
	maxDepth int
	segs     []Segment
}

func (w *walker) parse(src string, origin Origin, depth int) error {
	if depth > w.maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d levels", ErrUnparsable, w.maxDepth)
	}
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	_, err = w.list(file.Stmts, origin, depth)
	return err
}

// list walks a statement list and returns the indexes of the segments that
// belong to it directly (not those reached through substitutions).
func (w *walker) list(stmts []*syntax.Stmt, origin Origin, depth int) ([]int, error) {
	if depth > w.maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d levels", ErrUnparsable, w.maxDepth)
	}
	var own []int
	for i, st := range stmts {
		idx, err := w.stmt(st, origin, depth)
		if err != nil {
			return nil, err
		}
		if len(idx) == 0 {
			continue
		}
		last := idx[len(idx)-1]
		switch {
		case st.Background:
			w.segs[last].Operator = OpBackground
			for _, j := range idx {
				w.segs[j].Background = true
			}
		case i < len(stmts)-1:
			w.segs[last].Operator = OpSeq
		}
		own = append(own, idx...)
	}
	return own, nil
}

func (w *walker) stmt(st *syntax.Stmt, origin Origin, depth int) ([]int, error) {
	if st == nil {
		return nil, nil
	}
	for _, r := range st.Redirs {
		if err := w.substitutions(r.Word, depth); err != nil {
			return nil, err
		}
		if err := w.substitutions(r.Hdoc, depth); err != nil {
			return nil, err
		}
	}

	var own []int
	var err error
	switch c := st.Cmd.(type) {
	case nil:
		// A bare redirection such as "> file" still truncates its target.
		if len(st.Redirs) > 0 {
			own = []int{w.emit(Segment{Raw: printNode(st), Origin: origin, Depth: depth})}
		}
	case *syntax.CallExpr:
		own, err = w.call(st, c, origin, depth)
	case *syntax.BinaryCmd:
		own, err = w.binary(c, origin, depth)
	case *syntax.Subshell:
		own, err = w.list(c.Stmts, origin, depth)
	case *syntax.Block:
		own, err = w.list(c.Stmts, origin, depth)
	case *syntax.IfClause:
		own, err = w.ifClause(c, origin, depth)
	case *syntax.WhileClause:
		own, err = w.lists(origin, depth, c.Cond, c.Do)
	case *syntax.ForClause:
		if iter, ok := c.Loop.(*syntax.WordIter); ok {
			for _, item := range iter.Items {
				if err := w.substitutions(item, depth); err != nil {
					return nil, err
				}
			}
		} else if err := w.substitutions(c.Loop, depth); err != nil {
			return nil, err
		}
		own, err = w.list(c.Do, origin, depth)
	case *syntax.CaseClause:
		if err := w.substitutions(c.Word, depth); err != nil {
			return nil, err
		}
		for _, item := range c.Items {
			for _, p := range item.Patterns {
				if err := w.substitutions(p, depth); err != nil {
					return nil, err
				}
			}
			idx, err := w.list(item.Stmts, origin, depth)
			if err != nil {
				return nil, err
			}
			own = append(own, idx...)
		}
	case *syntax.FuncDecl:
		own, err = w.stmt(c.Body, origin, depth)
	case *syntax.TimeClause:
		own, err = w.stmt(c.Stmt, origin, depth)
	case *syntax.CoprocClause:
		own, err = w.stmt(c.Stmt, origin, depth)
	case *syntax.DeclClause:
		for _, a := range c.Args {
			if err := w.substitutions(a, depth); err != nil {
				return nil, err
			}
		}
	default:
		// let, (( )), [[ ]] and friends run no program of their own but may
		// still hide substitutions.
		err = w.substitutions(c, depth)
	}
	if err != nil {
		return nil, err
	}
	if len(own) == 0 && len(st.Redirs) > 0 {
		// export, let, [[ ]] and loops over them run no program, but their
		// redirections still open and truncate files.
		own = []int{w.emit(Segment{Raw: printNode(st), Origin: origin, Depth: depth})}
	}

	if len(st.Redirs) > 0 || st.Negated {
		redirs := convertRedirects(st.Redirs)
		for _, i := range own {
			w.segs[i].Redirects = append(w.segs[i].Redirects, redirs...)
			w.segs[i].Negated = w.segs[i].Negated || st.Negated
		}
	}
	return own, nil
}

func (w *walker) call(st *syntax.Stmt, c *syntax.CallExpr, origin Origin, depth int) ([]int, error) {
	for _, a := range c.Assigns {
		if err := w.substitutions(a, depth); err != nil {
			return nil, err
		}
	}
	for _, word := range c.Args {
		if err := w.substitutions(word, depth); err != nil {
			return nil, err
		}
	}
	if len(c.Args) == 0 && len(st.Redirs) == 0 {
		// Plain assignment: nothing is executed.
		return nil, nil
	}
	idx := w.emit(Segment{
		Raw:    printNode(st),
		Words:  c.Args,
		Origin: origin,
		Depth:  depth,
	})
	script, ok := inlineScript(c.Args)
	if !ok && readsStdin(c.Args) {
		script, ok = stdinRedirectScript(st.Redirs)
	}
	if ok {
		if err := w.parse(script, OriginInline, depth+1); err != nil {
			return nil, err
		}
	}
	return []int{idx}, nil
}

func (w *walker) binary(c *syntax.BinaryCmd, origin Origin, depth int) ([]int, error) {
	left, err := w.stmt(c.X, origin, depth)
	if err != nil {
		return nil, err
	}
	right, err := w.stmt(c.Y, origin, depth)
	if err != nil {
		return nil, err
	}
	op := binaryOperator(c.Op)
	if len(left) > 0 {
		w.segs[left[len(left)-1]].Operator = op
	}
	if op.IsPipe() && len(left) > 0 && len(right) > 0 {
		from, to := left[len(left)-1], right[0]
		w.segs[from].PipeTo = to
		w.segs[to].PipeFrom = from
		if script, ok := pipedScript(c.X, c.Y); ok {
			if err := w.parse(script, OriginInline, depth+1); err != nil {
				return nil, err
			}
		}
	}
	return append(left, right...), nil
}

func (w *walker) ifClause(c *syntax.IfClause, origin Origin, depth int) ([]int, error) {
	var own []int
	for clause := c; clause != nil; clause = clause.Else {
		idx, err := w.lists(origin, depth, clause.Cond, clause.Then)
		if err != nil {
			return nil, err
		}
		own = append(own, idx...)
	}
	return own, nil
}

func (w *walker) lists(origin Origin, depth int, lists ...[]*syntax.Stmt) ([]int, error) {
	var own []int
	for _, l := range lists {
		idx, err := w.list(l, origin, depth)
		if err != nil {
			return nil, err
		}
		own = append(own, idx...)
	}
	return own, nil
}

// substitutions segments every command or process substitution found under
// node, one nesting level deeper than depth.
func (w *walker) substitutions(node syntax.Node, depth int) error {
	if node == nil {
		return nil
	}
	if word, ok := node.(*syntax.Word); ok && word == nil {
		return nil
	}
	var err error
	syntax.Walk(node, func(n syntax.Node) bool {
		if err != nil {
			return false
		}
		switch x := n.(type) {
		case *syntax.CmdSubst:
			_, err = w.list(x.Stmts, OriginSubstitution, depth+1)
			return false
		case *syntax.ProcSubst:
			_, err = w.list(x.Stmts, OriginProcessSubstitution, depth+1)
			return false
		}
		return true
	})
	return err
}

func (w *walker) emit(seg Segment) int {
	seg.PipeFrom, seg.PipeTo = -1, -1
	w.segs = append(w.segs, seg)
	return len(w.segs) - 1
}

func convertRedirects(redirs []*syntax.Redirect) []Redirect {
	out := make([]Redirect, 0, len(redirs))
	for _, r := range redirs {
		rd := Redirect{Op: r.Op, Target: r.Word, Heredoc: r.Hdoc}
		if r.N != nil {
			rd.Fd = r.N.Value
		}
		out = append(out, rd)
	}
	return out
}

func binaryOperator(op syntax.BinCmdOperator) Operator {
	switch op {
	case syntax.AndStmt:
		return OpAnd
	case syntax.OrStmt:
		return OpOr
	case syntax.Pipe:
		return OpPipe
	case syntax.PipeAll:
		return OpPipeAll
	}
	return OpSeq
}

// ---------------------------------------------------------------------------
// Inline scripts
// ---------------------------------------------------------------------------

var shellInterpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
	"ash": true, "mksh": true, "busybox": true,
}

// launchers may precede a shell interpreter without changing what it runs.
var launchers = map[string]bool{
	"sudo": true, "doas": true, "env": true, "nice": true, "nohup": true,
	"time": true, "command": true, "exec": true, "timeout": true,
	"stdbuf": true, "ionice": true, "xargs": true, "builtin": true,
}

// shellOperands returns the words that follow a shell interpreter, skipping
// launchers such as sudo or env in front of it.
func shellOperands(args []*syntax.Word) ([]*syntax.Word, bool) {
	for i, word := range args {
		v := Unquote(word)
		if v.Dynamic {
			return nil, false
		}
		name := path.Base(v.Value)
		if shellInterpreters[name] {
			rest := args[i+1:]
			if name == "busybox" && len(rest) > 0 {
				rest = rest[1:]
			}
			return rest, true
		}
		if i == 0 && !launchers[name] {
			return nil, false
		}
	}
	return nil, false
}

// xargsSubstitutes reports whether an xargs launcher rewrites the words after
// it with -I or --replace, so the script text is only known at run time.
func xargsSubstitutes(launch []*syntax.Word) bool {
	seen := false
	for _, word := range launch {
		v, _ := Literal(word)
		if path.Base(v) == "xargs" {
			seen = true
			continue
		}
		if seen && (strings.HasPrefix(v, "-I") || strings.HasPrefix(v, "-i") || strings.HasPrefix(v, "--replace")) {
			return true
		}
	}
	return false
}

// inlineScript returns the literal script handed to a shell interpreter via
// -c. A script that is not a static literal is left to the classifier, which
// treats computed shell input as dynamic code.
func inlineScript(args []*syntax.Word) (string, bool) {
	rest, ok := shellOperands(args)
	if !ok || xargsSubstitutes(args[:len(args)-len(rest)]) {
		return "", false
	}
	for i := 0; i < len(rest); i++ {
		v := Unquote(rest[i])
		if v.Dynamic {
			return "", false
		}
		if isShellOptionWithValue(v.Value) {
			i++
			continue
		}
		if !strings.HasPrefix(v.Value, "-") && !strings.HasPrefix(v.Value, "+") ||
			v.Value == "-" || v.Value == "--" {
			// First operand is a script file, not a -c string.
			return "", false
		}
		if strings.HasPrefix(v.Value, "--") || strings.HasPrefix(v.Value, "+") {
			continue
		}
		if strings.ContainsRune(v.Value[1:], 'c') {
			if i+1 >= len(rest) {
				return "", false
			}
			script := Unquote(rest[i+1])
			if script.Dynamic {
				return "", false
			}
			return script.Value, true
		}
	}
	return "", false
}

func isShellOptionWithValue(s string) bool {
	return s == "-o" || s == "+o" || s == "-O" || s == "+O"
}

// readsStdin reports whether args run a shell interpreter that takes its
// script from standard input: no -c string and no script file operand,
// or an explicit "-" or -s.
func readsStdin(args []*syntax.Word) bool {
	rest, ok := shellOperands(args)
	if !ok {
		return false
	}
	for i := 0; i < len(rest); i++ {
		v := Unquote(rest[i])
		switch {
		case v.Dynamic:
			return false
		case isShellOptionWithValue(v.Value):
			i++
		case v.Value == "-":
			return true
		case v.Value == "--":
			return i+1 == len(rest)
		case strings.HasPrefix(v.Value, "--"), strings.HasPrefix(v.Value, "+"):
		case strings.HasPrefix(v.Value, "-"):
			if strings.ContainsRune(v.Value[1:], 'c') {
				return false
			}
			if strings.ContainsRune(v.Value[1:], 's') {
				return true
			}
		default:
			return false
		}
	}
	return true
}

// stdinRedirectScript returns the script a heredoc or here-string feeds to
// the command. Text the shell would expand is kept as written, so its
// parameter expansions and substitutions stay dynamic when parsed.
func stdinRedirectScript(redirs []*syntax.Redirect) (string, bool) {
	for i := len(redirs) - 1; i >= 0; i-- {
		r := redirs[i]
		switch r.Op {
		case syntax.Hdoc, syntax.DashHdoc:
			if r.Hdoc == nil {
				return "", false
			}
			return printNode(r.Hdoc), true
		case syntax.WordHdoc:
			if v := Unquote(r.Word); !v.Dynamic {
				return v.Value, true
			}
			return Raw(r.Word), true
		case syntax.RdrIn, syntax.RdrInOut, syntax.DplIn:
			// stdin comes from a file or descriptor.
			return "", false
		}
	}
	return "", false
}

// pipedScript returns the text an echo or printf of static arguments pipes
// into a shell that reads its script from stdin.
func pipedScript(x, y *syntax.Stmt) (string, bool) {
	producer, ok := x.Cmd.(*syntax.CallExpr)
	if !ok || len(producer.Args) == 0 || len(x.Redirs) > 0 {
		return "", false
	}
	consumer, ok := y.Cmd.(*syntax.CallExpr)
	if !ok || !readsStdin(consumer.Args) {
		return "", false
	}
	for _, word := range consumer.Args {
		// xargs turns piped text into arguments, not a script.
		if v, _ := Literal(word); path.Base(v) == "xargs" {
			return "", false
		}
	}
	if _, redirected := stdinRedirectScript(y.Redirs); redirected {
		return "", false
	}
	var words []string
	for _, word := range producer.Args {
		v := Unquote(word)
		if v.Dynamic {
			return "", false
		}
		words = append(words, v.Value)
	}
	switch words[0] {
	case "echo":
		args := words[1:]
		for len(args) > 0 && (args[0] == "-n" || args[0] == "-e" || args[0] == "-E") {
			args = args[1:]
		}
		return strings.Join(args, " "), true
	case "printf":
		// A single format string without directives prints as itself.
		if len(words) != 2 || strings.Contains(words[1], "%") {
			return "", false
		}
		return strings.ReplaceAll(words[1], `\n`, "\n"), true
	}
	return "", false
}

// Raw returns the source text of a word as the shell would print it.
func Raw(w *syntax.Word) string {
	if w == nil {
		return ""
	}
	return printNode(w)
}

func printNode(node syntax.Node) string {
	var buf bytes.Buffer
	if err := syntax.NewPrinter().Print(&buf, node); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}
