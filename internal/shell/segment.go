package shell

import (
	"errors"

	"mvdan.cc/sh/v3/syntax"
)

// ErrUnparsable is returned when a command cannot be statically split into
// segments: unbalanced quotes, unterminated substitutions, or nesting deeper
// than the configured maximum. Callers must treat it as "needs approval".
var ErrUnparsable = errors.New("unable to statically analyze command")

// Operator is the control operator that joins a segment to the one that
// follows it in the same statement list.
type Operator string

const (
	OpNone       Operator = ""
	OpAnd        Operator = "&&"
	OpOr         Operator = "||"
	OpSeq        Operator = ";"
	OpPipe       Operator = "|"
	OpPipeAll    Operator = "|&"
	OpBackground Operator = "&"
)

// IsPipe reports whether the operator feeds stdout of one segment into the next.
func (o Operator) IsPipe() bool { return o == OpPipe || o == OpPipeAll }

// Origin records how a segment was reached.
type Origin string

const (
	OriginTop                 Origin = "top"
	OriginSubstitution        Origin = "substitution"
	OriginProcessSubstitution Origin = "process-substitution"
	OriginInline              Origin = "inline"
)

// Redirect is a single I/O redirection attached to a segment.
type Redirect struct {
	Op      syntax.RedirOperator
	Fd      string       // explicit descriptor, e.g. "2" in 2>file
	Target  *syntax.Word // nil for heredocs without a target word
	Heredoc *syntax.Word // body of <<, <<- ; nil otherwise
}

// Segment is one simple command extracted from a shell invocation.
type Segment struct {
	Index      int
	Raw        string
	Words      []*syntax.Word
	Redirects  []Redirect
	Operator   Operator
	Origin     Origin
	Depth      int
	Background bool
	Negated    bool

	// PipeFrom and PipeTo are the indexes of the segments on the other side
	// of a pipe, or -1.
	PipeFrom int
	PipeTo   int
}

// Empty reports whether the segment has neither words nor redirects.
func (s Segment) Empty() bool { return len(s.Words) == 0 && len(s.Redirects) == 0 }
