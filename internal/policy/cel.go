package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

const (
	// maxExpressionLength caps the size of a when: expression.
	maxExpressionLength = 1024
	// maxCostBudget bounds the runtime cost of one evaluation.
	maxCostBudget = 10_000
)

// Condition is a compiled when: expression. Programs are safe for
// concurrent use.
type Condition struct {
	Expr string
	prg  cel.Program
}

// Vars is the activation a Condition is evaluated against.
type Vars struct {
	Name       string
	Subcommand string
	Args       []string
	Flags      []string
	Paths      []string
	Wrappers   []string
	PipeTo     string
	PipeFrom   string
}

// Eval evaluates the condition.
func (c *Condition) Eval(v Vars) (bool, error) {
	out, _, err := c.prg.Eval(map[string]any{
		"name":       v.Name,
		"subcommand": v.Subcommand,
		"args":       nonNil(v.Args),
		"flags":      nonNil(v.Flags),
		"paths":      nonNil(v.Paths),
		"wrappers":   nonNil(v.Wrappers),
		"pipe_to":    v.PipeTo,
		"pipe_from":  v.PipeFrom,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", c.Expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: expected bool, got %T", c.Expr, out.Value())
	}
	return b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type celEnv struct {
	env *cel.Env
}

func newCELEnv() (*celEnv, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("subcommand", cel.StringType),
		cel.Variable("args", cel.ListType(cel.StringType)),
		cel.Variable("flags", cel.ListType(cel.StringType)),
		cel.Variable("paths", cel.ListType(cel.StringType)),
		cel.Variable("wrappers", cel.ListType(cel.StringType)),
		cel.Variable("pipe_to", cel.StringType),
		cel.Variable("pipe_from", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &celEnv{env: env}, nil
}

func (e *celEnv) compile(expr string) (*Condition, error) {
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must be boolean, got %s", ast.OutputType())
	}
	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return &Condition{Expr: expr, prg: prg}, nil
}
