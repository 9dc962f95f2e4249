package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/remote-claude/rcguard/internal/normalize"
)

// Tier is the rule category. Tiers are evaluated in the order
// self_protect, block, escalate.
type Tier string

const (
	TierSelfProtect Tier = "self_protect"
	TierBlock       Tier = "block"
	TierEscalate    Tier = "escalate"
)

// Tiers lists every tier in evaluation order.
var Tiers = []Tier{TierSelfProtect, TierBlock, TierEscalate}

// OnUnresolved says what a rule does when a path predicate cannot be
// decided because a candidate path is only known at run time.
type OnUnresolved string

const (
	UnresolvedMatch  OnUnresolved = "match"
	UnresolvedAsk    OnUnresolved = "ask"
	UnresolvedIgnore OnUnresolved = "ignore"
)

// PathScope selects which tokens a paths_any predicate inspects.
type PathScope string

const (
	ScopeArgs      PathScope = "args"
	ScopeLastArg   PathScope = "last_arg"
	ScopeRedirects PathScope = "redirects"
)

// ProtectedToken in paths_any expands to the catalog's protected path set.
const ProtectedToken = "@protected"

// File is the on-disk catalog document.
type File struct {
	Version        string           `yaml:"version" validate:"required"`
	Description    string           `yaml:"description,omitempty"`
	ProtectedPaths []string         `yaml:"protected_paths,omitempty" validate:"dive,required"`
	Normalizer     normalize.Tables `yaml:"normalizer,omitempty"`
	Rules          []Rule           `yaml:"rules" validate:"min=1,dive"`
}

// Pack is a catalog overlay from packs_dir. Its rules are appended after the
// base catalog's and its protected paths are unioned.
type Pack struct {
	Name           string           `yaml:"name,omitempty"`
	Description    string           `yaml:"description,omitempty"`
	Version        string           `yaml:"version,omitempty"`
	Author         string           `yaml:"author,omitempty"`
	ProtectedPaths []string         `yaml:"protected_paths,omitempty" validate:"dive,required"`
	Normalizer     normalize.Tables `yaml:"normalizer,omitempty"`
	Rules          []Rule           `yaml:"rules" validate:"dive"`
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Author      string
	Enabled     bool
	Path        string
	RuleCount   int
}

// Rule is a declarative classification rule.
type Rule struct {
	ID           string       `yaml:"id" validate:"required,rule_id"`
	Tier         Tier         `yaml:"tier" validate:"required,oneof=self_protect block escalate"`
	Reason       string       `yaml:"reason" validate:"required"`
	OnUnresolved OnUnresolved `yaml:"on_unresolved,omitempty" validate:"omitempty,oneof=match ask ignore"`
	Match        Match        `yaml:"match"`
}

// Match holds structural predicates. Every non-empty predicate must hold.
type Match struct {
	// Command identification
	Executable        StringOrList `yaml:"executable,omitempty"` // glob on the unwrapped basename
	ExecutableDynamic bool         `yaml:"executable_dynamic,omitempty"`
	Subcommand        StringOrList `yaml:"subcommand,omitempty"` // leading positionals, space separated

	// Flag predicates (short or long form, alias aware)
	FlagsAll  []string `yaml:"flags_all,omitempty"`
	FlagsAny  []string `yaml:"flags_any,omitempty"`
	FlagsNone []string `yaml:"flags_none,omitempty"`

	// Argument predicates
	ArgsAny     []string     `yaml:"args_any,omitempty"`  // globs on positional values
	ArgsNone    []string     `yaml:"args_none,omitempty"` // globs on positional values
	ValuesRegex StringOrList `yaml:"values_regex,omitempty"`
	DynamicArgs bool         `yaml:"dynamic_args,omitempty"`

	// Paths
	PathsAny  []string  `yaml:"paths_any,omitempty"`
	PathScope PathScope `yaml:"path_scope,omitempty" validate:"omitempty,oneof=args last_arg redirects"`

	// Pipes
	PipeTo   StringOrList `yaml:"pipe_to,omitempty"`
	PipeFrom StringOrList `yaml:"pipe_from,omitempty"`

	// When is a CEL boolean expression evaluated last.
	When string `yaml:"when,omitempty"`
}

// empty reports whether no predicate is set. An empty match would match
// every command, so the loader rejects it.
func (m Match) empty() bool {
	return len(m.Executable) == 0 && !m.ExecutableDynamic && len(m.Subcommand) == 0 &&
		len(m.FlagsAll) == 0 && len(m.FlagsAny) == 0 && len(m.FlagsNone) == 0 &&
		len(m.ArgsAny) == 0 && len(m.ArgsNone) == 0 && len(m.ValuesRegex) == 0 &&
		!m.DynamicArgs && len(m.PathsAny) == 0 && len(m.PipeTo) == 0 &&
		len(m.PipeFrom) == 0 && m.When == ""
}

// StringOrList allows YAML fields to accept either a single string or a list.
// "rm" → ["rm"], ["rm", "unlink"] → ["rm", "unlink"]
type StringOrList []string

func (s *StringOrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = []string{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
}
