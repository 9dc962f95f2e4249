// Package approval asks a human at the terminal whether a command that
// needs approval may run.
package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Approved   bool
	UserAction string
}

type Prompt struct {
	Command string
	RuleID  string
	Reason  string
}

// Approver decides prompts that need a human.
type Approver interface {
	Ask(p Prompt) Result
}

// TerminalApprover prompts on an interactive terminal. Without one it
// denies.
type TerminalApprover struct {
	In          io.Reader
	Out         io.Writer
	Interactive func() bool
}

// NewTerminalApprover prompts on stdin/stderr.
func NewTerminalApprover() *TerminalApprover {
	return &TerminalApprover{In: os.Stdin, Out: os.Stderr, Interactive: IsInteractive}
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (a *TerminalApprover) Ask(p Prompt) Result {
	if a.Interactive != nil && !a.Interactive() {
		return Result{
			Approved:   false,
			UserAction: "auto_deny_non_interactive",
		}
	}

	out := a.Out
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "APPROVAL REQUIRED")
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "Command: %s\n", p.Command)
	if p.RuleID != "" {
		fmt.Fprintf(out, "Rule:    %s\n", p.RuleID)
	}
	if p.Reason != "" {
		fmt.Fprintf(out, "Reason:  %s\n", p.Reason)
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "  [a] Approve once")
	fmt.Fprintln(out, "  [d] Deny")
	fmt.Fprintln(out, "")

	reader := bufio.NewReader(a.In)
	for {
		fmt.Fprint(out, "Your choice [a/d]: ")
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return Result{
				Approved:   false,
				UserAction: "error_reading_input",
			}
		}

		switch strings.TrimSpace(strings.ToLower(input)) {
		case "a", "approve", "yes", "y":
			return Result{
				Approved:   true,
				UserAction: "approve_once",
			}
		case "d", "deny", "no", "n":
			return Result{
				Approved:   false,
				UserAction: "deny",
			}
		default:
			if err != nil {
				return Result{Approved: false, UserAction: "error_reading_input"}
			}
			fmt.Fprintln(out, "Invalid input. Please enter 'a' to approve or 'd' to deny.")
		}
	}
}
