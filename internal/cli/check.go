package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/remote-claude/rcguard/internal/approval"
	"github.com/remote-claude/rcguard/internal/hook"
)

var (
	checkCwd         string
	checkSession     string
	checkTool        string
	checkJSON        bool
	checkInteractive bool
)

// approver is replaced in tests.
var approver approval.Approver = approval.NewTerminalApprover()

var checkCmd = &cobra.Command{
	Use:   "check [flags] -- <command>",
	Short: "Decide a command given on the command line",
	Long: `Decides a command exactly as the hook would and prints the result. The
decision is audited like any other.

Exit status: 0 allow (or approved), 1 block, 2 needs approval (or denied).

Examples:
  rcguard check -- git push --force origin main
  rcguard check --cwd /repo -- 'rm -rf ./build && make'
  rcguard check --interactive -- terraform destroy`,
	Args: cobra.MinimumNArgs(1),
	RunE: checkCommand,
}

func init() {
	checkCmd.Flags().StringVar(&checkCwd, "cwd", "", "Working directory the command runs in (default: current directory)")
	checkCmd.Flags().StringVar(&checkSession, "session", "", "Session id recorded in the audit log")
	checkCmd.Flags().StringVar(&checkTool, "tool", "", "Tool name (default: the first engine.shell_tools entry)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the decision as JSON")
	checkCmd.Flags().BoolVar(&checkInteractive, "interactive", false, "Prompt on the terminal when approval is needed")
	rootCmd.AddCommand(checkCmd)
}

func checkCommand(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	cwd := checkCwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	resp := decideCheck(cmd.Context(), command, cwd, cmd.ErrOrStderr())
	if checkJSON {
		if err := hook.Encode(out, resp, hook.FormatJSON); err != nil {
			return err
		}
	} else {
		printResponse(out, command, resp)
	}

	switch resp.Decision {
	case "allow":
		return nil
	case "ask":
		if checkInteractive {
			res := approver.Ask(approval.Prompt{Command: command, RuleID: ruleOf(resp), Reason: resp.Reason})
			if res.Approved {
				fmt.Fprintln(out, "approved")
				return nil
			}
			fmt.Fprintf(out, "denied (%s)\n", res.UserAction)
		}
		return &ExitError{Code: 2}
	}
	return &ExitError{Code: 1}
}

func decideCheck(ctx context.Context, command, cwd string, stderr io.Writer) hook.Response {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return hook.Unavailable(err)
	}
	rt, err := newRuntime(cfg, stderr)
	if err != nil {
		return hook.Unavailable(err)
	}
	defer rt.Close()

	tool := checkTool
	if tool == "" {
		tool = cfg.Engine.ShellTools[0]
	}
	h := hook.NewHandler(rt.engine, hook.Config{
		ShellTools: cfg.Engine.ShellTools,
		Timeout:    cfg.Engine.Timeout,
		Log:        rt.log,
		Metrics:    rt.metrics,
	})
	return h.Handle(ctx, hook.Request{
		ToolName:         tool,
		Command:          command,
		SessionID:        checkSession,
		WorkingDirectory: cwd,
	})
}

func ruleOf(resp hook.Response) string {
	if resp.RuleID == nil {
		return ""
	}
	return *resp.RuleID
}

func printResponse(w io.Writer, command string, resp hook.Response) {
	fmt.Fprintf(w, "%s %s\n", strings.ToUpper(resp.Decision), command)
	if rule := ruleOf(resp); rule != "" {
		fmt.Fprintf(w, "  rule:   %s\n", rule)
	}
	if resp.Reason != "" {
		fmt.Fprintf(w, "  reason: %s\n", resp.Reason)
	}
}

// exitCode extracts the exit status carried by err.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *ExitError
	if errors.As(err, &e) {
		return e.Code
	}
	return 1
}
