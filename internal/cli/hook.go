package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/remote-claude/rcguard/internal/hook"
)

var (
	hookFormat  string
	hookServer  bool
	hookTimeout time.Duration
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Decide one tool call read from stdin",
	Long: `Reads a tool-call request from stdin, decides it, and writes the decision
to stdout. Accepts the plain contract

  {"tool_name": "Bash", "command": "...", "session_id": "...", "working_directory": "..."}

and the Claude Code PreToolUse payload (tool_input.command, cwd).

Any failure (unreadable input, configuration or catalog errors, an
unreachable daemon, a timeout) produces a block decision.

Claude Code settings.json:
  "PreToolUse": [{"matcher": "Bash", "hooks": [{"type": "command", "command": "rcguard hook --format claude"}]}]`,
	RunE: hookCommand,
}

func init() {
	hookCmd.Flags().StringVar(&hookFormat, "format", hook.FormatJSON, "Output format: json or claude")
	hookCmd.Flags().BoolVar(&hookServer, "server", false, "Ask the running daemon instead of evaluating in-process")
	hookCmd.Flags().DurationVar(&hookTimeout, "timeout", 0, "Evaluation timeout (default: engine.timeout)")
	rootCmd.AddCommand(hookCmd)
}

func hookCommand(cmd *cobra.Command, args []string) error {
	if hookFormat != hook.FormatJSON && hookFormat != hook.FormatClaude {
		return fmt.Errorf("unknown --format %q (want json or claude)", hookFormat)
	}
	resp := decideHook(cmd.Context(), cmd.InOrStdin(), cmd.ErrOrStderr())
	return hook.Encode(cmd.OutOrStdout(), resp, hookFormat)
}

func decideHook(ctx context.Context, stdin io.Reader, stderr io.Writer) hook.Response {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := hook.DecodeRequest(stdin)
	if err != nil {
		return hook.Unavailable(err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return hook.Unavailable(err)
	}
	timeout := cfg.Engine.Timeout
	if hookTimeout > 0 {
		timeout = hookTimeout
	}

	if hookServer {
		c := hook.NewClient(cfg.Server.Socket, timeout)
		defer c.CloseIdleConnections()
		return c.Evaluate(ctx, req)
	}

	rt, err := newRuntime(cfg, stderr)
	if err != nil {
		return hook.Unavailable(err)
	}
	defer rt.Close()

	h := hook.NewHandler(rt.engine, hook.Config{
		ShellTools: cfg.Engine.ShellTools,
		Timeout:    timeout,
		Log:        rt.log.With("component", "hook"),
		Metrics:    rt.metrics,
	})
	return h.Handle(ctx, req)
}
