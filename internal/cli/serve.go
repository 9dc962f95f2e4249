package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/remote-claude/rcguard/internal/hook"
	"github.com/remote-claude/rcguard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decision daemon on a Unix socket",
	Long: `Serves decisions over HTTP on the Unix socket configured as server.socket:

  POST /v1/evaluate   decide one request (same JSON as 'rcguard hook')
  GET  /healthz       liveness
  GET  /metrics       Prometheus metrics (server.metrics)

The daemon refuses to start when the rule catalog cannot be loaded. Hooks
pointed at it with 'rcguard hook --server' block every command while it is
down. It exits on SIGINT/SIGTERM or after server.idle_timeout without
requests.`,
	RunE: serveCommand,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	h := hook.NewHandler(rt.engine, hook.Config{
		ShellTools: cfg.Engine.ShellTools,
		Timeout:    cfg.Engine.Timeout,
		Log:        rt.log.With("component", "hook"),
		Metrics:    rt.metrics,
	})
	var gatherer prometheus.Gatherer
	if cfg.Server.Metrics {
		gatherer = rt.registry
	}
	srv := server.New(h, server.Config{
		Socket:      cfg.Server.Socket,
		PIDFile:     cfg.PIDPath(),
		IdleTimeout: cfg.Server.IdleTimeout,
	}, server.Options{
		Log:      rt.log,
		Metrics:  rt.metrics,
		Gatherer: gatherer,
	})

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
