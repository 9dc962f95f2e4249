package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/remote-claude/rcguard/internal/hook"
	"github.com/remote-claude/rcguard/internal/logger"
	"github.com/remote-claude/rcguard/internal/policy"
	"github.com/remote-claude/rcguard/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, catalog, audit log and daemon status",
	RunE:  statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  Config:   ERROR %v\n", err)
		return &ExitError{Code: 1}
	}

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(out, "  Binary:   %s (%s)\n", binPath, Version)
	if cfg.File != "" {
		fmt.Fprintf(out, "  Config:   %s\n", cfg.File)
	} else {
		fmt.Fprintln(out, "  Config:   defaults (no rcguard.yaml found)")
	}
	fmt.Fprintln(out)

	healthy := true
	fmt.Fprintln(out, "Catalog")
	cat, err := policy.Load(cfg.CatalogOptions())
	if err != nil {
		healthy = false
		fmt.Fprintf(out, "  ERROR     %v\n", err)
		fmt.Fprintln(out, "  Every command will be blocked until the catalog loads.")
	} else {
		fmt.Fprintf(out, "  Source:      %s\n", cat.Source())
		fmt.Fprintf(out, "  Version:     %s\n", cat.Version())
		fmt.Fprintf(out, "  Fingerprint: %s\n", cat.Fingerprint())
		fmt.Fprintf(out, "  Rules:       %d self_protect, %d block, %d escalate\n",
			len(cat.Tier(policy.TierSelfProtect)), len(cat.Tier(policy.TierBlock)), len(cat.Tier(policy.TierEscalate)))
		enabled := 0
		for _, p := range cat.Packs() {
			if p.Enabled {
				enabled++
			}
		}
		fmt.Fprintf(out, "  Packs:       %d installed, %d enabled (%s)\n", len(cat.Packs()), enabled, cfg.Catalog.PacksDir)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Audit log")
	checkAuditLog(out, cfg.AuditPath())
	fmt.Fprintf(out, "  Alerts:   %s\n", cfg.AlertsPath())
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Daemon")
	checkDaemon(cmd.Context(), out, cfg.Server.Socket, cfg.PIDPath())

	if !healthy {
		return &ExitError{Code: 1}
	}
	return nil
}

func checkAuditLog(w io.Writer, path string) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(w, "  Path:     %s (not created yet)\n", path)
		return
	}
	fmt.Fprintf(w, "  Path:     %s (%d bytes, mode %04o)\n", path, info.Size(), info.Mode().Perm())
	if records, err := logger.ReadRecords(path); err == nil && len(records) > 0 {
		last := records[len(records)-1]
		fmt.Fprintf(w, "  Records:  %d, last %s %s\n", len(records), formatTimestamp(last.Timestamp), last.Decision)
	}
}

func checkDaemon(ctx context.Context, w io.Writer, socket, pidPath string) {
	if ctx == nil {
		ctx = context.Background()
	}
	c := hook.NewClient(socket, 500*time.Millisecond)
	defer c.CloseIdleConnections()

	if err := c.Ping(ctx); err != nil {
		fmt.Fprintf(w, "  not running (%s)\n", socket)
		return
	}
	if pid, err := server.ReadPID(pidPath); err == nil {
		fmt.Fprintf(w, "  running (PID %d, %s)\n", pid, socket)
		return
	}
	fmt.Fprintf(w, "  running (%s)\n", socket)
}
