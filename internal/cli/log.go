package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/remote-claude/rcguard/internal/logger"
)

var (
	logFilterDecision string
	logFilterRule     string
	logFilterSession  string
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the rcguard audit log, including rotated backups, oldest first.

Examples:
  rcguard log                        # Show all entries
  rcguard log --last 20              # Show last 20 entries
  rcguard log --decision block       # Show only blocked commands
  rcguard log --rule forced-push     # Show one rule's decisions
  rcguard log --summary              # Show summary statistics`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter by decision (allow, block, ask)")
	logCmd.Flags().StringVar(&logFilterRule, "rule", "", "Filter by rule id")
	logCmd.Flags().StringVar(&logFilterSession, "session", "", "Filter by session id")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	records, err := logger.ReadRecords(cfg.AuditPath())
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterRecords(records)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(out, filtered)
		return nil
	}
	printRecords(out, filtered)
	return nil
}

func filterRecords(records []logger.AuditRecord) []logger.AuditRecord {
	if logFilterDecision == "" && logFilterRule == "" && logFilterSession == "" {
		return records
	}
	var filtered []logger.AuditRecord
	for _, r := range records {
		if logFilterDecision != "" && !strings.EqualFold(r.Decision, logFilterDecision) {
			continue
		}
		if logFilterRule != "" && r.RuleID != logFilterRule {
			continue
		}
		if logFilterSession != "" && r.SessionID != logFilterSession {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func printRecords(w io.Writer, records []logger.AuditRecord) {
	for _, r := range records {
		fmt.Fprintf(w, "%-5s %s %s\n", strings.ToUpper(r.Decision), formatTimestamp(r.Timestamp), r.Command)
		if r.RuleID != "" {
			fmt.Fprintf(w, "      Rule: %s (segment %d)\n", r.RuleID, r.Segment)
		}
		if r.Reason != "" {
			fmt.Fprintf(w, "      Reason: %s\n", r.Reason)
		}
		if r.WorkingDirectory != "" {
			fmt.Fprintf(w, "      Cwd: %s\n", r.WorkingDirectory)
		}
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, records []logger.AuditRecord) {
	counts := map[string]int{}
	rules := map[string]int{}
	for _, r := range records {
		counts[r.Decision]++
		if r.RuleID != "" {
			rules[r.RuleID]++
		}
	}

	fmt.Fprintln(w, "rcguard audit summary")
	fmt.Fprintf(w, "  Total decisions: %d\n", len(records))
	fmt.Fprintf(w, "  allow:           %d\n", counts["allow"])
	fmt.Fprintf(w, "  ask:             %d\n", counts["ask"])
	fmt.Fprintf(w, "  block:           %d\n", counts["block"])
	if len(records) > 0 {
		fmt.Fprintf(w, "  First decision:  %s\n", formatTimestamp(records[0].Timestamp))
		fmt.Fprintf(w, "  Last decision:   %s\n", formatTimestamp(records[len(records)-1].Timestamp))
	}

	if len(rules) > 0 {
		ids := make([]string, 0, len(rules))
		for id := range rules {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if rules[ids[i]] != rules[ids[j]] {
				return rules[ids[i]] > rules[ids[j]]
			}
			return ids[i] < ids[j]
		})
		if len(ids) > 10 {
			ids = ids[:10]
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Top rules:")
		for _, id := range ids {
			fmt.Fprintf(w, "    %5d  %s\n", rules[id], id)
		}
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
