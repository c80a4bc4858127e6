package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/deskpilot/internal/logger"
)

var (
	logFilterDecision string
	logFilterSession  string
	logFilterSource   string
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the DeskPilot audit log with filtering and summary options.

Examples:
  deskpilot log                          # Show all entries
  deskpilot log --last 20                # Show last 20 entries
  deskpilot log --decision block         # Show only blocked actions
  deskpilot log --session-id 3f2a...     # Show one session
  deskpilot log --source executor        # Show only executed actions
  deskpilot log --summary                # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter by decision (allow, confirm, block)")
	logCmd.Flags().StringVar(&logFilterSession, "session-id", "", "Filter by session id")
	logCmd.Flags().StringVar(&logFilterSource, "source", "", "Filter by source (planner, executor)")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := logger.ReadEvents(cfg.AuditLogPath, logger.Filter{
		SessionID: logFilterSession,
		Source:    logFilterSource,
	})
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterByDecision(events, logFilterDecision)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(out, events)
		return nil
	}
	printEvents(out, filtered)
	return nil
}

func filterByDecision(events []logger.AuditEvent, decision string) []logger.AuditEvent {
	if decision == "" {
		return events
	}
	var filtered []logger.AuditEvent
	for _, e := range events {
		if strings.EqualFold(e.Decision, decision) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func printEvents(out io.Writer, events []logger.AuditEvent) {
	for _, e := range events {
		fmt.Fprintf(out, "%s %s [%s] step %d %s\n",
			decisionIcon(e.Decision), formatTimestamp(e.Timestamp), e.Source, e.Step, e.Action)
		fmt.Fprintf(out, "     Session: %s  Risk: %s  Decision: %s\n", e.SessionID, e.Risk, e.Decision)
		if e.Reason != "" {
			fmt.Fprintf(out, "     Reason: %s\n", e.Reason)
		}
		if e.ConfirmationID != "" {
			fmt.Fprintf(out, "     Confirmation: %s\n", e.ConfirmationID)
		}
		if e.ResultStatus != "" {
			fmt.Fprintf(out, "     Result: %s %s\n", e.ResultStatus, e.ResultMessage)
		}
		if e.Error != "" {
			fmt.Fprintf(out, "     Error: %s\n", e.Error)
		}
		fmt.Fprintln(out)
	}
}

func printSummary(out io.Writer, all []logger.AuditEvent) {
	counts := map[string]int{}
	sources := map[string]int{}
	sessions := map[string]bool{}
	errorCount := 0

	for _, e := range all {
		counts[strings.ToLower(e.Decision)]++
		sources[e.Source]++
		if e.SessionID != "" {
			sessions[e.SessionID] = true
		}
		if e.Error != "" {
			errorCount++
		}
	}

	fmt.Fprintln(out, "═══════════════════════════════════════════")
	fmt.Fprintln(out, "  DeskPilot Audit Summary")
	fmt.Fprintln(out, "═══════════════════════════════════════════")
	fmt.Fprintf(out, "  Total events:    %d\n", len(all))
	fmt.Fprintf(out, "  Sessions:        %d\n", len(sessions))
	fmt.Fprintf(out, "  Planner turns:   %d\n", sources[logger.SourcePlanner])
	fmt.Fprintf(out, "  Executor steps:  %d\n", sources[logger.SourceExecutor])
	fmt.Fprintf(out, "  ALLOW:           %d\n", counts["allow"])
	fmt.Fprintf(out, "  CONFIRM:         %d\n", counts["confirm"])
	fmt.Fprintf(out, "  BLOCK:           %d\n", counts["block"])
	fmt.Fprintf(out, "  Errors:          %d\n", errorCount)
	fmt.Fprintln(out, "═══════════════════════════════════════════")

	fmt.Fprintf(out, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
	fmt.Fprintf(out, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))

	var blocked []logger.AuditEvent
	for _, e := range all {
		if strings.EqualFold(e.Decision, "block") {
			blocked = append(blocked, e)
		}
	}
	if len(blocked) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Blocked actions:")
		limit := min(len(blocked), 10)
		for _, e := range blocked[len(blocked)-limit:] {
			fmt.Fprintf(out, "    %s %s (%s)\n", formatTimestamp(e.Timestamp), e.Action, e.Reason)
		}
	}

	fmt.Fprintln(out)
}

func decisionIcon(decision string) string {
	switch strings.ToLower(decision) {
	case "block":
		return "\xf0\x9f\x9b\x91" // stop sign
	case "confirm":
		return "\xe2\x9a\xa0\xef\xb8\x8f" // warning
	case "allow":
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
