package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/deskpilot/internal/client"
	"github.com/gzhole/deskpilot/internal/config"
	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/redact"
)

const healthTimeout = 3 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show DeskPilot status: config, planner, policy, audit log, sessions",
	Long: `Check whether DeskPilot is ready: which config and policy files are in use,
whether the planner API answers, and which sessions have local state.

  deskpilot status`,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  DeskPilot Status")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out)

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(out, "  Binary:    %s (%s)\n", binPath, Version)
	fmt.Fprintf(out, "  Config:    %s\n", cfg.ConfigDir)
	fmt.Fprintf(out, "  Provider:  %s\n", cfg.Provider.Kind)
	fmt.Fprintf(out, "  Backend:   %s (dry-run: %v)\n", cfg.Executor.Backend, cfg.Executor.DryRun)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Planner API ───────────────────────────────────────")
	checkPlanner(cmd.Context(), out, cfg.Executor.APIURL)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Policy ────────────────────────────────────────────")
	checkPolicyFile(out, cfg.PolicyPath)
	_, infos, err := policy.LoadPacks(cfg.PacksDir, policy.DefaultPolicy())
	if err == nil && len(infos) > 0 {
		enabled := 0
		for _, info := range infos {
			if info.Enabled {
				enabled++
			}
		}
		fmt.Fprintf(out, "  ✅ Policy packs: %d installed, %d enabled\n", len(infos), enabled)
	} else {
		fmt.Fprintln(out, "  ⬚  No policy packs installed")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(out, cfg.AuditLogPath)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Local Sessions ────────────────────────────────────")
	checkSessions(cmd.Context(), out, cfg)
	fmt.Fprintln(out)

	if env := deskpilotEnv(os.Environ()); len(env) > 0 {
		fmt.Fprintln(out, "─── Environment ───────────────────────────────────────")
		for _, kv := range redact.RedactEnvVars(env) {
			fmt.Fprintf(out, "  %s\n", kv)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func checkPlanner(ctx context.Context, out io.Writer, url string) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	health, err := client.New(url, healthTimeout).Health(ctx)
	if err != nil {
		fmt.Fprintf(out, "  ⚠  %s: unreachable (%v)\n", url, err)
		return
	}
	fmt.Fprintf(out, "  ✅ %s: %s\n", url, health.Status)
}

func checkPolicyFile(out io.Writer, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "  ✅ Policy: %s\n", path)
	} else {
		fmt.Fprintln(out, "  ⬚  Policy: using built-in defaults (no custom file)")
	}
}

func checkAuditLog(out io.Writer, path string) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(out, "  ⬚  %s (not yet created, will start on first event)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Fprintf(out, "  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Fprintf(out, "  ✅ %s (%d KB)\n", path, sizeKB)
	}
}

func checkSessions(ctx context.Context, out io.Writer, cfg *config.Config) {
	store, err := openState(cfg)
	if err != nil {
		fmt.Fprintf(out, "  ⚠  %v\n", err)
		return
	}
	defer store.Close()

	sessions, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(out, "  ⚠  %v\n", err)
		return
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "  ⬚  No sessions")
		return
	}
	for _, s := range sessions {
		status := "new"
		if s.LastResult != nil {
			status = string(s.LastResult.Status)
		}
		pending := ""
		if s.Pending() {
			pending = "  [awaiting confirmation]"
		}
		fmt.Fprintf(out, "  %s  step %-3d %-22s %s%s\n", s.SessionID, s.StepIndex, status, truncate(s.Task, 40), pending)
	}
}

func deskpilotEnv(environ []string) []string {
	var out []string
	for _, kv := range environ {
		if strings.HasPrefix(kv, "DESKPILOT_") || strings.HasPrefix(kv, "DESKTOP_AGENT_") {
			out = append(out, kv)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
