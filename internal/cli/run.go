package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/approval"
	"github.com/gzhole/deskpilot/internal/config"
	"github.com/gzhole/deskpilot/internal/desktop"
	"github.com/gzhole/deskpilot/internal/desktop/robot"
	"github.com/gzhole/deskpilot/internal/executor"
	"github.com/gzhole/deskpilot/internal/logger"
	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/redact"
	"github.com/gzhole/deskpilot/internal/state"
)

var (
	runSessionID  string
	runMaxSteps   int
	runMaxRetries int
	runDryRun     bool
	runNoDryRun   bool
	runPrompt     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the executor loop for a session",
	Long: `Run the capture, plan, check, execute loop for a session until the planner
finishes, an action is blocked, a confirmation is required or the retry
budget is spent. Actions are only logged unless --no-dry-run is given.

Examples:
  deskpilot run --session-id 3f2a...
  deskpilot run --session-id 3f2a... --no-dry-run --prompt`,
	RunE: runCommand,
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session-id", "", "Session id")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "Maximum steps (default: the session's)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", -1, "Consecutive waits tolerated (default: executor.max_retries)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Log actions instead of performing them (default: executor.dry_run)")
	runCmd.Flags().BoolVar(&runNoDryRun, "no-dry-run", false, "Perform actions on the real desktop")
	runCmd.Flags().BoolVar(&runPrompt, "prompt", false, "Ask on the terminal when a confirmation is required and resume if approved")
	runCmd.MarkFlagsMutuallyExclusive("dry-run", "no-dry-run")
	_ = runCmd.MarkFlagRequired("session-id")
	rootCmd.AddCommand(runCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	store, err := openState(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := store.Load(ctx, runSessionID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("session %s not found in local state", runSessionID)
		}
		return err
	}

	engine, _, err := loadEngine(cfg)
	if err != nil {
		return err
	}
	auditLogger, err := logger.New(cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer auditLogger.Close()

	dryRun := cfg.Executor.DryRun
	switch {
	case runDryRun:
		dryRun = true
	case runNoDryRun:
		dryRun = false
	}
	screen, window, input, err := desktopFor(cfg, dryRun, log)
	if err != nil {
		return err
	}

	opts := executor.Options{
		Constraints: runConstraints(cfg, sess),
		MaxRetries:  cfg.Executor.MaxRetries,
	}
	if runMaxRetries >= 0 {
		opts.MaxRetries = runMaxRetries
	}

	c := newClient(cfg)
	runner := executor.NewRunner(c, screen, window, input, store, engine,
		executor.WithLogger(log),
		executor.WithAuditLogger(auditLogger),
		executor.WithMaxWait(cfg.Executor.MaxWait),
	)
	log.Info("Running session",
		zap.String("session_id", sess.SessionID),
		zap.Bool("dry_run", dryRun),
		zap.Int("max_steps", opts.Constraints.MaxSteps))

	for {
		sess, err = runner.RunSession(ctx, sess, opts)
		if err != nil {
			return err
		}
		if runner.LastStop() != executor.StopConfirmation || !runPrompt || !approval.IsInteractive() {
			break
		}
		approved := approval.Ask(pendingPrompt(sess)).Approved
		if _, err := resolveConfirmation(ctx, c, store, sess, approved); err != nil {
			return err
		}
		if !approved {
			break
		}
	}

	if runner.LastStop() == executor.StopConfirmation {
		fmt.Fprintf(cmd.ErrOrStderr(), "Paused for confirmation. Resume with: deskpilot confirm --session-id %s\n", sess.SessionID)
	}
	return printJSON(cmd.OutOrStdout(), sess)
}

// runConstraints keeps the session's blocked apps and forbidden terms and takes max steps from
// the flag, the session, then the config, in that order.
func runConstraints(cfg *config.Config, sess *state.Session) policy.Constraints {
	c := policy.Constraints{
		BlockedApps:    sess.Constraints.BlockedApps,
		MaxSteps:       runMaxSteps,
		ForbiddenTerms: sess.Constraints.ForbiddenTerms,
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = sess.Constraints.MaxSteps
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = cfg.Executor.MaxSteps
	}
	return c
}

// desktopFor wires the desktop collaborators for the configured backend.
// The robot backend still honors dry-run for input.
func desktopFor(cfg *config.Config, dryRun bool, log *zap.Logger) (desktop.Screen, desktop.Window, desktop.Input, error) {
	var input desktop.Input = desktop.NewDryRun(log)
	switch cfg.Executor.Backend {
	case "robot":
		r := robot.New(log)
		if !dryRun {
			input = r
		}
		return r, r, input, nil
	default:
		if !dryRun {
			return nil, nil, nil, fmt.Errorf("executor.backend %q cannot perform real input; use --dry-run or set executor.backend to robot", cfg.Executor.Backend)
		}
		screen, err := desktop.NewStaticScreen(cfg.Executor.ScreenWidth, cfg.Executor.ScreenHeight)
		if err != nil {
			return nil, nil, nil, err
		}
		return screen, desktop.StaticWindow(""), input, nil
	}
}

func describe(a action.Action) string {
	return action.Describe(a, redact.Redact)
}
