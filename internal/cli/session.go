package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/protocol"
	"github.com/gzhole/deskpilot/internal/state"
)

var (
	startTask           string
	startMaxSteps       int
	startBlockedApps    []string
	startForbiddenTerms []string
	abortSessionID      string
)

var startSessionCmd = &cobra.Command{
	Use:   "start-session",
	Short: "Create a planner session and its local state",
	Long: `Create a session on the planner and record it in the local state store.
Prints the new session id.

Example:
  deskpilot start-session --task "Open Notepad and type hello" --blocked-app Terminal
  deskpilot start-session --task "Draft the weekly update" --forbidden-term payroll`,
	RunE: startSessionCommand,
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Delete the local state of a session",
	RunE:  abortCommand,
}

func init() {
	startSessionCmd.Flags().StringVar(&startTask, "task", "", "Task description")
	startSessionCmd.Flags().IntVar(&startMaxSteps, "max-steps", 0, "Maximum steps (default: executor.max_steps)")
	startSessionCmd.Flags().StringSliceVar(&startBlockedApps, "blocked-app", nil, "App the executor must never drive (repeatable)")
	startSessionCmd.Flags().StringSliceVar(&startForbiddenTerms, "forbidden-term", nil, "Term that blocks any action mentioning it (repeatable)")
	_ = startSessionCmd.MarkFlagRequired("task")

	abortCmd.Flags().StringVar(&abortSessionID, "session-id", "", "Session id")
	_ = abortCmd.MarkFlagRequired("session-id")

	rootCmd.AddCommand(startSessionCmd)
	rootCmd.AddCommand(abortCmd)
}

func startSessionCommand(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	maxSteps := startMaxSteps
	if maxSteps == 0 {
		maxSteps = cfg.Executor.MaxSteps
	}
	req := protocol.StartSessionRequest{
		Task:        startTask,
		Constraints: &policy.Constraints{BlockedApps: startBlockedApps, MaxSteps: maxSteps, ForbiddenTerms: startForbiddenTerms},
	}
	if err := req.Validate(); err != nil {
		return err
	}

	resp, err := newClient(cfg).StartSession(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	store, err := openState(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(cmd.Context(), state.New(resp.SessionID, startTask, resp.Constraints)); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.SessionID)
	return nil
}

func abortCommand(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	store, err := openState(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.Delete(cmd.Context(), abortSessionID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"session_id": abortSessionID, "deleted": deleted})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
