package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/deskpilot/internal/approval"
	"github.com/gzhole/deskpilot/internal/protocol"
	"github.com/gzhole/deskpilot/internal/state"
)

var (
	confirmSessionID      string
	confirmConfirmationID string
	confirmReject         bool
	confirmYes            bool
)

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Approve or reject the action a session is paused on",
	Long: `Resolve the pending confirmation of a session. Planner-issued tokens are
sent to the planner; local-only holds are resolved in the state store.
On a terminal the action is shown first unless --yes or --reject is given.

Examples:
  deskpilot confirm --session-id 3f2a...            # review and approve
  deskpilot confirm --session-id 3f2a... --yes
  deskpilot confirm --session-id 3f2a... --reject`,
	RunE: confirmCommand,
}

func init() {
	confirmCmd.Flags().StringVar(&confirmSessionID, "session-id", "", "Session id")
	confirmCmd.Flags().StringVar(&confirmConfirmationID, "confirmation-id", "", "Confirmation token (default: the pending one)")
	confirmCmd.Flags().BoolVar(&confirmReject, "reject", false, "Reject instead of approve")
	confirmCmd.Flags().BoolVarP(&confirmYes, "yes", "y", false, "Approve without the interactive review")
	_ = confirmCmd.MarkFlagRequired("session-id")
	rootCmd.AddCommand(confirmCmd)
}

// confirmer is the part of the planner client used to resolve tokens.
type confirmer interface {
	Confirm(ctx context.Context, sessionID string, req protocol.ConfirmRequest) (protocol.ConfirmResponse, error)
}

func confirmCommand(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	store, err := openState(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.Load(cmd.Context(), confirmSessionID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("session %s not found in local state", confirmSessionID)
		}
		return err
	}
	if confirmConfirmationID != "" {
		sess.PendingConfirmationID = confirmConfirmationID
	}
	if !sess.Pending() {
		return fmt.Errorf("session %s has no pending confirmation", confirmSessionID)
	}

	approved := !confirmReject
	if approved && !confirmYes && approval.IsInteractive() {
		approved = approval.Ask(pendingPrompt(sess)).Approved
	}

	resp, err := resolveConfirmation(cmd.Context(), newClient(cfg), store, sess, approved)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

// resolveConfirmation settles the pending confirmation of sess. An approval
// adds the pending fingerprint to the local approved set. The pending hold
// is cleared unless the planner no longer knows the token.
func resolveConfirmation(ctx context.Context, c confirmer, store state.Store, sess *state.Session, approved bool) (protocol.ConfirmResponse, error) {
	resp := protocol.ConfirmResponse{SessionID: sess.SessionID, ConfirmationID: sess.PendingConfirmationID}
	if sess.PendingConfirmationID != "" {
		var err error
		resp, err = c.Confirm(ctx, sess.SessionID, protocol.ConfirmRequest{
			ConfirmationID: sess.PendingConfirmationID,
			Approved:       approved,
		})
		if err != nil {
			return resp, fmt.Errorf("failed to confirm: %w", err)
		}
	} else if approved {
		resp.Status = protocol.ConfirmApproved
	} else {
		resp.Status = protocol.ConfirmRejected
	}

	switch resp.Status {
	case protocol.ConfirmApproved:
		sess.Approve(sess.PendingFingerprint)
		sess.ClearPending()
	case protocol.ConfirmRejected:
		sess.ClearPending()
		sess.LastResult = protocol.NewResult(protocol.ResultSkipped, "rejected by user")
	default:
		return resp, nil
	}
	if err := store.Save(ctx, sess); err != nil {
		return resp, fmt.Errorf("failed to save session state: %w", err)
	}
	return resp, nil
}

func pendingPrompt(sess *state.Session) approval.Prompt {
	p := approval.Prompt{SessionID: sess.SessionID, ConfirmationID: sess.PendingConfirmationID, Action: "<unknown>"}
	if sess.PendingAction != nil && sess.PendingAction.Action != nil {
		p.Action = describe(sess.PendingAction.Action)
	}
	if sess.LastResult != nil {
		p.Reason = sess.LastResult.Message
	}
	return p
}
