// Package state persists the executor's per-session runtime state.
package state

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/protocol"
)

var ErrNotFound = errors.New("session state not found")

// Session is the executor-side view of a session. StepIndex only advances
// after an action was executed.
type Session struct {
	SessionID   string             `json:"session_id"`
	Task        string             `json:"task"`
	Constraints policy.Constraints `json:"constraints"`
	StepIndex   int                `json:"step_index"`

	LastAction *action.Envelope       `json:"last_action,omitempty"`
	LastResult *protocol.ActionResult `json:"last_result,omitempty"`

	// PendingConfirmationID is the planner token for a halted action;
	// empty when the halt came from local policy alone.
	PendingConfirmationID string `json:"pending_confirmation_id,omitempty"`
	// PendingFingerprint identifies the halted action.
	PendingFingerprint string `json:"pending_fingerprint,omitempty"`
	// PendingAction is the halted action itself. It has not run, so it is
	// kept apart from LastAction.
	PendingAction        *action.Envelope `json:"pending_action,omitempty"`
	ApprovedFingerprints []string `json:"approved_fingerprints"`

	UpdatedAt time.Time `json:"updated_at"`
}

func New(sessionID, task string, constraints policy.Constraints) *Session {
	return &Session{
		SessionID:            sessionID,
		Task:                 task,
		Constraints:          constraints,
		ApprovedFingerprints: []string{},
	}
}

// Pending reports whether the session is halted on a confirmation.
func (s *Session) Pending() bool {
	return s.PendingConfirmationID != "" || s.PendingFingerprint != ""
}

// IsApproved also holds for an unsorted ApprovedFingerprints.
func (s *Session) IsApproved(fingerprint string) bool {
	return fingerprint != "" && slices.Contains(s.ApprovedFingerprints, fingerprint)
}

// Approve adds fingerprint to the approved set, keeping it sorted.
func (s *Session) Approve(fingerprint string) {
	if fingerprint == "" {
		return
	}
	i, found := slices.BinarySearch(s.ApprovedFingerprints, fingerprint)
	if found {
		return
	}
	s.ApprovedFingerprints = slices.Insert(s.ApprovedFingerprints, i, fingerprint)
}

func (s *Session) ClearPending() {
	s.PendingConfirmationID = ""
	s.PendingFingerprint = ""
	s.PendingAction = nil
}

// Store persists Session values keyed by session id.
type Store interface {
	Save(ctx context.Context, s *Session) error
	// Load returns ErrNotFound for an unknown id.
	Load(ctx context.Context, sessionID string) (*Session, error)
	// Delete reports whether a session was removed.
	Delete(ctx context.Context, sessionID string) (bool, error)
	// List returns every session, most recently updated first.
	List(ctx context.Context) ([]*Session, error)
	Close() error
}
