// Package executor runs the desktop-side control loop: capture the screen,
// ask the planner for one action, re-check it against local policy, then
// execute it or pause for confirmation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/desktop"
	"github.com/gzhole/deskpilot/internal/logger"
	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/protocol"
	"github.com/gzhole/deskpilot/internal/redact"
	"github.com/gzhole/deskpilot/internal/state"
)

const (
	// DefaultMaxRetries is the number of consecutive waits tolerated.
	DefaultMaxRetries = 1
	// MaxWaitPerStep caps the sleep for a single wait action.
	MaxWaitPerStep = 2 * time.Second

	retryExhaustedMessage = "No state change after retry budget exhausted."
)

// ErrContractViolation is returned when the planner reply breaks the turn
// contract, e.g. a confirmation without a confirmation id.
var ErrContractViolation = errors.New("planner contract violation")

// Planner is the part of the planner API the loop needs.
type Planner interface {
	Turn(ctx context.Context, req protocol.TurnRequest) (protocol.TurnResponse, error)
}

// Options are per-run limits.
type Options struct {
	Constraints policy.Constraints
	MaxRetries  int
}

// Stop says why RunSession returned.
type Stop string

const (
	StopDone         Stop = "done"
	StopFail         Stop = "fail"
	StopConfirmation Stop = "confirmation_required"
	StopBlocked      Stop = "blocked"
	StopRetries      Stop = "retries_exhausted"
	StopStale        Stop = "stale_confirmation"
	StopError        Stop = "error"
)

type Runner struct {
	planner Planner
	screen  desktop.Screen
	window  desktop.Window
	input   desktop.Input
	store   state.Store
	engine  *policy.Engine
	logger  *zap.Logger
	audit   *logger.AuditLogger
	maxWait time.Duration
	sleep   func(ctx context.Context, d time.Duration) error

	lastStop Stop
}

type Option func(*Runner)

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l.Named("executor") }
}

// WithAuditLogger appends every executed, blocked or paused action to a.
func WithAuditLogger(a *logger.AuditLogger) Option {
	return func(r *Runner) { r.audit = a }
}

// WithMaxWait lowers the per-step sleep cap below MaxWaitPerStep.
func WithMaxWait(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 && d < r.maxWait {
			r.maxWait = d
		}
	}
}

// WithSleep replaces the context-aware sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

func NewRunner(p Planner, screen desktop.Screen, window desktop.Window, input desktop.Input, store state.Store, engine *policy.Engine, opts ...Option) *Runner {
	r := &Runner{
		planner: p,
		screen:  screen,
		window:  window,
		input:   input,
		store:   store,
		engine:  engine,
		logger:  zap.NewNop(),
		maxWait: MaxWaitPerStep,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LastStop reports why the most recent RunSession returned.
func (r *Runner) LastStop() Stop { return r.lastStop }

// RunSession drives sess until the planner finishes, a confirmation or block
// halts it, the retry budget is spent, or ctx is cancelled. sess is updated
// in place and persisted after every mutation.
func (r *Runner) RunSession(ctx context.Context, sess *state.Session, opts Options) (*state.Session, error) {
	if sess == nil {
		return nil, fmt.Errorf("nil session state")
	}
	constraints := opts.Constraints.WithDefaults()
	retries := 0
	r.lastStop = StopError

	for {
		if err := ctx.Err(); err != nil {
			return sess, err
		}

		traceID := protocol.NewTraceID()
		log := r.logger.With(zap.String("session_id", sess.SessionID), zap.String("trace_id", traceID))

		screen, err := r.screen.Capture(ctx)
		if err != nil {
			return sess, fmt.Errorf("capture screen: %w", err)
		}
		activeWindow := r.window.ActiveWindow(ctx)

		req := protocol.TurnRequest{
			SessionID: sess.SessionID,
			Task:      sess.Task,
			Screen:    screen,
			Context: protocol.TurnContext{
				StepIndex:    sess.StepIndex,
				LastAction:   sess.LastAction,
				LastResult:   sess.LastResult,
				ActiveWindow: activeWindow,
				TraceID:      traceID,
			},
			Constraints: &constraints,
		}
		resp, err := r.planner.Turn(ctx, req)
		if err != nil {
			return sess, fmt.Errorf("request turn: %w", err)
		}
		if resp.ConfirmationRequired && resp.ConfirmationID == "" {
			return sess, fmt.Errorf("%w: confirmation required without confirmation_id", ErrContractViolation)
		}
		a := resp.Action.Action
		if a == nil {
			return sess, fmt.Errorf("%w: response carries no action", ErrContractViolation)
		}
		fingerprint, err := action.Fingerprint(a)
		if err != nil {
			return sess, fmt.Errorf("fingerprint action: %w", err)
		}

		decision := r.engine.Evaluate(policy.Input{
			Action:       a,
			Task:         sess.Task,
			Observation:  resp.Observation,
			Reasoning:    resp.Reasoning,
			ActiveWindow: activeWindow,
			Constraints:  &constraints,
		})
		summary := action.Describe(a, redact.Redact)
		log.Debug("Planner proposed action",
			zap.String("action", summary),
			zap.String("risk", string(resp.Risk)),
			zap.String("decision", string(decision.Status)))

		localConfirm := decision.Status == policy.StatusConfirm && !sess.IsApproved(fingerprint)
		if resp.ConfirmationRequired || localConfirm {
			sess.PendingConfirmationID = resp.ConfirmationID
			sess.PendingFingerprint = fingerprint
			sess.PendingAction = &action.Envelope{Action: a}
			msg := "confirmation required: " + resp.ConfirmationID
			if resp.ConfirmationID == "" {
				msg = "confirmation required: " + decision.Reason
			}
			sess.LastResult = protocol.NewResult(protocol.ResultConfirmationRequired, msg)
			if err := r.store.Save(ctx, sess); err != nil {
				return sess, err
			}
			log.Info("Confirmation required",
				zap.String("confirmation_id", resp.ConfirmationID),
				zap.String("action", summary))
			r.record(traceID, sess, summary, decision, resp, "")
			r.lastStop = StopConfirmation
			return sess, nil
		}

		if decision.Status == policy.StatusBlock {
			sess.LastResult = protocol.NewResult(protocol.ResultBlocked, decision.Reason)
			if err := r.store.Save(ctx, sess); err != nil {
				return sess, err
			}
			log.Warn("Action blocked by local policy", zap.String("reason", decision.Reason), zap.String("action", summary))
			r.record(traceID, sess, summary, decision, resp, "")
			r.lastStop = StopBlocked
			return sess, nil
		}

		msg, execErr := r.input.Execute(ctx, a)
		sess.LastAction = &action.Envelope{Action: a}
		// The input already happened; persist it even if ctx was cancelled
		// meanwhile so a resumed session does not replay it.
		saveCtx := context.WithoutCancel(ctx)
		if execErr != nil {
			sess.LastResult = protocol.NewResult(protocol.ResultFailed, execErr.Error())
			if err := r.store.Save(saveCtx, sess); err != nil {
				return sess, errors.Join(execErr, err)
			}
			r.record(traceID, sess, summary, decision, resp, execErr.Error())
			return sess, fmt.Errorf("execute %s: %w", a.Kind(), execErr)
		}
		sess.LastResult = protocol.NewResult(protocol.ResultExecuted, msg)
		sess.StepIndex++
		if err := r.store.Save(saveCtx, sess); err != nil {
			return sess, err
		}
		log.Info("Executed action", zap.String("action", summary), zap.Int("step", sess.StepIndex))
		r.record(traceID, sess, summary, decision, resp, "")

		switch v := a.(type) {
		case action.Done:
			r.lastStop = StopDone
			return sess, nil
		case action.Fail:
			r.lastStop = StopFail
			return sess, nil
		case action.Screenshot:
			continue
		case action.Wait:
			if err := r.sleep(ctx, r.waitDuration(v.Seconds)); err != nil {
				return sess, err
			}
			retries++
			if retries > opts.MaxRetries {
				sess.LastResult = protocol.NewResult(protocol.ResultFailed, retryExhaustedMessage)
				if err := r.store.Save(ctx, sess); err != nil {
					return sess, err
				}
				log.Warn("Retry budget exhausted", zap.Int("retries", retries))
				r.lastStop = StopRetries
				return sess, nil
			}
		default:
			retries = 0
		}

		// A confirmation left pending from an earlier halt still gates the loop.
		if sess.PendingConfirmationID != "" && !sess.IsApproved(fingerprint) {
			log.Info("Stopping on unresolved confirmation", zap.String("confirmation_id", sess.PendingConfirmationID))
			r.lastStop = StopStale
			return sess, nil
		}
	}
}

func (r *Runner) waitDuration(seconds float64) time.Duration {
	d := time.Duration(seconds * float64(time.Second))
	if d > r.maxWait {
		d = r.maxWait
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (r *Runner) record(traceID string, sess *state.Session, summary string, d policy.Decision, resp protocol.TurnResponse, errMsg string) {
	if r.audit == nil {
		return
	}
	event := logger.AuditEvent{
		Source:         logger.SourceExecutor,
		Event:          "execute",
		SessionID:      sess.SessionID,
		TraceID:        traceID,
		Step:           sess.StepIndex,
		Action:         summary,
		Risk:           string(resp.Risk),
		Decision:       string(d.Status),
		Reason:         d.Reason,
		Confidence:     resp.Confidence,
		ConfirmationID: resp.ConfirmationID,
		Error:          errMsg,
	}
	if sess.LastResult != nil {
		event.ResultStatus = string(sess.LastResult.Status)
		event.ResultMessage = sess.LastResult.Message
	}
	if err := r.audit.Log(event); err != nil {
		r.logger.Warn("Failed to write audit event", zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
