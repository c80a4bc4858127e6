// Package planner turns executor turn requests into a single validated,
// risk-classified action.
//
// Pipeline per turn:
//
//	validate → session → max-steps guardrail → perception → CAPTCHA guardrail
//	  → provider (timeout, panic and error degrade to wait) → normalize
//	  → injection scan → classify → confirmation gating → response
//
// Every turn is traced, counted, logged and written to the audit log.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gzhole/deskpilot/internal/action"
	"github.com/gzhole/deskpilot/internal/guardian"
	"github.com/gzhole/deskpilot/internal/logger"
	"github.com/gzhole/deskpilot/internal/normalize"
	"github.com/gzhole/deskpilot/internal/observability"
	"github.com/gzhole/deskpilot/internal/perception"
	"github.com/gzhole/deskpilot/internal/policy"
	"github.com/gzhole/deskpilot/internal/protocol"
	"github.com/gzhole/deskpilot/internal/provider"
	"github.com/gzhole/deskpilot/internal/redact"
	"github.com/gzhole/deskpilot/internal/session"
)

// DefaultProviderTimeout bounds one provider call.
const DefaultProviderTimeout = 15 * time.Second

// captchaMarkers in OCR text stop the session before the provider is asked.
var captchaMarkers = []string{"captcha", "i am not a robot"}

type Service struct {
	provider        provider.Planner
	sessions        session.Store
	engine          *policy.Engine
	analyzer        perception.Analyzer
	guardian        guardian.Provider
	logger          *zap.Logger
	metrics         *observability.Metrics
	tracer          *observability.Tracer
	audit           *logger.AuditLogger
	providerTimeout time.Duration
}

type Option func(*Service)

func WithAnalyzer(a perception.Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithGuardian replaces the injection scanner. nil disables scanning.
func WithGuardian(g guardian.Provider) Option {
	return func(s *Service) { s.guardian = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l.Named("planner") }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t *observability.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithAuditLogger appends every turn and confirmation to a.
func WithAuditLogger(a *logger.AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

func NewService(p provider.Planner, store session.Store, engine *policy.Engine, opts ...Option) *Service {
	s := &Service{
		provider:        p,
		sessions:        store,
		engine:          engine,
		analyzer:        perception.Nop{},
		guardian:        guardian.NewHeuristicProvider(),
		logger:          zap.NewNop(),
		providerTimeout: DefaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics()
	}
	return s
}

// Metrics exposes the collectors, e.g. for a /metrics handler.
func (s *Service) Metrics() *observability.Metrics { return s.metrics }

func (s *Service) StartSession(ctx context.Context, req protocol.StartSessionRequest) (protocol.StartSessionResponse, error) {
	if err := req.Validate(); err != nil {
		return protocol.StartSessionResponse{}, err
	}
	var constraints policy.Constraints
	if req.Constraints != nil {
		constraints = *req.Constraints
	}

	sess, err := s.sessions.Create(req.Task, constraints)
	if err != nil {
		return protocol.StartSessionResponse{}, err
	}
	if err := s.sessions.SetMetadata(sess.ID, "provider", s.provider.Name()); err != nil {
		return protocol.StartSessionResponse{}, err
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	s.logger.Info("Session started",
		zap.String("session_id", sess.ID),
		zap.Int("max_steps", sess.Constraints.EffectiveMaxSteps()),
		zap.Int("blocked_apps", len(sess.Constraints.BlockedApps)))
	s.record(logger.AuditEvent{
		Source:    logger.SourcePlanner,
		Event:     "session_start",
		SessionID: sess.ID,
		Reason:    redact.Redact(sess.Task),
	})

	return protocol.StartSessionResponse{
		SessionID:   sess.ID,
		CreatedAt:   sess.CreatedAt,
		Constraints: sess.Constraints,
	}, nil
}

// Confirm resolves a pending confirmation token. A rejection consumes the
// token; an approval of an unknown or used token reports not_found.
func (s *Service) Confirm(ctx context.Context, sessionID string, req protocol.ConfirmRequest) (protocol.ConfirmResponse, error) {
	if err := req.Validate(); err != nil {
		return protocol.ConfirmResponse{}, err
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		return protocol.ConfirmResponse{}, err
	}

	status := protocol.ConfirmNotFound
	if req.Approved {
		ok, err := s.sessions.ApproveConfirmation(sessionID, req.ConfirmationID)
		if err != nil {
			return protocol.ConfirmResponse{}, err
		}
		if ok {
			status = protocol.ConfirmApproved
		}
	} else {
		if _, err := s.sessions.RejectConfirmation(sessionID, req.ConfirmationID); err != nil {
			return protocol.ConfirmResponse{}, err
		}
		status = protocol.ConfirmRejected
	}

	s.metrics.ConfirmationCounter.WithLabelValues(string(status)).Inc()
	s.logger.Info("Confirmation resolved",
		zap.String("session_id", sessionID),
		zap.String("confirmation_id", req.ConfirmationID),
		zap.String("status", string(status)))
	s.record(logger.AuditEvent{
		Source:         logger.SourcePlanner,
		Event:          "confirm",
		SessionID:      sessionID,
		ConfirmationID: req.ConfirmationID,
		Decision:       string(status),
	})

	return protocol.ConfirmResponse{
		SessionID:      sessionID,
		ConfirmationID: req.ConfirmationID,
		Status:         status,
	}, nil
}

// Turn proposes the next action for a session. Provider failures never
// surface as errors; only invalid requests and unknown sessions do.
func (s *Service) Turn(ctx context.Context, req protocol.TurnRequest) (protocol.TurnResponse, error) {
	traceID := req.Context.TraceID
	if traceID == "" {
		traceID = protocol.NewTraceID()
	}
	ctx, span := s.tracer.Start(ctx, "planner.turn",
		attribute.String("session_id", req.SessionID),
		attribute.String("trace_id", traceID),
		attribute.Int("step_index", req.Context.StepIndex))
	defer span.End()

	log := s.logger.With(zap.String("trace_id", traceID), zap.String("session_id", req.SessionID))

	if err := req.Validate(); err != nil {
		s.tracer.RecordError(span, err)
		return protocol.TurnResponse{}, err
	}
	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		s.tracer.RecordError(span, err)
		return protocol.TurnResponse{}, err
	}

	constraints := sess.Constraints
	if req.Constraints != nil {
		constraints = *req.Constraints
	}
	// finish audits against the effective constraints.
	req.Constraints = &constraints
	width, height := req.Screen.Width, req.Screen.Height

	if maxSteps := constraints.EffectiveMaxSteps(); req.Context.StepIndex >= maxSteps {
		s.metrics.GuardrailCounter.WithLabelValues("max_steps").Inc()
		log.Info("Max steps reached", zap.Int("step_index", req.Context.StepIndex), zap.Int("max_steps", maxSteps))
		resp := s.guardrail(traceID, action.Fail{Reason: "max_steps reached"}, width, height,
			"Maximum steps reached.", "Safety guardrail triggered.", policy.RiskLow, 1.0, "execution stops")
		s.finish(req, resp, "max_steps")
		return resp, nil
	}

	snapshot := s.perceive(ctx, req.Screen, log)
	if captchaDetected(snapshot) {
		s.metrics.GuardrailCounter.WithLabelValues("captcha").Inc()
		log.Warn("CAPTCHA detected, stopping before provider")
		resp := s.guardrail(traceID, action.Fail{Reason: "CAPTCHA detected. User interaction required."}, width, height,
			"CAPTCHA or anti-bot challenge detected.", "Policy blocks captcha solving or bypass attempts.",
			policy.RiskDestructive, 0.98, "task stops safely")
		s.finish(req, resp, "captcha")
		return resp, nil
	}

	in := provider.Input{
		Task:          req.Task,
		StepIndex:     req.Context.StepIndex,
		ImageBase64:   req.Screen.ImageBase64,
		Width:         width,
		Height:        height,
		ActiveWindow:  req.Context.ActiveWindow,
		OCRText:       snapshot.Texts(provider.MaxContextItems),
		CandidateText: snapshot.CandidateTexts(provider.MaxContextItems),
	}
	if req.Context.LastResult != nil {
		in.LastResultMessage = req.Context.LastResult.Message
	}

	out, err := s.plan(ctx, in)
	if err != nil {
		s.metrics.ProviderFallbackCounter.WithLabelValues("error").Inc()
		log.Warn("Provider failure, falling back to wait", zap.Error(err))
		resp := s.fallback(traceID, width, height)
		s.finish(req, resp, "provider_error")
		return resp, nil
	}

	proposed, err := normalize.Raw(out.Action, width, height)
	if err != nil {
		s.metrics.ProviderFallbackCounter.WithLabelValues("invalid_action").Inc()
		log.Warn("Provider proposed an invalid action, falling back to wait", zap.Error(err))
		resp := s.fallback(traceID, width, height)
		s.finish(req, resp, "invalid_action")
		return resp, nil
	}

	guard := s.scan(req, snapshot, proposed, log)

	risk := s.engine.Classify(proposed, req.Task, out.Observation, out.Reasoning)
	fingerprint, err := action.Fingerprint(proposed)
	if err != nil {
		s.tracer.RecordError(span, err)
		return protocol.TurnResponse{}, fmt.Errorf("fingerprint action: %w", err)
	}

	resp := protocol.TurnResponse{
		Observation:     out.Observation,
		Reasoning:       out.Reasoning,
		Action:          action.Envelope{Action: proposed},
		Risk:            risk,
		Confidence:      clampConfidence(out.Confidence),
		ExpectedOutcome: out.ExpectedOutcome,
		TraceID:         traceID,
	}
	if risk.NeedsConfirmation() {
		cid, required, err := s.sessions.RequireConfirmation(req.SessionID, fingerprint)
		if err != nil {
			s.tracer.RecordError(span, err)
			return protocol.TurnResponse{}, err
		}
		if required {
			resp.ConfirmationRequired = true
			resp.ConfirmationID = cid
			s.metrics.ConfirmationCounter.WithLabelValues("required").Inc()
		}
	}

	span.SetAttributes(
		attribute.String("action", string(proposed.Kind())),
		attribute.String("risk", string(risk)),
		attribute.Bool("confirmation_required", resp.ConfirmationRequired),
		attribute.Bool("injection_suspected", guard != ""))
	log.Info("Turn produced",
		zap.String("action", string(proposed.Kind())),
		zap.String("risk", string(risk)),
		zap.Bool("confirmation_required", resp.ConfirmationRequired))
	s.finish(req, resp, guard)
	return resp, nil
}

// scan runs the guardian over the screen text and any text about to be
// typed. It returns "screen_injection" when a signal fired.
func (s *Service) scan(turn protocol.TurnRequest, snapshot perception.Snapshot, proposed action.Action, log *zap.Logger) string {
	if s.guardian == nil {
		return ""
	}
	req := guardian.Request{
		ScreenText:   strings.Join(snapshot.Texts(len(snapshot.Tokens)), " "),
		ActiveWindow: turn.Context.ActiveWindow,
		Task:         turn.Task,
	}
	if t, ok := proposed.(action.Type); ok {
		req.TypedText = t.Text
	}
	resp, err := s.guardian.Analyze(req)
	if err != nil {
		log.Warn("Guardian failed", zap.String("guardian", s.guardian.Name()), zap.Error(err))
		return ""
	}
	if !resp.Flagged() {
		return ""
	}
	s.metrics.GuardrailCounter.WithLabelValues("screen_injection").Inc()
	log.Warn("Possible prompt injection",
		zap.Strings("signals", resp.IDs()),
		zap.String("verdict", resp.Verdict),
		zap.String("explanation", resp.Explanation))
	return "screen_injection"
}

// plan calls the provider under the provider timeout. A provider that
// panics or ignores its context is treated as failed.
func (s *Service) plan(ctx context.Context, in provider.Input) (provider.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "planner.provider", attribute.String("provider", s.provider.Name()))
	defer span.End()

	type result struct {
		out provider.Output
		err error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		out, err := s.provider.PlanNextAction(ctx, in)
		done <- result{out: out, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = result{err: fmt.Errorf("provider %s: %w", s.provider.Name(), ctx.Err())}
	}

	status := "success"
	if r.err != nil {
		status = "error"
		s.tracer.RecordError(span, r.err)
	}
	s.metrics.ProviderDuration.WithLabelValues(s.provider.Name(), status).Observe(time.Since(start).Seconds())
	return r.out, r.err
}

func (s *Service) perceive(ctx context.Context, screen protocol.ScreenCapture, log *zap.Logger) perception.Snapshot {
	snapshot, err := s.analyzer.Analyze(ctx, screen)
	if err != nil {
		log.Warn("Perception failed, continuing without OCR", zap.Error(err))
		return perception.Snapshot{}
	}
	return snapshot
}

// guardrail builds a response for a turn stopped before the provider.
func (s *Service) guardrail(traceID string, a action.Action, width, height int, observation, reasoning string, risk policy.Risk, confidence float64, expected string) protocol.TurnResponse {
	normalized, err := normalize.Action(a, width, height)
	if err != nil {
		normalized = a
	}
	return protocol.TurnResponse{
		Observation:     observation,
		Reasoning:       reasoning,
		Action:          action.Envelope{Action: normalized},
		Risk:            risk,
		Confidence:      confidence,
		ExpectedOutcome: expected,
		TraceID:         traceID,
	}
}

func (s *Service) fallback(traceID string, width, height int) protocol.TurnResponse {
	return s.guardrail(traceID, action.Wait{Seconds: 1.0}, width, height,
		"Planner provider timeout or error.", "Return a safe retry action for executor.",
		policy.RiskLow, 0.2, "retry once after wait")
}

// finish counts and audits a produced turn. The local policy verdict is
// recorded alongside the classifier's risk.
func (s *Service) finish(req protocol.TurnRequest, resp protocol.TurnResponse, guard string) {
	kind := "none"
	if resp.Action.Action != nil {
		kind = string(resp.Action.Action.Kind())
	}
	s.metrics.TurnCounter.WithLabelValues(kind, string(resp.Risk)).Inc()

	decision := s.engine.Evaluate(policy.Input{
		Action:       resp.Action.Action,
		Task:         req.Task,
		Observation:  resp.Observation,
		Reasoning:    resp.Reasoning,
		ActiveWindow: req.Context.ActiveWindow,
		Constraints:  req.Constraints,
	})
	reason := decision.Reason
	if guard != "" {
		reason = guard
	}

	s.record(logger.AuditEvent{
		Source:         logger.SourcePlanner,
		Event:          "turn",
		SessionID:      req.SessionID,
		TraceID:        resp.TraceID,
		Step:           req.Context.StepIndex,
		Action:         action.Describe(resp.Action.Action, redact.Redact),
		Risk:           string(resp.Risk),
		Decision:       string(decision.Status),
		Reason:         reason,
		Confidence:     resp.Confidence,
		ConfirmationID: resp.ConfirmationID,
	})
}

func (s *Service) record(event logger.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(event); err != nil {
		s.logger.Warn("Failed to write audit event", zap.Error(err))
	}
}

// captchaDetected checks the joined OCR text so multi-word markers match
// across word tokens.
func captchaDetected(snapshot perception.Snapshot) bool {
	joined := strings.ToLower(strings.Join(snapshot.Texts(len(snapshot.Tokens)), " "))
	for _, m := range captchaMarkers {
		if strings.Contains(joined, m) {
			return true
		}
	}
	return false
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound)
}
