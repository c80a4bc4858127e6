package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the planner's Prometheus collectors. Each instance owns its
// registry so tests and multiple servers never collide.
type Metrics struct {
	Registry *prometheus.Registry

	// TurnCounter counts turns by action kind and risk.
	// Labels: action, risk
	TurnCounter *prometheus.CounterVec

	// GuardrailCounter counts turns short-circuited before the provider.
	// Labels: guardrail (max_steps, captcha)
	GuardrailCounter *prometheus.CounterVec

	// ConfirmationCounter counts confirmation lifecycle events.
	// Labels: event (required, approved, rejected, not_found)
	ConfirmationCounter *prometheus.CounterVec

	// ProviderDuration tracks provider latency in seconds.
	// Labels: provider, status (success, error)
	ProviderDuration *prometheus.HistogramVec

	// ProviderFallbackCounter counts provider failures degraded to a wait.
	// Labels: reason (error, invalid_action)
	ProviderFallbackCounter *prometheus.CounterVec

	// HTTPRequestDuration tracks API latency in seconds.
	// Labels: route, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// ActiveSessions is the number of sessions created since start.
	ActiveSessions prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_turns_total",
				Help: "Total planner turns by proposed action and risk",
			},
			[]string{"action", "risk"},
		),
		GuardrailCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_guardrails_total",
				Help: "Turns stopped by a guardrail before planning",
			},
			[]string{"guardrail"},
		),
		ConfirmationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_confirmations_total",
				Help: "Confirmation tokens by lifecycle event",
			},
			[]string{"event"},
		),
		ProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskpilot_provider_duration_seconds",
				Help:    "Planning provider latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"provider", "status"},
		),
		ProviderFallbackCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_provider_fallbacks_total",
				Help: "Provider failures replaced by a safe wait",
			},
			[]string{"reason"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskpilot_http_request_duration_seconds",
				Help:    "Planner API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status_code"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskpilot_sessions",
				Help: "Sessions held by the planner",
			},
		),
	}
}
