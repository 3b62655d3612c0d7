package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for the cycle kernel. A Metrics built
// from a disabled config ignores every Record call.
type Metrics struct {
	config MetricsConfig

	cyclesStarted   *prometheus.CounterVec
	cyclesCompleted *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	phaseDuration   *prometheus.HistogramVec

	intentsQueued   *prometheus.CounterVec
	intentsExecuted *prometheus.CounterVec
	intentsSkipped  *prometheus.CounterVec

	ledgerCalls    *prometheus.CounterVec
	ledgerDuration *prometheus.HistogramVec

	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	recoveryLevel    prometheus.Gauge
	overloadScore    prometheus.Gauge
	replayMismatches prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	ns := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		cyclesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "cycles_started_total", Help: "Total number of cycles started"},
			[]string{"mode"},
		),
		cyclesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "cycles_completed_total", Help: "Total number of cycles completed"},
			[]string{"status"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: ns, Name: "cycle_duration_seconds", Help: "Duration of a full cycle in seconds", Buckets: prometheus.DefBuckets},
			[]string{"status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: ns, Name: "phase_duration_seconds", Help: "Duration of each cycle phase in seconds", Buckets: prometheus.DefBuckets},
			[]string{"phase"},
		),
		intentsQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "intents_queued_total", Help: "Write intents accepted by the queue"},
			[]string{"kind", "bucket"},
		),
		intentsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "intents_executed_total", Help: "Write intents applied to the ledger"},
			[]string{"kind", "status"},
		),
		intentsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "intents_skipped_total", Help: "Write intents skipped in dry-run or replay"},
			[]string{"reason"},
		),
		ledgerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "ledger_calls_total", Help: "Ledger store calls"},
			[]string{"operation", "destination"},
		),
		ledgerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: ns, Name: "ledger_call_duration_seconds", Help: "Duration of ledger store calls in seconds", Buckets: prometheus.DefBuckets},
			[]string{"operation"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "errors_by_class_total", Help: "Errors by error class"},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "errors_by_code_total", Help: "Errors by error code"},
			[]string{"code"},
		),
		recoveryLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: ns, Name: "recovery_level", Help: "Current recovery level (0=none, 3=heavy)"},
		),
		overloadScore: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: ns, Name: "overload_score", Help: "Overload score of the last cycle"},
		),
		replayMismatches: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: ns, Name: "replay_mismatches_total", Help: "Replays whose checksum differed from the recorded one"},
		),
	}

	registry.MustRegister(
		m.cyclesStarted,
		m.cyclesCompleted,
		m.cycleDuration,
		m.phaseDuration,
		m.intentsQueued,
		m.intentsExecuted,
		m.intentsSkipped,
		m.ledgerCalls,
		m.ledgerDuration,
		m.errorsByClass,
		m.errorsByCode,
		m.recoveryLevel,
		m.overloadScore,
		m.replayMismatches,
	)

	return m, nil
}

// Enabled reports whether metrics are being collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// RecordCycleStarted increments the started counter for the given mode.
func (m *Metrics) RecordCycleStarted(mode string) {
	if !m.Enabled() {
		return
	}
	m.cyclesStarted.WithLabelValues(mode).Inc()
}

// RecordCycleCompleted records a completed cycle with its status and duration.
func (m *Metrics) RecordCycleCompleted(status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.cyclesCompleted.WithLabelValues(status).Inc()
	m.cycleDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPhase records how long a phase took.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordIntentQueued counts an accepted write intent.
func (m *Metrics) RecordIntentQueued(kind, bucket string) {
	if !m.Enabled() {
		return
	}
	m.intentsQueued.WithLabelValues(kind, bucket).Inc()
}

// RecordIntentExecuted counts an intent applied (or failed) against the ledger.
func (m *Metrics) RecordIntentExecuted(kind, status string) {
	if !m.Enabled() {
		return
	}
	m.intentsExecuted.WithLabelValues(kind, status).Inc()
}

// RecordIntentsSkipped counts intents held back by dry-run or replay.
func (m *Metrics) RecordIntentsSkipped(reason string, count int) {
	if !m.Enabled() || count == 0 {
		return
	}
	m.intentsSkipped.WithLabelValues(reason).Add(float64(count))
}

// RecordLedgerCall records a ledger store call with its duration.
func (m *Metrics) RecordLedgerCall(operation, destination string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.ledgerCalls.WithLabelValues(operation, destination).Inc()
	m.ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if !m.Enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// SetRecovery publishes the recovery rank and overload score of the last cycle.
func (m *Metrics) SetRecovery(rank int, overload int) {
	if !m.Enabled() {
		return
	}
	m.recoveryLevel.Set(float64(rank))
	m.overloadScore.Set(float64(overload))
}

// RecordReplayMismatch counts a replay whose output diverged.
func (m *Metrics) RecordReplayMismatch() {
	if !m.Enabled() {
		return
	}
	m.replayMismatches.Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing metrics. The returned
// server can be shut down by the caller.
func (m *Metrics) StartMetricsServer() *http.Server {
	if !m.Enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()

	return server
}
