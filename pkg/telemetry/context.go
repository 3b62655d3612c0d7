package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer and metrics shared by a cycle run.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// NopTelemetry returns telemetry that logs nothing, exports no spans and records no metrics.
func NopTelemetry() *Telemetry {
	cfg := TestConfig()
	cfg.Metrics.Enabled = false
	tracer, _ := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	return &Telemetry{
		Logger:  Nop(),
		Tracer:  tracer,
		Metrics: &Metrics{config: cfg.Metrics},
		Config:  cfg,
	}
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// Operation is an instrumented unit of work: a span, a logger and a timer.
type Operation struct {
	Ctx     context.Context
	Span    trace.Span
	Logger  *Logger
	Timer   *Timer
	name    string
	metrics *Metrics
}

// StartPhase begins a cycle phase span and returns the instrumented operation.
func (t *Telemetry) StartPhase(ctx context.Context, phase string) *Operation {
	spanCtx, span := t.Tracer.StartPhaseSpan(ctx, phase)
	return &Operation{
		Ctx:     spanCtx,
		Span:    span,
		Logger:  t.Logger.WithPhase(phase),
		Timer:   NewTimer(),
		name:    phase,
		metrics: t.Metrics,
	}
}

// StartOperation begins an instrumented operation using telemetry from the context.
// Without telemetry in the context only the logger and timer are populated.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *Operation {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &Operation{
			Ctx:    ctx,
			Span:   trace.SpanFromContext(ctx),
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
			name:   operation,
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)
	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &Operation{
		Ctx:     spanCtx,
		Span:    span,
		Logger:  logger,
		Timer:   NewTimer(),
		name:    operation,
		metrics: tel.Metrics,
	}
}

// End finishes the operation, recording its duration and outcome.
func (op *Operation) End(err error) {
	op.metrics.RecordPhase(op.name, op.Timer.Duration())
	if err != nil {
		RecordError(op.Span, err)
		var classified interface{ ErrorClass() string }
		if errors.As(err, &classified) {
			op.Span.SetAttributes(AttrErrorClass.String(classified.ErrorClass()))
		}
	} else {
		RecordSuccess(op.Span)
	}
	op.Span.End()
}
