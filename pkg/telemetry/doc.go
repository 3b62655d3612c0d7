// Package telemetry provides observability instrumentation for the cycle kernel.
//
// It bundles structured logging (zerolog), tracing (OpenTelemetry) and metrics
// (Prometheus) behind a single Telemetry value that the cycle runner and the
// persistence executor share.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// Component loggers carry the cycle and phase being processed:
//
//	logger := tel.Logger.NewComponentLogger("executor").WithCycleID(42)
//	logger.Info("Flushing intents")
//
// # Tracing
//
// The runner opens one span per cycle and a child span per phase:
//
//	ctx, span := tel.Tracer.StartCycleSpan(ctx, 42, "run")
//	defer span.End()
//
// # Metrics
//
// Metrics are nil-safe: a disabled Metrics value silently ignores every
// Record call, so callers never branch on configuration.
//
//	tel.Metrics.RecordCycleCompleted("succeeded", elapsed)
//	tel.Metrics.RecordIntentExecuted("append", "executed")
package telemetry
