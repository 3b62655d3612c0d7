package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.TestConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Logger.Info("Cycle kernel started")

	fmt.Println("Telemetry initialized")
	// Output: Telemetry initialized
}

// Example_cycleInstrumentation demonstrates instrumenting one cycle and its phases.
func Example_cycleInstrumentation() {
	tel, _ := telemetry.NewTelemetry(telemetry.TestConfig())
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	ctx, span := tel.Tracer.StartCycleSpan(ctx, 42, "dry-run")
	tel.Metrics.RecordCycleStarted("dry-run")

	for _, phase := range []string{"signals", "recovery", "persist"} {
		op := tel.StartPhase(ctx, phase)
		op.Logger.WithCycleID(42).Debug("Phase running")
		op.End(nil)
	}

	span.End()
	tel.Metrics.RecordCycleCompleted("succeeded", 15*time.Millisecond)

	fmt.Println("Cycle instrumented")
	// Output: Cycle instrumented
}

// Example_multipleComponents demonstrates component loggers.
func Example_multipleComponents() {
	tel, _ := telemetry.NewTelemetry(telemetry.TestConfig())
	defer tel.Shutdown(context.Background())

	tel.Logger.NewComponentLogger("executor").WithDestination("Cycle_Log").Info("Flushing intents")
	tel.Logger.NewComponentLogger("recovery").Info("Recovery evaluated")

	fmt.Println("Multi-component logging complete")
	// Output: Multi-component logging complete
}
