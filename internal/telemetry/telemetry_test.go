package telemetry

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSamplerForMode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mode     string
		ratio    float64
		wantDrop bool
	}{
		{name: "off_mode_drops", mode: "off", ratio: 0.5, wantDrop: true},
		{name: "sampled_zero_ratio_drops", mode: "sampled", ratio: 0, wantDrop: true},
		{name: "sampled_full_ratio_records", mode: "sampled", ratio: 1, wantDrop: false},
		{name: "detailed_records", mode: "detailed", ratio: 0, wantDrop: false},
		{name: "errors_mode_uses_low_sampling", mode: "errors", ratio: 1, wantDrop: false},
		{name: "unknown_mode_defaults_to_sampled", mode: "unknown", ratio: 1, wantDrop: false},
	}

	params := sdktrace.SamplingParameters{}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decision := samplerForMode(tc.mode, tc.ratio).ShouldSample(params).Decision
			gotDrop := decision == sdktrace.Drop
			if gotDrop != tc.wantDrop {
				t.Fatalf("ShouldSample().Decision drop=%t, want %t", gotDrop, tc.wantDrop)
			}
		})
	}
}

func TestClampRatio(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   float64
		want float64
	}{
		{in: -1, want: 0},
		{in: 0.3, want: 0.3},
		{in: 4, want: 1},
	}
	for _, tc := range testCases {
		if got := clampRatio(tc.in); got != tc.want {
			t.Fatalf("clampRatio(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// Setup mutates global tracer state, so these cases run sequentially.
func TestSetupAndStartSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	runtime, err := Setup(Config{
		Enabled:   true,
		TraceMode: "detailed",
		Exporter:  exporter,
	})
	if err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}
	if !ShouldTraceDependencies() {
		t.Fatalf("ShouldTraceDependencies() = false, want true in detailed mode")
	}

	_, end := StartSpan(context.Background(), "test", "job.phase")
	end(errors.New("write failed"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "job.phase" {
		t.Fatalf("span name = %q, want job.phase", spans[0].Name)
	}
	if len(spans[0].Events) == 0 {
		t.Fatalf("expected recorded error event")
	}
	if err := runtime.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}

	disabled, err := Setup(Config{Enabled: false, TraceMode: "detailed"})
	if err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}
	if TraceMode() != "off" {
		t.Fatalf("TraceMode() = %q, want off when disabled", TraceMode())
	}
	ctx := context.Background()
	gotCtx, endNoop := StartSpan(ctx, "test", "ignored")
	endNoop(nil)
	if gotCtx != ctx {
		t.Fatalf("StartSpan() should return the input context when tracing is off")
	}
	if err := disabled.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}
}
