package tracing

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/config"
)

func testConfig() config.TracingConfig {
	return config.TracingConfig{
		Enabled: true,
		// Non-routable, so nothing is actually exported.
		Endpoint:    "192.0.2.1:4318",
		Insecure:    true,
		ServiceName: "graylogic-rules-test",
		SampleRatio: 1,
	}
}

func TestSetup_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled tracing replaced the global provider")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Errorf("noop shutdown error = %v", err)
	}
}

func TestSetup_Enabled(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	shutdown, err := Setup(context.Background(), testConfig(), "test")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("global provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}
}

func TestNewProvider_Resource(t *testing.T) {
	tp, err := NewProvider(context.Background(), testConfig(), "1.2.3")
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	defer tp.Shutdown(context.Background()) //nolint:errcheck // Test cleanup

	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	defer span.End()

	ro, ok := span.(sdktrace.ReadOnlySpan)
	if !ok {
		t.Fatalf("span %T is not a ReadOnlySpan", span)
	}
	attrs := ro.Resource().String()
	if !strings.Contains(attrs, "graylogic-rules-test") || !strings.Contains(attrs, "1.2.3") {
		t.Errorf("resource = %s, want service name and version", attrs)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "root:AlwaysOnSampler"},
		{2, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); !strings.Contains(got, tt.want) {
			t.Errorf("sampler(%v) = %s, want it to contain %s", tt.ratio, got, tt.want)
		}
	}
}
