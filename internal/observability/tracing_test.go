package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TracingConfig)
		wantErr string
	}{
		{name: "defaults", mutate: func(*TracingConfig) {}},
		{name: "otlp", mutate: func(c *TracingConfig) { c.Exporter = "OTLP" }},
		{name: "unknown exporter", mutate: func(c *TracingConfig) { c.Exporter = "zipkin" }, wantErr: "zipkin"},
		{name: "ratio above one", mutate: func(c *TracingConfig) { c.SampleRatio = 1.5 }, wantErr: "sample_ratio"},
		{name: "enabled without name", mutate: func(c *TracingConfig) {
			c.Enabled = true
			c.ServiceName = ""
		}, wantErr: "service_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTracingConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetupTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), DefaultTracingConfig(), nil)
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTracingRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "zipkin"
	if _, err := SetupTracing(context.Background(), cfg, nil); err == nil {
		t.Fatalf("SetupTracing with unknown exporter returned nil error")
	}
}

func TestSetupTracingExportsSpansWithDroneResource(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	shutdown, err := SetupTracing(context.Background(), cfg, nil,
		WithSpanWriter(&buf),
		WithResourceAttributes(attribute.String("twin.drone_id", "survey-hex")),
	)
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "twin.Observe")
	span.End()
	ShutdownTracing(shutdown, time.Second, nil)

	out := buf.String()
	for _, want := range []string{"twin.Observe", "survey-hex", "flight-twin"} {
		if !strings.Contains(out, want) {
			t.Fatalf("exported spans missing %q:\n%s", want, out)
		}
	}
}
