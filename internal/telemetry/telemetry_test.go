package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", " http://collector:4318 ")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg := ConfigFromEnv()
	if cfg.Endpoint != "http://collector:4318" || cfg.SampleRatio != 0.25 || cfg.ServiceName != ServiceName {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")
	if got := ConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("out-of-range ratio should fall back to 1, got %v", got)
	}
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestStripScheme(t *testing.T) {
	for raw, want := range map[string]string{
		"http://collector:4318":  "collector:4318",
		"https://otel.example":   "otel.example",
		"collector.internal:443": "collector.internal:443",
	} {
		if got := stripScheme(raw); got != want {
			t.Fatalf("stripScheme(%q) = %q, want %q", raw, got, want)
		}
	}
	if client := NewHTTPClient(3 * time.Second); client.Timeout != 3*time.Second || client.Transport == nil {
		t.Fatalf("unexpected client: %+v", client)
	}
}
