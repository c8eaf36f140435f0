package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Level(t *testing.T) {
	log, err := NewLogger("warn")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !log.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled")
	}

	fallback, err := NewLogger("chatty")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if !fallback.Core().Enabled(zapcore.InfoLevel) || fallback.Core().Enabled(zapcore.DebugLevel) {
		t.Error("unknown level should fall back to info")
	}
}

func TestTracerProvider_StdoutExport(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider(true, &buf)
	if err != nil {
		t.Fatalf("tracer provider: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "pipeline.run")
	span.End()

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), `"Name": "pipeline.run"`) {
		t.Fatalf("span not exported:\n%s", buf.String())
	}
}

func TestTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(false, nil)
	if err != nil {
		t.Fatalf("tracer provider: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled provider should not record spans")
	}
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
