// Package telemetry builds the process logger and tracer provider.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ServiceName = "vinreport"

// NewLogger returns a JSON production logger at the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.Fields(zap.String("service", ServiceName)))
}

// TracerProvider owns an SDK provider, or nothing when tracing is off.
type TracerProvider struct {
	trace.TracerProvider
	sdk *sdktrace.TracerProvider
}

// NewTracerProvider exports spans as pretty-printed JSON to w when enabled.
// When disabled it returns a no-op provider. The result is installed as the
// global provider either way.
func NewTracerProvider(enabled bool, w io.Writer) (*TracerProvider, error) {
	if !enabled {
		tp := &TracerProvider{TracerProvider: noop.NewTracerProvider()}
		otel.SetTracerProvider(tp.TracerProvider)
		return tp, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	res := sdkresource.NewSchemaless(semconv.ServiceName(ServiceName))
	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)
	return &TracerProvider{TracerProvider: sdk, sdk: sdk}, nil
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.sdk == nil {
		return nil
	}
	return tp.sdk.Shutdown(ctx)
}
