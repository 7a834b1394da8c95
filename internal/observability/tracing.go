package observability

import (
	"context"
	"fmt"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sqlchat/sqlchat/internal/config"
)

const tracerName = "github.com/sqlchat/sqlchat"

// InitTracing installs a tracer provider that exports spans to the configured
// trace file. Without a trace file a no-op tracer is returned.
func InitTracing(ctx context.Context, cfg config.Config) (trace.Tracer, func(context.Context) error, error) {
	if cfg.Observability.TraceFile == "" {
		return noop.NewTracerProvider().Tracer(tracerName), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.Service.Name),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace resource: %w", err)
	}

	traceFile := &lumberjack.Logger{
		Filename:   cfg.Observability.TraceFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		_ = traceFile.Close()
		return err
	}
	return tp.Tracer(tracerName), shutdown, nil
}

// NopTracer is used by components constructed without a tracer.
func NopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(tracerName)
}
