package o11y

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/semanticallynull/rental-backend/internal/metrics"
)

type Observability struct {
	Logger   *slog.Logger
	Tracer   *trace.TracerProvider
	Registry *prometheus.Registry
}

type Options struct {
	LogLevel slog.Level
	// LogFile, when set, receives a rotated copy of every log line.
	LogFile      string
	OTLPEndpoint string
	SampleRatio  float64
}

func Setup(ctx context.Context, opts Options) (*Observability, func(), error) {
	var out io.Writer = os.Stdout
	var rotator *lumberjack.Logger
	if opts.LogFile != "" {
		rotator = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	// Initialize slog
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: opts.LogLevel,
	}))

	// Initialize OpenTelemetry (with sampling)
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithEndpoint(opts.OTLPEndpoint),
	)
	if err != nil {
		return nil, func() {}, err
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithSampler(trace.ParentBased(
			trace.TraceIDRatioBased(opts.SampleRatio),
		)),
	)
	otel.SetTracerProvider(tp)

	// Initialize Prometheus registry
	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	cleanup := func() {
		tp.Shutdown(ctx)
		if rotator != nil {
			rotator.Close()
		}
	}

	return &Observability{
		Logger:   logger,
		Tracer:   tp,
		Registry: registry,
	}, cleanup, nil
}
