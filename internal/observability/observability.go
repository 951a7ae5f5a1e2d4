// Package observability wires structured logging, tracing, and metrics
// behind a single Init call that returns a bundle the rest of the process
// holds onto until shutdown. The core executor never imports this package
// directly and carries no module-level singletons; only cmd/test-engine and
// internal/api do.
package observability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls observability initialization.
type Config struct {
	ServiceName string
	Environment string
	LogLevel    string
}

// Observability bundles the initialized logger, tracer, and metric
// collectors for the whole process.
type Observability struct {
	Logger         *zap.Logger
	TracerProvider *sdktrace.TracerProvider
	Metrics        *Metrics
}

// Metrics are the Prometheus collectors the executor's caller (internal/api)
// updates around each invocation: execution counts, durations, and anomaly
// counts.
type Metrics struct {
	Executions *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Anomalies  *prometheus.CounterVec
}

// NewMetrics registers the collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "test_engine",
			Name:      "executions_total",
			Help:      "Total number of test executions, labeled by test type and outcome.",
		}, []string{"test_type", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "test_engine",
			Name:      "execution_duration_seconds",
			Help:      "Duration of a test execution end to end.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"test_type"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "test_engine",
			Name:      "anomalies_total",
			Help:      "Total number of anomalous decisions, labeled by test type.",
		}, []string{"test_type"}),
	}
	reg.MustRegister(m.Executions, m.Duration, m.Anomalies)
	return m
}

// Init builds the logger and tracer provider. No OTLP exporter is
// registered by default: this engine runs the span recorder in-process,
// so the resource this buys is consistent context propagation (trace/span
// ids in log fields) across one request/response invocation rather than a
// populated backend. Wiring a real OTLP exporter is a one-line addition at
// the call site in cmd/test-engine once a collector endpoint exists.
func Init(cfg Config) (*Observability, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return &Observability{Logger: logger, TracerProvider: tp}, nil
}

// MustInit panics if Init returns an error.
func MustInit(cfg Config) *Observability {
	obs, err := Init(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	return obs
}

// Shutdown flushes the tracer provider and the logger's buffered writes.
func (o *Observability) Shutdown(ctx context.Context) error {
	var firstErr error
	if o.TracerProvider != nil {
		if err := o.TracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if o.Logger != nil {
		if err := o.Logger.Sync(); err != nil && !isBenignSyncError(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithTrace returns a logger enriched with the active span's trace/span ids.
func (o *Observability) WithTrace(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return o.Logger
	}
	sc := span.SpanContext()
	return o.Logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

func newLogger(cfg Config) (*zap.Logger, error) {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.AddSync(os.Stdout),
		parseLevel(cfg.LogLevel),
	)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("service", cfg.ServiceName),
			zap.String("environment", cfg.Environment),
		),
	), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func isBenignSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stdout") || strings.Contains(msg, "sync /dev/stderr") || strings.Contains(msg, "invalid argument")
}
