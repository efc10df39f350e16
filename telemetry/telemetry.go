package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	errs "github.com/amp-labs/amp-fsm/errors"
	"github.com/amp-labs/amp-fsm/logger"
)

const gkeCollectorEndpoint = "http://opentelemetry-collector.opentelemetry.svc.cluster.local:4318"

var (
	mu             sync.Mutex               //nolint:gochecknoglobals
	tracerProvider *sdktrace.TracerProvider //nolint:gochecknoglobals
	loggerProvider *sdklog.LoggerProvider   //nolint:gochecknoglobals
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	ServiceName    string        `env:"OTEL_SERVICE_NAME"`
	ServiceVersion string        `env:"OTEL_SERVICE_VERSION"              envDefault:"1.0.0"`
	Environment    string        `env:"ENVIRONMENT"                       envDefault:"development"`
	Endpoint       string        `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	LogsEndpoint   string        `env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
	Enabled        bool          `env:"OTEL_ENABLED"                      envDefault:"false"`
	Timeout        time.Duration `env:"OTEL_EXPORTER_OTLP_TRACES_TIMEOUT" envDefault:"5s"`
}

// LoadConfigFromEnv loads OpenTelemetry configuration from environment variables.
// Inside Kubernetes the endpoint defaults to the cluster collector, and the
// service name defaults to the logging subsystem.
func LoadConfigFromEnv(ctx context.Context) (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse telemetry config: %w", err)
	}

	if cfg.Endpoint == "" && os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		cfg.Endpoint = gkeCollectorEndpoint
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = logger.GetSubsystem(ctx)
	}

	return &cfg, nil
}

// Initialize installs global OTLP tracing and creates the OTLP log provider
// used by Logger. Logs go to LogsEndpoint, or to Endpoint when that is empty.
func Initialize(ctx context.Context, config *Config) error {
	log := logger.Get(ctx)

	if config == nil || !config.Enabled {
		log.Info("OpenTelemetry is disabled")

		return nil
	}

	if config.Endpoint == "" {
		log.Warn("OpenTelemetry endpoint not configured, telemetry will be disabled")

		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(config.Endpoint),
		otlptracehttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	logsEndpoint := config.LogsEndpoint
	if logsEndpoint == "" {
		logsEndpoint = config.Endpoint
	}

	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(logsEndpoint),
		otlploghttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("OpenTelemetry initialized",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"environment", config.Environment,
		"endpoint", config.Endpoint,
		"logs_endpoint", logsEndpoint,
	)

	return nil
}

// Logger returns a slog logger exporting records over OTLP. It reports false
// until Initialize has set up a log provider.
func Logger(name string) (*slog.Logger, bool) {
	mu.Lock()
	defer mu.Unlock()

	if loggerProvider == nil {
		return nil, false
	}

	return otelslog.NewLogger(name, otelslog.WithLoggerProvider(loggerProvider)), true
}

// Shutdown flushes and stops both providers.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	if tracerProvider == nil && loggerProvider == nil {
		return nil
	}

	logger.Get(ctx).Info("Shutting down OpenTelemetry providers")

	collected := errs.Collection{}

	if tracerProvider != nil {
		collected.Addf(tracerProvider.Shutdown(ctx), "tracer provider")
		tracerProvider = nil
	}

	if loggerProvider != nil {
		collected.Addf(loggerProvider.Shutdown(ctx), "logger provider")
		loggerProvider = nil
	}

	return collected.GetError()
}
