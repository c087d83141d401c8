// Package telemetry wires OpenTelemetry tracing and metrics for the service.
// Traces go to an OTLP collector, metrics are scraped from a Prometheus
// endpoint; both are optional and off by default.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"

	"github.com/finsight/finsight/consts"
	"github.com/finsight/finsight/pkg/logger"
)

const (
	exporterConnectTimeout = 10 * time.Second
	metricsHTTPTimeout     = 10 * time.Second
	defaultPrometheusPort  = 9090
)

// Config holds the telemetry configuration
type Config struct {
	// Enabled enables/disables telemetry
	Enabled bool `yaml:"enabled"`
	// ServiceName identifies this service in traces and metrics
	ServiceName string `yaml:"service_name"`
	// OTLP configuration for trace export
	OTLP OTLPConfig `yaml:"otlp"`
	// Prometheus configuration for metrics export
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// OTLPConfig holds OTLP trace exporter configuration
type OTLPConfig struct {
	// Enabled enables OTLP trace export
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP collector endpoint (e.g., "localhost:4317")
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS for the connection
	Insecure bool `yaml:"insecure"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	// Enabled enables the Prometheus scrape endpoint
	Enabled bool `yaml:"enabled"`
	// Port is the port the /metrics server listens on
	Port int `yaml:"port"`
}

// Telemetry owns the provider lifecycle. A disabled Telemetry is a valid
// no-op value whose Shutdown does nothing.
type Telemetry struct {
	config     Config
	traces     *sdktrace.TracerProvider
	meters     *sdkmetric.MeterProvider
	promServer *http.Server
}

// New builds the providers, registers them globally, and starts the metrics
// server when Prometheus export is enabled.
func New(cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		logger.Info("Telemetry is disabled")
		return &Telemetry{config: cfg}, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = consts.ServiceName
	}
	if cfg.Prometheus.Port == 0 {
		cfg.Prometheus.Port = defaultPrometheusPort
	}

	// resource.New() rather than resource.Merge with the default, to avoid
	// schema URL conflicts between semconv versions
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(consts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t := &Telemetry{config: cfg}

	t.traces, err = newTracerProvider(cfg.OTLP, res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(t.traces)

	t.meters, err = newMeterProvider(cfg.Prometheus, res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(t.meters)

	if cfg.Prometheus.Enabled {
		t.promServer = t.serveMetrics(cfg.Prometheus.Port)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Telemetry initialized",
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("otlp_enabled", cfg.OTLP.Enabled),
		zap.Bool("prometheus_enabled", cfg.Prometheus.Enabled),
	)

	return t, nil
}

// newTracerProvider builds a tracer provider, with a batching OTLP exporter
// attached when one is configured. Without an exporter spans stay in-process,
// which keeps trace context propagation working.
func newTracerProvider(cfg OTLPConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.Enabled && cfg.Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), exporterConnectTimeout)
		defer cancel()

		exporterOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}

		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}

		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("OTLP trace exporter initialized", zap.String("endpoint", cfg.Endpoint))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

// newMeterProvider builds a meter provider, reading into the Prometheus
// registry when scraping is enabled
func newMeterProvider(cfg PrometheusConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Enabled {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// serveMetrics starts the /metrics scrape server on its own port, separate
// from the API listener
func (t *Telemetry) serveMetrics(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  metricsHTTPTimeout,
		WriteTimeout: metricsHTTPTimeout,
	}

	go func() {
		logger.Info("Starting Prometheus metrics server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Prometheus metrics server error", zap.Error(err))
		}
	}()

	return srv
}

// Shutdown flushes and stops the providers and the metrics server. Failures
// are logged rather than returned so every component gets its chance to stop.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.config.Enabled {
		return nil
	}

	logger.Info("Shutting down telemetry")

	if t.traces != nil {
		if err := t.traces.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	if t.meters != nil {
		if err := t.meters.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown meter provider", zap.Error(err))
		}
	}

	if t.promServer != nil {
		if err := t.promServer.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown metrics server", zap.Error(err))
		}
	}

	return nil
}

// IsEnabled returns whether telemetry is enabled
func (t *Telemetry) IsEnabled() bool {
	return t.config.Enabled
}
