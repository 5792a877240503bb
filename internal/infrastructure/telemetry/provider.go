package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long a provider may spend flushing on shutdown
const shutdownTimeout = 10 * time.Second

// Config is the OTLP export configuration shared by traces, metrics and logs
type Config struct {
	CollectorEndpoint string // e.g. "otel-collector:4317"
	ServiceName       string
	ServiceVersion    string
	Environment       string // development, staging, production
	Insecure          bool   // plaintext gRPC, development only
}

// Resource describes this process to the collector
func (c Config) Resource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(c.ServiceName)}
	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(c.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// shutdownProvider runs shutdown with shutdownTimeout and logs the outcome
func shutdownProvider(ctx context.Context, logger *zap.Logger, signal string, shutdown func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		logger.Error("Error shutting down OpenTelemetry provider", zap.String("signal", signal), zap.Error(err))
		return fmt.Errorf("failed to shutdown %s provider: %w", signal, err)
	}
	logger.Info("OpenTelemetry provider shut down", zap.String("signal", signal))
	return nil
}
