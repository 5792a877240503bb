package telemetry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

func testOTLPConfig() telemetry.Config {
	return telemetry.Config{
		// Nothing listens here; gRPC dials lazily so providers still start.
		CollectorEndpoint: "127.0.0.1:14317",
		ServiceName:       "coccinelle-test",
		ServiceVersion:    "1.2.3",
		Environment:       "test",
		Insecure:          true,
	}
}

func TestConfig_Resource(t *testing.T) {
	res, err := testOTLPConfig().Resource()
	require.NoError(t, err)

	attrs := attrMap(res.Attributes())
	assert.Equal(t, "coccinelle-test", attrs[string(semconv.ServiceNameKey)].AsString())
	assert.Equal(t, "1.2.3", attrs[string(semconv.ServiceVersionKey)].AsString())
	assert.Equal(t, "test", attrs[string(semconv.DeploymentEnvironmentNameKey)].AsString())

	res, err = telemetry.Config{ServiceName: "bare"}.Resource()
	require.NoError(t, err)
	attrs = attrMap(res.Attributes())
	assert.NotContains(t, attrs, string(semconv.ServiceVersionKey))
	assert.NotContains(t, attrs, string(semconv.DeploymentEnvironmentNameKey))
}

func TestNewSampler(t *testing.T) {
	traceID := trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	root := sdktrace.SamplingParameters{ParentContext: context.Background(), TraceID: traceID, Name: "reservation.reserve"}

	assert.Equal(t, sdktrace.RecordAndSample, telemetry.NewSampler(1).ShouldSample(root).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, telemetry.NewSampler(1.5).ShouldSample(root).Decision)
	assert.Equal(t, sdktrace.Drop, telemetry.NewSampler(0).ShouldSample(root).Decision)

	// A sampled remote parent wins over a zero ratio
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	child := sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithRemoteSpanContext(context.Background(), parent),
		TraceID:       traceID,
		Name:          "reservation.reserve",
	}
	assert.Equal(t, sdktrace.RecordAndSample, telemetry.NewSampler(0).ShouldSample(child).Decision)
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracesConfig{
		Config: testOTLPConfig(),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.Equal(t, before, otel.GetTracerProvider())

	require.NoError(t, tp.EnableSpanProfiles())
	assert.False(t, tp.IsSpanProfilesEnabled())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an OTLP exporter")
	}
	original := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(original) })

	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracesConfig{
		Config:        testOTLPConfig(),
		Enabled:       true,
		SamplingRatio: 0.5,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())
	assert.NotEqual(t, original, otel.GetTracerProvider())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tp.EnableSpanProfiles())
		}()
	}
	wg.Wait()
	assert.True(t, tp.IsSpanProfilesEnabled())

	_, span := telemetry.StartServiceSpan(context.Background(), "reservation", "reserve")
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Shutdown with an already cancelled context still returns promptly
	_ = tp.Shutdown(ctx)
}
