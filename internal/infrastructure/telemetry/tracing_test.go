package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs an in-memory tracer provider for the test
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestStartServiceSpan(t *testing.T) {
	sr := recordSpans(t)
	tenantID := uuid.New()

	_, span := telemetry.StartServiceSpan(context.Background(), "reservation", "reserve",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrProductID, "prod-1"),
		telemetry.WithAttribute(telemetry.SpanAttrQuantity, 3),
		telemetry.WithAttribute("variant_ids", []string{"v1", "v2"}),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "reservation.reserve", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())

	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, tenantID.String(), attrs[telemetry.SpanAttrTenantID].AsString())
	assert.Equal(t, "prod-1", attrs[telemetry.SpanAttrProductID].AsString())
	assert.Equal(t, int64(3), attrs[telemetry.SpanAttrQuantity].AsInt64())
	assert.Equal(t, []string{"v1", "v2"}, attrs["variant_ids"].AsStringSlice())
}

func TestStartServiceSpan_Nested(t *testing.T) {
	sr := recordSpans(t)

	ctx, parent := telemetry.StartServiceSpan(context.Background(), "crm_sync", "sync_all")
	_, child := telemetry.StartServiceSpan(ctx, "crm_sync", "sync_to_external")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "crm_sync.sync_to_external", spans[0].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
}

func TestSetAttributes(t *testing.T) {
	sr := recordSpans(t)
	reservationID := uuid.New()

	_, span := telemetry.StartServiceSpan(context.Background(), "reservation", "expire_batch")
	telemetry.SetAttributes(span,
		"expired", 4,
		"failed", int64(1),
		"ratio", 0.8,
		"dry_run", false,
		telemetry.SpanAttrReservationID, reservationID,
		42, "skipped: key is not a string",
		"dangling",
	)
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Len(t, attrs, 5)
	assert.Equal(t, int64(4), attrs["expired"].AsInt64())
	assert.Equal(t, int64(1), attrs["failed"].AsInt64())
	assert.Equal(t, 0.8, attrs["ratio"].AsFloat64())
	assert.False(t, attrs["dry_run"].AsBool())
	assert.Equal(t, reservationID.String(), attrs[telemetry.SpanAttrReservationID].AsString())

	assert.NotPanics(t, func() { telemetry.SetAttributes(nil, "k", "v") })
}

func TestRecordError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantCode   string
	}{
		{
			name:       "insufficient stock is an expected outcome",
			err:        fmt.Errorf("reserve: %w", shared.ErrInsufficientStock),
			wantStatus: codes.Unset,
			wantCode:   shared.CodeInsufficientStock,
		},
		{
			name:       "validation error",
			err:        shared.NewValidationError("quantity must be positive"),
			wantStatus: codes.Unset,
			wantCode:   shared.CodeValidation,
		},
		{
			name:       "external system failure marks the span",
			err:        shared.ErrExternalSystem,
			wantStatus: codes.Error,
			wantCode:   shared.CodeExternalSystem,
		},
		{
			name:       "plain error marks the span",
			err:        errors.New("connection reset"),
			wantStatus: codes.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := recordSpans(t)

			_, span := telemetry.StartServiceSpan(context.Background(), "reservation", "reserve")
			telemetry.RecordError(span, tt.err)
			span.End()

			s := sr.Ended()[0]
			assert.Equal(t, tt.wantStatus, s.Status().Code)
			attrs := attrMap(s.Attributes())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, attrs[telemetry.SpanAttrErrorCode].AsString())
			} else {
				assert.NotContains(t, attrs, telemetry.SpanAttrErrorCode)
			}
			require.NotEmpty(t, s.Events())
			if tt.wantStatus == codes.Error {
				assert.Equal(t, tt.err.Error(), s.Status().Description)
				assert.Equal(t, "exception", s.Events()[0].Name)
			} else {
				assert.Equal(t, "domain_error", s.Events()[0].Name)
			}
		})
	}
}

func TestRecordError_NoOp(t *testing.T) {
	sr := recordSpans(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "reservation", "cancel")
	telemetry.RecordError(span, nil)
	span.End()

	s := sr.Ended()[0]
	assert.Equal(t, codes.Unset, s.Status().Code)
	assert.Empty(t, s.Events())
	assert.NotPanics(t, func() { telemetry.RecordError(nil, errors.New("boom")) })
}

func TestSetOK(t *testing.T) {
	sr := recordSpans(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "reservation", "fulfill")
	telemetry.SetOK(span)
	span.End()

	assert.Equal(t, codes.Ok, sr.Ended()[0].Status().Code)
	assert.NotPanics(t, func() { telemetry.SetOK(nil) })
}

func TestAddEvent(t *testing.T) {
	sr := recordSpans(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "reservation", "reserve")
	telemetry.AddEvent(span, "insufficient_stock", "available", 2, "requested", 5)
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "insufficient_stock", events[0].Name)
	attrs := attrMap(events[0].Attributes)
	assert.Equal(t, int64(2), attrs["available"].AsInt64())
	assert.Equal(t, int64(5), attrs["requested"].AsInt64())

	assert.NotPanics(t, func() { telemetry.AddEvent(nil, "ignored") })
}
