// Package telemetry provides OpenTelemetry integration for distributed tracing.
// This file contains the span helpers used by application services.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coccinelle/backend/internal/domain/shared"
)

// TracerName is the tracer used for service spans
const TracerName = "coccinelle-backend"

// Span attribute keys for service spans. Metric attributes live in metrics.go.
const (
	SpanAttrTenantID = "tenant_id"

	SpanAttrProductID     = "product_id"
	SpanAttrReservationID = "reservation_id"
	SpanAttrQuantity      = "quantity"

	SpanAttrSystem     = "system"
	SpanAttrCustomerID = "customer_id"
	SpanAttrExternalID = "external_id"

	SpanAttrErrorCode = "error.code"
)

// expectedErrorCodes are domain outcomes a caller can act on. They are
// recorded on the span but do not mark it failed.
var expectedErrorCodes = map[string]bool{
	shared.CodeNotFound:          true,
	shared.CodeAlreadyExists:     true,
	shared.CodeValidation:        true,
	shared.CodeInvalidState:      true,
	shared.CodeInsufficientStock: true,
	shared.CodeNotConfigured:     true,
}

// SpanOption configures a span started by StartServiceSpan
type SpanOption func(*[]attribute.KeyValue)

// WithAttribute adds an attribute to the span
func WithAttribute(key string, value any) SpanOption {
	return func(attrs *[]attribute.KeyValue) {
		*attrs = append(*attrs, toAttribute(key, value))
	}
}

// StartServiceSpan starts an internal span named {service}.{method}, for
// example "reservation.reserve". The caller ends the span.
//
//	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "reserve",
//	    telemetry.WithAttribute(telemetry.SpanAttrProductID, req.ProductID),
//	)
//	defer span.End()
func StartServiceSpan(ctx context.Context, service, method string, opts ...SpanOption) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	for _, opt := range opts {
		opt(&attrs)
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, service+"."+method,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// SetAttributes adds alternating key/value pairs to span. Pairs whose key
// is not a string are skipped.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	span.SetAttributes(pairsToAttributes(keyValues)...)
}

// RecordError records err on span. Expected domain errors (not found,
// validation, insufficient stock...) only get an error.code attribute and an
// event; anything else sets the span status to Error.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	code := shared.CodeOf(err)
	if expectedErrorCodes[code] {
		span.SetAttributes(attribute.String(SpanAttrErrorCode, code))
		span.AddEvent("domain_error", trace.WithAttributes(
			attribute.String(SpanAttrErrorCode, code),
			attribute.String("error.message", err.Error()),
		))
		return
	}
	if code != "" {
		span.SetAttributes(attribute.String(SpanAttrErrorCode, code))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks span as successful
func SetOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds a named event with alternating key/value attributes
//
//	telemetry.AddEvent(span, "insufficient_stock", "available", available)
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(pairsToAttributes(keyValues)...))
}

func pairsToAttributes(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		if key, ok := keyValues[i].(string); ok {
			attrs = append(attrs, toAttribute(key, keyValues[i+1]))
		}
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
