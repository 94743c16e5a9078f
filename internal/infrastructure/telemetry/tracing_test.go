package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory span recorder as the global tracer
// provider. Returns the recorder and a cleanup restoring the original.
func setupTestTracer(t *testing.T) (*tracetest.SpanRecorder, func()) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	return sr, func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	}
}

func TestStartSpan(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "ledger.append")
	require.NotNil(t, span)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.append", spans[0].Name())
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
}

func TestStartServiceSpan(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartServiceSpan(context.Background(), "stock", "issue")
	require.NotNil(t, span)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "stock.issue", spans[0].Name())
}

func TestSetAttributes(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "ledger.append")

	tenantID := uuid.New()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID,
		telemetry.SpanAttrMovementType, "PURCHASE",
		"batches", 3,
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	attrMap := make(map[string]interface{})
	for _, attr := range spans[0].Attributes() {
		attrMap[string(attr.Key)] = attr.Value.AsInterface()
	}
	assert.Equal(t, tenantID.String(), attrMap["tenant_id"])
	assert.Equal(t, "PURCHASE", attrMap["movement_type"])
	assert.Equal(t, int64(3), attrMap["batches"])
}

func TestSetAttributes_OddKeyValues(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "ledger.append")

	telemetry.SetAttributes(span,
		"key1", "value1",
		"orphan_key",
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Len(t, spans[0].Attributes(), 1)
}

func TestRecordError(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "stock.issue")
	telemetry.RecordError(span, errors.New("insufficient stock"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "insufficient stock", spans[0].Status().Description)

	events := spans[0].Events()
	require.GreaterOrEqual(t, len(events), 1)
	assert.Equal(t, "exception", events[0].Name)
}

func TestRecordError_NilError(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "stock.issue")
	telemetry.RecordError(span, nil)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestAddEvent(t *testing.T) {
	sr, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := telemetry.StartSpan(context.Background(), "stock.issue")
	telemetry.AddEvent(span, "stock_issued",
		"batches", 2,
		"total_quantity", "15",
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "stock_issued", events[0].Name)

	attrMap := make(map[string]interface{})
	for _, attr := range events[0].Attributes {
		attrMap[string(attr.Key)] = attr.Value.AsInterface()
	}
	assert.Equal(t, int64(2), attrMap["batches"])
	assert.Equal(t, "15", attrMap["total_quantity"])
}

func TestNilSpanHelpers(t *testing.T) {
	telemetry.SetAttributes(nil, "key", "value")
	telemetry.SetAttribute(nil, "key", "value")
	telemetry.RecordError(nil, errors.New("boom"))
	telemetry.AddEvent(nil, "event", "key", "value")
}
