package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics implements stock.Metrics on OpenTelemetry instruments
type LedgerMetrics struct {
	movementsTotal metric.Int64Counter
	movementUnits  metric.Float64Counter
	issuesTotal    metric.Int64Counter
	issueBatches   metric.Int64Histogram
	issueRejects   metric.Int64Counter
}

// NewLedgerMetrics creates the ledger business metric instruments
func NewLedgerMetrics(logger *zap.Logger) (*LedgerMetrics, error) {
	meter := otel.GetMeterProvider().Meter("stockledger")

	movementsTotal, err := meter.Int64Counter("ledger.movements.total",
		metric.WithDescription("Stock movements appended to the ledger"))
	if err != nil {
		return nil, err
	}
	movementUnits, err := meter.Float64Counter("ledger.movements.units",
		metric.WithDescription("Units moved, by movement type"))
	if err != nil {
		return nil, err
	}
	issuesTotal, err := meter.Int64Counter("ledger.issues.total",
		metric.WithDescription("Committed stock issuances"))
	if err != nil {
		return nil, err
	}
	issueBatches, err := meter.Int64Histogram("ledger.issues.batches",
		metric.WithDescription("Batches consumed per issuance"))
	if err != nil {
		return nil, err
	}
	issueRejects, err := meter.Int64Counter("ledger.issues.rejected",
		metric.WithDescription("Rejected issuances, by reason"))
	if err != nil {
		return nil, err
	}

	logger.Debug("ledger metrics registered")
	return &LedgerMetrics{
		movementsTotal: movementsTotal,
		movementUnits:  movementUnits,
		issuesTotal:    issuesTotal,
		issueBatches:   issueBatches,
		issueRejects:   issueRejects,
	}, nil
}

// MovementRecorded implements stock.Metrics
func (m *LedgerMetrics) MovementRecorded(ctx context.Context, movementType string, quantity float64) {
	attrs := metric.WithAttributes(attribute.String("movement_type", movementType))
	m.movementsTotal.Add(ctx, 1, attrs)
	m.movementUnits.Add(ctx, quantity, attrs)
}

// StockIssued implements stock.Metrics
func (m *LedgerMetrics) StockIssued(ctx context.Context, movementType, policy string, batches int, quantity float64) {
	attrs := metric.WithAttributes(attribute.String("policy", policy))
	m.issuesTotal.Add(ctx, 1, attrs)
	m.issueBatches.Record(ctx, int64(batches), attrs)
	m.movementUnits.Add(ctx, quantity, metric.WithAttributes(attribute.String("movement_type", movementType)))
}

// IssueRejected implements stock.Metrics
func (m *LedgerMetrics) IssueRejected(ctx context.Context, reason string) {
	m.issueRejects.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
