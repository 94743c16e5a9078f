package stock

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// defaultIdempotencyTTL is how long a processed operation key stays
// deduplicated when no TTL is configured
const defaultIdempotencyTTL = 24 * time.Hour

// Metrics receives ledger business events for observability backends
type Metrics interface {
	MovementRecorded(ctx context.Context, movementType string, quantity float64)
	StockIssued(ctx context.Context, movementType, policy string, batches int, quantity float64)
	IssueRejected(ctx context.Context, reason string)
}

type noopMetrics struct{}

func (noopMetrics) MovementRecorded(context.Context, string, float64)         {}
func (noopMetrics) StockIssued(context.Context, string, string, int, float64) {}
func (noopMetrics) IssueRejected(context.Context, string)                     {}

// StockService coordinates ledger writes: single movement recording and
// multi-batch issuance. All writes go through the transaction scope so a
// failed issuance leaves no partial movements behind.
type StockService struct {
	repo        ledger.LedgerRepository
	scope       TransactionScope
	catalog     ledger.ProductCatalog
	branches    ledger.BranchDirectory
	idempotency shared.IdempotencyStore
	ttl         time.Duration
	metrics     Metrics
	logger      *zap.Logger
}

// NewStockService creates a new stock service. The idempotency store and
// metrics may be nil, disabling deduplication and event metrics respectively.
func NewStockService(
	repo ledger.LedgerRepository,
	scope TransactionScope,
	catalog ledger.ProductCatalog,
	branches ledger.BranchDirectory,
	idempotency shared.IdempotencyStore,
	metrics Metrics,
	logger *zap.Logger,
) *StockService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{
		repo:        repo,
		scope:       scope,
		catalog:     catalog,
		branches:    branches,
		idempotency: idempotency,
		ttl:         defaultIdempotencyTTL,
		metrics:     metrics,
		logger:      logger,
	}
}

// WithIdempotencyTTL overrides how long processed operation keys stay
// deduplicated. Non-positive values keep the default.
func (s *StockService) WithIdempotencyTTL(ttl time.Duration) *StockService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// RecordMovement validates and appends a single movement to the ledger.
// Outbound movements are checked against current availability inside the
// transaction; inbound movements always succeed once validated.
func (s *StockService) RecordMovement(ctx context.Context, input RecordMovementInput) (*ledger.StockMovement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock", "record_movement")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, input.TenantID,
		telemetry.SpanAttrProductID, input.ProductID,
		telemetry.SpanAttrMovementType, input.MovementType,
		telemetry.SpanAttrQuantity, input.Quantity,
	)

	if err := s.checkIdempotency(ctx, input.IdempotencyKey); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	product, err := s.catalog.FindProduct(ctx, input.TenantID, input.ProductID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.verifyLocation(ctx, input.TenantID, input.BranchID, input.WarehouseID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := validateTracking(product, &input); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	movement, err := ledger.NewStockMovement(
		input.TenantID, input.ProductID, input.BranchID, input.WarehouseID,
		input.MovementType, input.Quantity, input.UnitCost, input.ActorID,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	movement.
		WithLot(input.BatchNumber, input.LotNumber).
		WithSerialNumber(input.SerialNumber).
		WithDates(input.ManufactureDate, input.ExpiryDate).
		WithDocument(input.Document).
		WithRemarks(input.Remarks)
	if err := movement.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	stockScope := ledger.StockScope{
		TenantID:    input.TenantID,
		ProductID:   input.ProductID,
		BranchID:    input.BranchID,
		WarehouseID: input.WarehouseID,
	}

	err = s.scope.Execute(ctx, func(ctx context.Context, repos TransactionalRepositories) error {
		if movement.MovementType.IsOutbound() {
			if err := repos.Locker.LockScope(ctx, stockScope); err != nil {
				return err
			}
			available, err := repos.Ledger.CurrentQuantity(ctx, stockScope)
			if err != nil {
				return err
			}
			if available.LessThan(movement.Quantity) {
				return ledger.NewInsufficientStockError(movement.Quantity, available)
			}
		}
		return repos.Ledger.Append(ctx, movement)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.AddEvent(span, "movement_appended", "movement_id", movement.ID)
	s.markProcessed(ctx, input.IdempotencyKey)
	s.metrics.MovementRecorded(ctx, movement.MovementType.String(), movement.Quantity.InexactFloat64())
	s.logger.Info("stock movement recorded",
		zap.String("movement_id", movement.ID.String()),
		zap.String("tenant_id", movement.TenantID.String()),
		zap.String("movement_type", movement.MovementType.String()),
		zap.String("quantity", movement.Quantity.String()))

	return movement, nil
}

// IssueStock allocates the requested quantity across open batches and writes
// one outgoing movement per consumed batch, all in one transaction. The
// movement type must be an outgoing kind; empty defaults to SALE. The
// allocation order is FEFO for expiry-tracked products, FIFO otherwise.
func (s *StockService) IssueStock(ctx context.Context, input IssueStockInput) (*IssueStockResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock", "issue")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, input.TenantID,
		telemetry.SpanAttrProductID, input.ProductID,
		telemetry.SpanAttrQuantity, input.Quantity,
		telemetry.SpanAttrDocumentKind, input.Document.Kind,
		telemetry.SpanAttrDocumentID, input.Document.ID,
	)

	movementType := input.MovementType
	if movementType == "" {
		movementType = ledger.MovementTypeSale
	}
	if !movementType.IsOutbound() {
		err := ledger.NewValidationError("movement_type", "issue requires an outgoing movement type")
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrMovementType, movementType)

	if err := s.checkIdempotency(ctx, input.IdempotencyKey); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if input.Quantity.LessThanOrEqual(decimal.Zero) {
		err := ledger.NewValidationError("quantity", "requested quantity must be positive")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := input.Document.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	product, err := s.catalog.FindProduct(ctx, input.TenantID, input.ProductID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.verifyLocation(ctx, input.TenantID, input.BranchID, input.WarehouseID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	policy := product.AllocationPolicy()
	telemetry.SetAttribute(span, telemetry.SpanAttrPolicy, policy)
	stockScope := ledger.StockScope{
		TenantID:    input.TenantID,
		ProductID:   input.ProductID,
		BranchID:    input.BranchID,
		WarehouseID: input.WarehouseID,
	}

	var result *IssueStockResult
	err = s.scope.Execute(ctx, func(ctx context.Context, repos TransactionalRepositories) error {
		if err := repos.Locker.LockScope(ctx, stockScope); err != nil {
			return err
		}

		positions, err := s.loadPositions(ctx, repos.Ledger, policy, stockScope)
		if err != nil {
			return err
		}

		available := decimal.Zero
		for i := range positions {
			available = available.Add(positions[i].CurrentQuantity)
		}
		if available.LessThan(input.Quantity) {
			return ledger.NewInsufficientStockError(input.Quantity, available)
		}

		plan, err := ledger.PlanAllocation(policy, positions, input.Quantity)
		if err != nil {
			return err
		}
		if !plan.FullySatisfied() {
			// Availability passed but the walk came up short: the positions
			// changed under us or the aggregate is inconsistent.
			return ledger.NewAllocationError(input.Quantity, plan.TotalQuantity)
		}

		movements := make([]*ledger.StockMovement, 0, len(plan.Lines))
		for _, line := range plan.Lines {
			m, err := ledger.NewStockMovement(
				input.TenantID, input.ProductID, input.BranchID, input.WarehouseID,
				movementType, line.Quantity, line.UnitCost, input.ActorID,
			)
			if err != nil {
				return err
			}
			m.WithLot(line.Position.BatchNumber, line.Position.LotNumber).
				WithDates(nil, line.Position.ExpiryDate).
				WithDocument(input.Document).
				WithRemarks(input.Remarks)
			movements = append(movements, m)
		}
		if err := repos.Ledger.AppendAll(ctx, movements); err != nil {
			return err
		}

		result = &IssueStockResult{
			Policy:        policy,
			Movements:     movements,
			TotalQuantity: plan.TotalQuantity,
			TotalCost:     plan.TotalCost,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.recordIssueFailure(ctx, err)
		return nil, err
	}

	telemetry.AddEvent(span, "stock_issued",
		"batches", len(result.Movements),
		"total_quantity", result.TotalQuantity,
		"total_cost", result.TotalCost)
	s.markProcessed(ctx, input.IdempotencyKey)
	s.metrics.StockIssued(ctx, movementType.String(), policy.String(), len(result.Movements), result.TotalQuantity.InexactFloat64())
	s.logger.Info("stock issued",
		zap.String("tenant_id", input.TenantID.String()),
		zap.String("product_id", input.ProductID.String()),
		zap.String("movement_type", movementType.String()),
		zap.String("policy", policy.String()),
		zap.Int("batches", len(result.Movements)),
		zap.String("quantity", result.TotalQuantity.String()))

	return result, nil
}

// CurrentQuantity returns the on-hand quantity of one stock scope
func (s *StockService) CurrentQuantity(ctx context.Context, scope ledger.StockScope) (decimal.Decimal, error) {
	return s.repo.CurrentQuantity(ctx, scope)
}

// Positions returns a tenant's open positions, optionally narrowed by the
// filter
func (s *StockService) Positions(ctx context.Context, tenantID uuid.UUID, filter ledger.PositionFilter) ([]ledger.StockPosition, error) {
	return s.repo.PositionsForTenant(ctx, tenantID, filter)
}

// Valuation reports the inventory value of a tenant's open positions at their
// batch average cost, optionally narrowed by the filter. The average cost of
// the report is value over quantity, zero when nothing is on hand.
func (s *StockService) Valuation(ctx context.Context, tenantID uuid.UUID, filter ledger.PositionFilter) (*ValuationReport, error) {
	positions, err := s.repo.PositionsForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	report := &ValuationReport{
		TenantID:      tenantID,
		AsOf:          time.Now(),
		Lines:         make([]ValuationLine, 0, len(positions)),
		TotalQuantity: decimal.Zero,
		TotalValue:    decimal.Zero,
		AverageCost:   decimal.Zero,
	}
	for i := range positions {
		value := positions[i].Value()
		report.Lines = append(report.Lines, ValuationLine{Position: positions[i], Value: value})
		report.TotalQuantity = report.TotalQuantity.Add(positions[i].CurrentQuantity)
		report.TotalValue = report.TotalValue.Add(value)
	}
	if report.TotalQuantity.IsPositive() {
		report.AverageCost = report.TotalValue.Div(report.TotalQuantity).Round(2)
	}
	return report, nil
}

// ExpiryAlerts reports expired positions and positions expiring within the
// given window. A position appears in exactly one of the two lists.
func (s *StockService) ExpiryAlerts(ctx context.Context, tenantID uuid.UUID, windowDays int) (*ExpiryReport, error) {
	if windowDays < 0 {
		return nil, ledger.NewValidationError("window_days", "window cannot be negative")
	}
	asOf := time.Now()

	expired, err := s.repo.ExpiredPositions(ctx, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	near, err := s.repo.NearExpiryPositions(ctx, tenantID, asOf, windowDays)
	if err != nil {
		return nil, err
	}

	report := &ExpiryReport{
		TenantID:   tenantID,
		AsOf:       asOf,
		WindowDays: windowDays,
		Expired:    expired,
		NearExpiry: make([]ledger.StockPosition, 0, len(near)),
	}
	for i := range near {
		if !near[i].IsExpired(asOf) {
			report.NearExpiry = append(report.NearExpiry, near[i])
		}
	}
	return report, nil
}

// ConservationAudit verifies that the tenant's open positions account for the
// full signed movement total of the ledger
func (s *StockService) ConservationAudit(ctx context.Context, tenantID uuid.UUID) (*ConservationReport, error) {
	movementTotal, err := s.repo.SumSignedQuantity(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	positions, err := s.repo.PositionsForTenant(ctx, tenantID, ledger.PositionFilter{})
	if err != nil {
		return nil, err
	}

	positionTotal := decimal.Zero
	for i := range positions {
		positionTotal = positionTotal.Add(positions[i].CurrentQuantity)
	}

	report := &ConservationReport{
		TenantID:      tenantID,
		AsOf:          time.Now(),
		MovementTotal: movementTotal,
		PositionTotal: positionTotal,
		Balanced:      movementTotal.Equal(positionTotal),
	}
	if !report.Balanced {
		s.logger.Warn("ledger conservation audit failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("movement_total", movementTotal.String()),
			zap.String("position_total", positionTotal.String()))
	}
	return report, nil
}

// ListMovements lists a tenant's ledger entries with pagination and filters
func (s *StockService) ListMovements(ctx context.Context, tenantID uuid.UUID, filter ledger.MovementFilter) (shared.Paginated[ledger.StockMovement], error) {
	return s.repo.FindForTenant(ctx, tenantID, filter)
}

// GetMovement returns one ledger entry by ID
func (s *StockService) GetMovement(ctx context.Context, tenantID, id uuid.UUID) (*ledger.StockMovement, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

// MovementsForDocument returns all ledger entries originated by one document
func (s *StockService) MovementsForDocument(ctx context.Context, tenantID uuid.UUID, ref ledger.DocumentRef) ([]ledger.StockMovement, error) {
	if ref.IsZero() {
		return nil, ledger.NewValidationError("document", "document reference is required")
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.repo.FindByDocument(ctx, tenantID, ref)
}

func (s *StockService) loadPositions(ctx context.Context, repo ledger.LedgerRepository, policy ledger.AllocationPolicy, scope ledger.StockScope) ([]ledger.StockPosition, error) {
	if policy == ledger.PolicyFEFO {
		return repo.PositionsFEFO(ctx, scope)
	}
	return repo.PositionsFIFO(ctx, scope)
}

func (s *StockService) verifyLocation(ctx context.Context, tenantID, branchID uuid.UUID, warehouseID *uuid.UUID) error {
	ok, err := s.branches.BranchExists(ctx, tenantID, branchID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotFound
	}
	if warehouseID != nil {
		ok, err = s.branches.WarehouseExists(ctx, tenantID, branchID, *warehouseID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.ErrNotFound
		}
	}
	return nil
}

func (s *StockService) checkIdempotency(ctx context.Context, key string) error {
	if key == "" || s.idempotency == nil {
		return nil
	}
	processed, err := s.idempotency.IsProcessed(ctx, key)
	if err != nil {
		// The store being down must not block ledger writes
		s.logger.Warn("idempotency check failed", zap.Error(err))
		return nil
	}
	if processed {
		return shared.ErrDuplicateSubmission
	}
	return nil
}

func (s *StockService) markProcessed(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if _, err := s.idempotency.MarkProcessed(ctx, key, s.ttl); err != nil {
		s.logger.Warn("failed to mark idempotency key", zap.Error(err))
	}
}

func (s *StockService) recordIssueFailure(ctx context.Context, err error) {
	switch err.(type) {
	case *ledger.InsufficientStockError:
		s.metrics.IssueRejected(ctx, "insufficient_stock")
	case *ledger.AllocationError:
		s.metrics.IssueRejected(ctx, "allocation_failed")
	case *ledger.ValidationError:
		s.metrics.IssueRejected(ctx, "validation")
	default:
		s.metrics.IssueRejected(ctx, "internal")
	}
}

// validateTracking enforces the product's tracking attributes on the input
func validateTracking(product *ledger.ProductInfo, input *RecordMovementInput) error {
	if product.TrackBatch && input.MovementType.IsInbound() && input.BatchNumber == "" {
		return ledger.NewValidationError("batch_number", "product is batch tracked, batch number is required")
	}
	if product.TrackSerial && input.SerialNumber == "" {
		return ledger.NewValidationError("serial_number", "product is serial tracked, serial number is required")
	}
	if product.TrackSerial && !input.Quantity.Equal(decimal.NewFromInt(1)) {
		return ledger.NewValidationError("quantity", "serial tracked movements carry exactly one unit")
	}
	if product.TrackExpiry && input.MovementType.IsInbound() && input.ExpiryDate == nil {
		return ledger.NewValidationError("expiry_date", "product is expiry tracked, expiry date is required")
	}
	return nil
}
