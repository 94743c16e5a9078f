package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// signedQuantityExpr computes the signed quantity of a movement row:
// positive for inbound types, negative for outbound types.
const signedQuantityExpr = "SUM(CASE WHEN movement_type IN " +
	"('PURCHASE','TRANSFER_IN','ADJUSTMENT_IN','RETURN','PRODUCTION') " +
	"THEN quantity ELSE -quantity END)"

const (
	fifoOrder = "first_received_at ASC, batch_number ASC, lot_number ASC"
	fefoOrder = "CASE WHEN expiry_date IS NULL THEN 1 ELSE 0 END ASC, " +
		"expiry_date ASC, first_received_at ASC"
	expiryOrder = "expiry_date ASC, batch_number ASC, lot_number ASC"
)

// GormLedgerRepository implements ledger.LedgerRepository using GORM.
// Positions are aggregated from the movement table at query time, so the
// ledger stays the single source of truth.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GORM-based ledger repository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Append writes a single movement row
func (r *GormLedgerRepository) Append(ctx context.Context, movement *ledger.StockMovement) error {
	if err := movement.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(movement).Error
}

// AppendAll writes a set of movement rows
func (r *GormLedgerRepository) AppendAll(ctx context.Context, movements []*ledger.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	for _, m := range movements {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return r.db.WithContext(ctx).Create(movements).Error
}

// FindByID returns a movement by ID within a tenant
func (r *GormLedgerRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.StockMovement, error) {
	var movement ledger.StockMovement
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&movement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &movement, nil
}

// FindForTenant lists movements for a tenant with pagination and filters
func (r *GormLedgerRepository) FindForTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.MovementFilter) (shared.Paginated[ledger.StockMovement], error) {
	query := r.db.WithContext(ctx).
		Model(&ledger.StockMovement{}).
		Where("tenant_id = ?", tenantID)

	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.BranchID != nil {
		query = query.Where("branch_id = ?", *filter.BranchID)
	}
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.MovementType != nil {
		query = query.Where("movement_type = ?", *filter.MovementType)
	}
	if filter.BatchNumber != "" {
		query = query.Where("batch_number = ?", filter.BatchNumber)
	}
	if filter.SerialNumber != "" {
		query = query.Where("serial_number = ?", filter.SerialNumber)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[ledger.StockMovement]{}, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	var movements []ledger.StockMovement
	err := query.
		Order(orderClause(filter.Filter)).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&movements).Error
	if err != nil {
		return shared.Paginated[ledger.StockMovement]{}, err
	}

	return shared.NewPaginated(movements, total, page, pageSize), nil
}

// orderClause builds a safe ORDER BY from the filter, falling back to newest
// first. Only known columns are accepted.
func orderClause(filter shared.Filter) string {
	column := "created_at"
	switch filter.OrderBy {
	case "created_at", "quantity", "movement_type", "batch_number":
		column = filter.OrderBy
	}
	direction := "DESC"
	if filter.OrderDir == "asc" {
		direction = "ASC"
	}
	return column + " " + direction
}

// FindByDocument lists all movements originated by one business document
func (r *GormLedgerRepository) FindByDocument(ctx context.Context, tenantID uuid.UUID, ref ledger.DocumentRef) ([]ledger.StockMovement, error) {
	var movements []ledger.StockMovement
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND document_kind = ? AND document_id = ?", tenantID, ref.Kind, ref.ID).
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}

// CurrentQuantity returns the signed quantity sum over the scope
func (r *GormLedgerRepository) CurrentQuantity(ctx context.Context, scope ledger.StockScope) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.scopeQuery(ctx, scope).
		Select("COALESCE(" + signedQuantityExpr + ", 0) AS total").
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// SumSignedQuantity returns the signed quantity sum over every movement of a
// tenant
func (r *GormLedgerRepository) SumSignedQuantity(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&ledger.StockMovement{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(" + signedQuantityExpr + ", 0) AS total").
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// PositionsFIFO returns the open positions of the scope in receipt order
func (r *GormLedgerRepository) PositionsFIFO(ctx context.Context, scope ledger.StockScope) ([]ledger.StockPosition, error) {
	return r.scopePositions(ctx, scope, fifoOrder)
}

// PositionsFEFO returns the open positions of the scope in expiry order,
// undated batches last
func (r *GormLedgerRepository) PositionsFEFO(ctx context.Context, scope ledger.StockScope) ([]ledger.StockPosition, error) {
	return r.scopePositions(ctx, scope, fefoOrder)
}

// positionRow is the scan target of the position aggregation.
// first_received_at is an aggregate expression, so some drivers return it as
// text rather than a typed timestamp; it is parsed after scanning.
type positionRow struct {
	TenantID        uuid.UUID
	ProductID       uuid.UUID
	BranchID        uuid.UUID
	WarehouseID     *uuid.UUID
	BatchNumber     string
	LotNumber       string
	ExpiryDate      *time.Time
	CurrentQuantity decimal.Decimal
	AverageCost     decimal.Decimal
	FirstReceivedAt string
}

func (row *positionRow) toPosition() ledger.StockPosition {
	return ledger.StockPosition{
		TenantID:        row.TenantID,
		ProductID:       row.ProductID,
		BranchID:        row.BranchID,
		WarehouseID:     row.WarehouseID,
		BatchNumber:     row.BatchNumber,
		LotNumber:       row.LotNumber,
		ExpiryDate:      row.ExpiryDate,
		CurrentQuantity: row.CurrentQuantity,
		AverageCost:     row.AverageCost.Round(2),
		FirstReceivedAt: parseTimestamp(row.FirstReceivedAt),
	}
}

// parseTimestamp parses the textual forms drivers produce for aggregated
// timestamp columns
func parseTimestamp(s string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (r *GormLedgerRepository) scopePositions(ctx context.Context, scope ledger.StockScope, order string) ([]ledger.StockPosition, error) {
	var rows []positionRow
	err := r.scopeQuery(ctx, scope).
		Select("batch_number, lot_number, expiry_date, " +
			signedQuantityExpr + " AS current_quantity, " +
			"AVG(unit_cost) AS average_cost, " +
			"MIN(created_at) AS first_received_at").
		Group("batch_number, lot_number, expiry_date").
		Having(signedQuantityExpr + " > 0").
		Order(order).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	positions := make([]ledger.StockPosition, 0, len(rows))
	for i := range rows {
		rows[i].TenantID = scope.TenantID
		rows[i].ProductID = scope.ProductID
		rows[i].BranchID = scope.BranchID
		rows[i].WarehouseID = scope.WarehouseID
		positions = append(positions, rows[i].toPosition())
	}
	return positions, nil
}

// PositionsForTenant returns all open positions of a tenant, optionally
// narrowed by the filter
func (r *GormLedgerRepository) PositionsForTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.PositionFilter) ([]ledger.StockPosition, error) {
	query := r.db.WithContext(ctx).
		Model(&ledger.StockMovement{}).
		Where("tenant_id = ?", tenantID)
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.BranchID != nil {
		query = query.Where("branch_id = ?", *filter.BranchID)
	}
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	return r.tenantPositions(query, nil, "product_id, branch_id, "+fifoOrder)
}

// ExpiredPositions returns open positions whose expiry date is on or before
// asOf, earliest expiry first
func (r *GormLedgerRepository) ExpiredPositions(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]ledger.StockPosition, error) {
	query := r.db.WithContext(ctx).
		Model(&ledger.StockMovement{}).
		Where("tenant_id = ?", tenantID)
	return r.tenantPositions(query, func(q *gorm.DB) *gorm.DB {
		return q.Where("expiry_date IS NOT NULL AND expiry_date <= ?", asOf)
	}, expiryOrder)
}

// NearExpiryPositions returns open positions expiring within the window,
// including already-expired ones, earliest expiry first
func (r *GormLedgerRepository) NearExpiryPositions(ctx context.Context, tenantID uuid.UUID, asOf time.Time, days int) ([]ledger.StockPosition, error) {
	cutoff := asOf.AddDate(0, 0, days)
	query := r.db.WithContext(ctx).
		Model(&ledger.StockMovement{}).
		Where("tenant_id = ?", tenantID)
	return r.tenantPositions(query, func(q *gorm.DB) *gorm.DB {
		return q.Where("expiry_date IS NOT NULL AND expiry_date <= ?", cutoff)
	}, expiryOrder)
}

// tenantPositions aggregates positions over an arbitrary tenant-wide query.
// The expiry date is part of the batch group key, so filtering on it before
// grouping keeps groups intact.
func (r *GormLedgerRepository) tenantPositions(query *gorm.DB, narrow func(*gorm.DB) *gorm.DB, order string) ([]ledger.StockPosition, error) {
	if narrow != nil {
		query = narrow(query)
	}

	var rows []positionRow
	err := query.
		Select("tenant_id, product_id, branch_id, warehouse_id, batch_number, lot_number, expiry_date, " +
			signedQuantityExpr + " AS current_quantity, " +
			"AVG(unit_cost) AS average_cost, " +
			"MIN(created_at) AS first_received_at").
		Group("tenant_id, product_id, branch_id, warehouse_id, batch_number, lot_number, expiry_date").
		Having(signedQuantityExpr + " > 0").
		Order(order).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	positions := make([]ledger.StockPosition, 0, len(rows))
	for i := range rows {
		positions = append(positions, rows[i].toPosition())
	}
	return positions, nil
}

func (r *GormLedgerRepository) scopeQuery(ctx context.Context, scope ledger.StockScope) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&ledger.StockMovement{}).
		Where("tenant_id = ? AND product_id = ? AND branch_id = ?",
			scope.TenantID, scope.ProductID, scope.BranchID)
	if scope.WarehouseID != nil {
		return query.Where("warehouse_id = ?", *scope.WarehouseID)
	}
	return query.Where("warehouse_id IS NULL")
}

var _ ledger.LedgerRepository = (*GormLedgerRepository)(nil)
