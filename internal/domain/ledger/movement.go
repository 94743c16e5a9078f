package ledger

import (
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType classifies a stock movement. The type determines the sign of
// the quantity in aggregation; the quantity itself is always positive.
type MovementType string

const (
	// MovementTypePurchase is stock received from a supplier
	MovementTypePurchase MovementType = "PURCHASE"
	// MovementTypeTransferIn is stock received from another branch/warehouse
	MovementTypeTransferIn MovementType = "TRANSFER_IN"
	// MovementTypeAdjustmentIn is a positive stock correction
	MovementTypeAdjustmentIn MovementType = "ADJUSTMENT_IN"
	// MovementTypeReturn is stock returned by a customer
	MovementTypeReturn MovementType = "RETURN"
	// MovementTypeProduction is stock produced in-house
	MovementTypeProduction MovementType = "PRODUCTION"
	// MovementTypeSale is stock issued to fulfil a sale
	MovementTypeSale MovementType = "SALE"
	// MovementTypeTransferOut is stock sent to another branch/warehouse
	MovementTypeTransferOut MovementType = "TRANSFER_OUT"
	// MovementTypeAdjustmentOut is a negative stock correction
	MovementTypeAdjustmentOut MovementType = "ADJUSTMENT_OUT"
)

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid returns true if the movement type is one of the closed set
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypePurchase,
		MovementTypeTransferIn,
		MovementTypeAdjustmentIn,
		MovementTypeReturn,
		MovementTypeProduction,
		MovementTypeSale,
		MovementTypeTransferOut,
		MovementTypeAdjustmentOut:
		return true
	}
	return false
}

// IsInbound returns true if this movement type increases stock
func (t MovementType) IsInbound() bool {
	switch t {
	case MovementTypePurchase,
		MovementTypeTransferIn,
		MovementTypeAdjustmentIn,
		MovementTypeReturn,
		MovementTypeProduction:
		return true
	}
	return false
}

// IsOutbound returns true if this movement type decreases stock
func (t MovementType) IsOutbound() bool {
	switch t {
	case MovementTypeSale,
		MovementTypeTransferOut,
		MovementTypeAdjustmentOut:
		return true
	}
	return false
}

// AllMovementTypes returns every valid movement type
func AllMovementTypes() []MovementType {
	return []MovementType{
		MovementTypePurchase,
		MovementTypeTransferIn,
		MovementTypeAdjustmentIn,
		MovementTypeReturn,
		MovementTypeProduction,
		MovementTypeSale,
		MovementTypeTransferOut,
		MovementTypeAdjustmentOut,
	}
}

// StockMovement is an immutable fact row in the stock ledger.
// Once appended, movements are never updated or deleted - corrections are
// recorded as compensating movements.
type StockMovement struct {
	shared.BaseEntity
	TenantID     uuid.UUID       `gorm:"type:uuid;not null;index;index:idx_stock_mov_scope,priority:1"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_mov_scope,priority:2;index:idx_stock_mov_batch,priority:1;index:idx_stock_mov_serial,priority:1"`
	BranchID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_mov_scope,priority:3"`
	WarehouseID  *uuid.UUID      `gorm:"type:uuid;index"`
	MovementType MovementType    `gorm:"type:varchar(30);not null;index"`
	Quantity     decimal.Decimal `gorm:"type:decimal(12,4);not null"` // Always positive, direction comes from MovementType
	UnitCost     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalCost    decimal.Decimal `gorm:"type:decimal(14,2);not null"` // Quantity * UnitCost, captured at append time

	BatchNumber     string     `gorm:"type:varchar(100);index:idx_stock_mov_batch,priority:2"`
	LotNumber       string     `gorm:"type:varchar(100)"`
	SerialNumber    string     `gorm:"type:varchar(100);index:idx_stock_mov_serial,priority:2"`
	ManufactureDate *time.Time `gorm:"type:date"`
	ExpiryDate      *time.Time `gorm:"type:date;index"`

	DocumentKind DocumentKind `gorm:"type:varchar(30);index:idx_stock_mov_document,priority:1"`
	DocumentID   string       `gorm:"type:varchar(50);index:idx_stock_mov_document,priority:2"`

	Remarks   string    `gorm:"type:text"`
	CreatedBy uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (StockMovement) TableName() string {
	return "stock_movements"
}

// NewStockMovement creates a validated stock movement ready to be appended.
func NewStockMovement(
	tenantID uuid.UUID,
	productID uuid.UUID,
	branchID uuid.UUID,
	warehouseID *uuid.UUID,
	movementType MovementType,
	quantity decimal.Decimal,
	unitCost decimal.Decimal,
	createdBy uuid.UUID,
) (*StockMovement, error) {
	if tenantID == uuid.Nil {
		return nil, NewValidationError("tenant_id", "tenant ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, NewValidationError("product_id", "product ID cannot be empty")
	}
	if branchID == uuid.Nil {
		return nil, NewValidationError("branch_id", "branch ID cannot be empty")
	}
	if warehouseID != nil && *warehouseID == uuid.Nil {
		return nil, NewValidationError("warehouse_id", "warehouse ID cannot be the zero UUID")
	}
	if !movementType.IsValid() {
		return nil, NewValidationError("movement_type", "unknown movement type")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, NewValidationError("quantity", "quantity must be positive")
	}
	if unitCost.IsNegative() {
		return nil, NewValidationError("unit_cost", "unit cost cannot be negative")
	}
	if createdBy == uuid.Nil {
		return nil, NewValidationError("created_by", "actor ID cannot be empty")
	}

	return &StockMovement{
		BaseEntity:   shared.NewBaseEntity(),
		TenantID:     tenantID,
		ProductID:    productID,
		BranchID:     branchID,
		WarehouseID:  warehouseID,
		MovementType: movementType,
		Quantity:     quantity,
		UnitCost:     unitCost,
		TotalCost:    quantity.Mul(unitCost).Round(2),
		CreatedBy:    createdBy,
	}, nil
}

// WithLot sets the batch/lot identity of the movement
func (m *StockMovement) WithLot(batchNumber, lotNumber string) *StockMovement {
	m.BatchNumber = batchNumber
	m.LotNumber = lotNumber
	return m
}

// WithSerialNumber sets the serial number of the movement
func (m *StockMovement) WithSerialNumber(serialNumber string) *StockMovement {
	m.SerialNumber = serialNumber
	return m
}

// WithDates sets the manufacture and expiry dates of the movement
func (m *StockMovement) WithDates(manufactureDate, expiryDate *time.Time) *StockMovement {
	m.ManufactureDate = manufactureDate
	m.ExpiryDate = expiryDate
	return m
}

// WithDocument links the movement to its originating business document
func (m *StockMovement) WithDocument(ref DocumentRef) *StockMovement {
	m.DocumentKind = ref.Kind
	m.DocumentID = ref.ID
	return m
}

// WithRemarks sets free-text remarks on the movement
func (m *StockMovement) WithRemarks(remarks string) *StockMovement {
	m.Remarks = remarks
	return m
}

// Document returns the originating document reference, zero if unset
func (m *StockMovement) Document() DocumentRef {
	return DocumentRef{Kind: m.DocumentKind, ID: m.DocumentID}
}

// SignedQuantity returns the quantity signed by movement direction:
// positive for inbound types, negative for outbound types.
func (m *StockMovement) SignedQuantity() decimal.Decimal {
	if m.MovementType.IsOutbound() {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// SignedTotalCost returns the total cost signed by movement direction
func (m *StockMovement) SignedTotalCost() decimal.Decimal {
	if m.MovementType.IsOutbound() {
		return m.TotalCost.Neg()
	}
	return m.TotalCost
}

// Validate re-checks the invariants of an already-constructed movement.
// Used as a last gate before appending rows built through the With* chain.
func (m *StockMovement) Validate() error {
	if m.TenantID == uuid.Nil {
		return NewValidationError("tenant_id", "tenant ID cannot be empty")
	}
	if m.ProductID == uuid.Nil {
		return NewValidationError("product_id", "product ID cannot be empty")
	}
	if m.BranchID == uuid.Nil {
		return NewValidationError("branch_id", "branch ID cannot be empty")
	}
	if !m.MovementType.IsValid() {
		return NewValidationError("movement_type", "unknown movement type")
	}
	if m.Quantity.LessThanOrEqual(decimal.Zero) {
		return NewValidationError("quantity", "quantity must be positive")
	}
	if m.UnitCost.IsNegative() {
		return NewValidationError("unit_cost", "unit cost cannot be negative")
	}
	if m.DocumentKind != "" && !m.DocumentKind.IsValid() {
		return NewValidationError("document_kind", "unknown document kind")
	}
	if m.DocumentKind != "" && m.DocumentID == "" {
		return NewValidationError("document_id", "document ID is required when a document kind is set")
	}
	if m.ManufactureDate != nil && m.ExpiryDate != nil && m.ExpiryDate.Before(*m.ManufactureDate) {
		return NewValidationError("expiry_date", "expiry date cannot precede manufacture date")
	}
	return nil
}
