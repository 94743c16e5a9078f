package stock

import (
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordMovementInput carries one movement to be appended to the ledger
type RecordMovementInput struct {
	TenantID     uuid.UUID
	ProductID    uuid.UUID
	BranchID     uuid.UUID
	WarehouseID  *uuid.UUID
	MovementType ledger.MovementType
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal

	BatchNumber     string
	LotNumber       string
	SerialNumber    string
	ManufactureDate *time.Time
	ExpiryDate      *time.Time

	Document ledger.DocumentRef
	Remarks  string
	ActorID  uuid.UUID

	// IdempotencyKey deduplicates retried submissions. Empty disables the check.
	IdempotencyKey string
}

// IssueStockInput carries one issue request to be allocated across batches
type IssueStockInput struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	BranchID    uuid.UUID
	WarehouseID *uuid.UUID
	Quantity    decimal.Decimal

	// MovementType must be an outgoing kind. Empty defaults to SALE.
	MovementType ledger.MovementType

	Document ledger.DocumentRef
	Remarks  string
	ActorID  uuid.UUID

	IdempotencyKey string
}

// IssueStockResult reports the outcome of a committed issuance
type IssueStockResult struct {
	Policy        ledger.AllocationPolicy `json:"policy"`
	Movements     []*ledger.StockMovement `json:"movements"`
	TotalQuantity decimal.Decimal         `json:"total_quantity"`
	TotalCost     decimal.Decimal         `json:"total_cost"`
}

// ValuationLine is the value of one open position
type ValuationLine struct {
	Position ledger.StockPosition `json:"position"`
	Value    decimal.Decimal      `json:"value"`
}

// ValuationReport is the inventory value of a tenant's open positions.
// AverageCost is total value over total quantity, zero when nothing is on
// hand.
type ValuationReport struct {
	TenantID      uuid.UUID       `json:"tenant_id"`
	AsOf          time.Time       `json:"as_of"`
	Lines         []ValuationLine `json:"lines"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
	AverageCost   decimal.Decimal `json:"average_cost"`
}

// ConservationReport compares the signed movement total of a tenant with the
// total of its derived open positions. The two diverge only when some
// position group has been driven negative, which the issue path is supposed
// to make impossible.
type ConservationReport struct {
	TenantID      uuid.UUID       `json:"tenant_id"`
	AsOf          time.Time       `json:"as_of"`
	MovementTotal decimal.Decimal `json:"movement_total"`
	PositionTotal decimal.Decimal `json:"position_total"`
	Balanced      bool            `json:"balanced"`
}

// ExpiryReport lists expired and near-expiry positions of a tenant
type ExpiryReport struct {
	TenantID   uuid.UUID              `json:"tenant_id"`
	AsOf       time.Time              `json:"as_of"`
	WindowDays int                    `json:"window_days"`
	Expired    []ledger.StockPosition `json:"expired"`
	NearExpiry []ledger.StockPosition `json:"near_expiry"`
}
