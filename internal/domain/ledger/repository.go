package ledger

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockScope identifies one product at one location for one tenant. All
// availability checks, position reads and issue serialization key on it.
type StockScope struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	BranchID    uuid.UUID
	WarehouseID *uuid.UUID // nil means branch-level stock without a warehouse split
}

// PositionFilter narrows tenant-wide position reads. Nil fields match
// everything, so the zero value reads the whole tenant.
type PositionFilter struct {
	ProductID   *uuid.UUID
	BranchID    *uuid.UUID
	WarehouseID *uuid.UUID
}

// MovementFilter narrows ledger listings
type MovementFilter struct {
	shared.Filter
	ProductID    *uuid.UUID
	BranchID     *uuid.UUID
	WarehouseID  *uuid.UUID
	MovementType *MovementType
	BatchNumber  string
	SerialNumber string
	From         *time.Time
	To           *time.Time
}

// LedgerRepository is the persistence contract of the movement ledger.
// The ledger is append-only: there are no update or delete operations.
type LedgerRepository interface {
	// Append writes a single movement row
	Append(ctx context.Context, movement *StockMovement) error

	// AppendAll writes a set of movement rows atomically with respect to
	// the surrounding transaction
	AppendAll(ctx context.Context, movements []*StockMovement) error

	// FindByID returns a movement by ID within a tenant.
	// Returns shared.ErrNotFound if absent.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*StockMovement, error)

	// FindForTenant lists movements for a tenant with pagination
	FindForTenant(ctx context.Context, tenantID uuid.UUID, filter MovementFilter) (shared.Paginated[StockMovement], error)

	// FindByDocument lists all movements originated by one business document
	FindByDocument(ctx context.Context, tenantID uuid.UUID, ref DocumentRef) ([]StockMovement, error)

	// CurrentQuantity returns the signed quantity sum over the scope
	CurrentQuantity(ctx context.Context, scope StockScope) (decimal.Decimal, error)

	// PositionsFIFO returns the open positions of the scope ordered for a
	// FIFO walk: earliest first receipt first
	PositionsFIFO(ctx context.Context, scope StockScope) ([]StockPosition, error)

	// PositionsFEFO returns the open positions of the scope ordered for a
	// FEFO walk: earliest expiry first, undated batches last
	PositionsFEFO(ctx context.Context, scope StockScope) ([]StockPosition, error)

	// PositionsForTenant returns all open positions of a tenant, optionally
	// narrowed by the filter
	PositionsForTenant(ctx context.Context, tenantID uuid.UUID, filter PositionFilter) ([]StockPosition, error)

	// ExpiredPositions returns open positions whose expiry date is on or
	// before asOf, earliest expiry first
	ExpiredPositions(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]StockPosition, error)

	// NearExpiryPositions returns open positions expiring within the given
	// number of days from asOf, including already-expired ones, earliest
	// expiry first
	NearExpiryPositions(ctx context.Context, tenantID uuid.UUID, asOf time.Time, days int) ([]StockPosition, error)

	// SumSignedQuantity returns the signed quantity sum over every movement
	// of a tenant. Used to audit that derived positions conserve the ledger.
	SumSignedQuantity(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error)
}

// PositionLocker serializes issuance per stock scope for the duration of the
// enclosing transaction, closing the window between the availability check
// and the movement append.
type PositionLocker interface {
	// LockScope blocks until the caller holds the scope lock. The lock is
	// released when the enclosing transaction commits or rolls back.
	LockScope(ctx context.Context, scope StockScope) error
}
