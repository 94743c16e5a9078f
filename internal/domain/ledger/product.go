package ledger

import (
	"context"

	"github.com/google/uuid"
)

// ProductInfo carries the product attributes the ledger needs to decide how
// to track and allocate stock. The full product master lives outside the
// ledger; this is the ledger's read model of it.
type ProductInfo struct {
	ID          uuid.UUID
	Code        string
	Name        string
	TrackBatch  bool
	TrackSerial bool
	TrackExpiry bool
}

// AllocationPolicy returns the batch walk order this product requires.
// Expiry-tracked products consume the earliest-expiring batch first; all
// others consume the earliest-received batch first.
func (p ProductInfo) AllocationPolicy() AllocationPolicy {
	if p.TrackExpiry {
		return PolicyFEFO
	}
	return PolicyFIFO
}

// ProductCatalog resolves product identities and tracking attributes
type ProductCatalog interface {
	// FindProduct returns the product's ledger-relevant attributes.
	// Returns shared.ErrNotFound if the product does not exist for the tenant.
	FindProduct(ctx context.Context, tenantID, productID uuid.UUID) (*ProductInfo, error)
}

// BranchDirectory resolves branch and warehouse identities
type BranchDirectory interface {
	// BranchExists reports whether the branch exists for the tenant
	BranchExists(ctx context.Context, tenantID, branchID uuid.UUID) (bool, error)

	// WarehouseExists reports whether the warehouse exists under the branch
	WarehouseExists(ctx context.Context, tenantID, branchID, warehouseID uuid.UUID) (bool, error)
}
