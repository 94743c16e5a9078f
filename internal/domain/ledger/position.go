package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockPosition is the derived on-hand state of one batch of one product at
// one location. Positions are never stored directly - they are aggregated
// from the movement ledger at query time, so they cannot drift from it.
type StockPosition struct {
	TenantID    uuid.UUID  `json:"tenant_id"`
	ProductID   uuid.UUID  `json:"product_id"`
	BranchID    uuid.UUID  `json:"branch_id"`
	WarehouseID *uuid.UUID `json:"warehouse_id,omitempty"`

	BatchNumber string     `json:"batch_number,omitempty"`
	LotNumber   string     `json:"lot_number,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`

	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	AverageCost     decimal.Decimal `json:"average_cost"`

	// FirstReceivedAt is the timestamp of the earliest inbound movement of
	// this batch group. It orders the FIFO walk.
	FirstReceivedAt time.Time `json:"first_received_at"`
}

// Value returns the inventory value of the position at its average cost
func (p *StockPosition) Value() decimal.Decimal {
	return p.CurrentQuantity.Mul(p.AverageCost).Round(2)
}

// IsExpired returns true if the position carries an expiry date on or before asOf
func (p *StockPosition) IsExpired(asOf time.Time) bool {
	if p.ExpiryDate == nil {
		return false
	}
	return !p.ExpiryDate.After(asOf)
}

// ExpiresWithin returns true if the position expires within the given number
// of days from asOf. Already-expired positions also report true.
func (p *StockPosition) ExpiresWithin(asOf time.Time, days int) bool {
	if p.ExpiryDate == nil {
		return false
	}
	return !p.ExpiryDate.After(asOf.AddDate(0, 0, days))
}

// SameBatch returns true if two positions refer to the same batch group
func (p *StockPosition) SameBatch(other *StockPosition) bool {
	if p.BatchNumber != other.BatchNumber || p.LotNumber != other.LotNumber {
		return false
	}
	switch {
	case p.ExpiryDate == nil && other.ExpiryDate == nil:
		return true
	case p.ExpiryDate == nil || other.ExpiryDate == nil:
		return false
	default:
		return p.ExpiryDate.Equal(*other.ExpiryDate)
	}
}
