package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AllocationPolicy determines the order in which batches are consumed when
// stock is issued.
type AllocationPolicy string

const (
	// PolicyFIFO consumes the earliest-received batch first
	PolicyFIFO AllocationPolicy = "FIFO"
	// PolicyFEFO consumes the earliest-expiring batch first
	PolicyFEFO AllocationPolicy = "FEFO"
)

// String returns the string representation of AllocationPolicy
func (p AllocationPolicy) String() string {
	return string(p)
}

// IsValid returns true if the policy is FIFO or FEFO
func (p AllocationPolicy) IsValid() bool {
	return p == PolicyFIFO || p == PolicyFEFO
}

// Sort orders positions in allocation order, in place.
//
// FIFO orders by first receipt time; FEFO orders by expiry date with undated
// positions last. Both fall back to batch number then lot number so the walk
// is deterministic when the primary key ties.
func (p AllocationPolicy) Sort(positions []StockPosition) {
	sort.SliceStable(positions, func(i, j int) bool {
		a, b := &positions[i], &positions[j]
		if p == PolicyFEFO {
			switch {
			case a.ExpiryDate == nil && b.ExpiryDate != nil:
				return false
			case a.ExpiryDate != nil && b.ExpiryDate == nil:
				return true
			case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
				return a.ExpiryDate.Before(*b.ExpiryDate)
			}
		}
		if !a.FirstReceivedAt.Equal(b.FirstReceivedAt) {
			return a.FirstReceivedAt.Before(b.FirstReceivedAt)
		}
		if a.BatchNumber != b.BatchNumber {
			return a.BatchNumber < b.BatchNumber
		}
		return a.LotNumber < b.LotNumber
	})
}

// AllocationLine is one batch deduction in an allocation plan. It carries the
// full batch identity so the outgoing movement can be written with it.
type AllocationLine struct {
	Position StockPosition   `json:"position"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"` // Average cost of the batch at planning time
}

// Cost returns the cost of the line at the batch average cost
func (l *AllocationLine) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost).Round(2)
}

// AllocationPlan is the outcome of a greedy batch walk for one issue request
type AllocationPlan struct {
	Policy        AllocationPolicy `json:"policy"`
	Lines         []AllocationLine `json:"lines"`
	TotalQuantity decimal.Decimal  `json:"total_quantity"`
	TotalCost     decimal.Decimal  `json:"total_cost"`
	Shortfall     decimal.Decimal  `json:"shortfall"`
}

// FullySatisfied returns true if the plan covers the whole requested quantity
func (p *AllocationPlan) FullySatisfied() bool {
	return p.Shortfall.IsZero()
}

// PlanAllocation walks the positions in policy order and greedily takes from
// each batch until the requested quantity is satisfied or the batches run
// out. The input slice is re-sorted; positions themselves are not mutated.
func PlanAllocation(policy AllocationPolicy, positions []StockPosition, requested decimal.Decimal) (*AllocationPlan, error) {
	if !policy.IsValid() {
		return nil, NewValidationError("policy", "unknown allocation policy")
	}
	if requested.LessThanOrEqual(decimal.Zero) {
		return nil, NewValidationError("quantity", "requested quantity must be positive")
	}

	policy.Sort(positions)

	plan := &AllocationPlan{
		Policy:        policy,
		TotalQuantity: decimal.Zero,
		TotalCost:     decimal.Zero,
		Shortfall:     decimal.Zero,
	}

	remaining := requested
	for i := range positions {
		if remaining.IsZero() {
			break
		}
		pos := positions[i]
		if pos.CurrentQuantity.LessThanOrEqual(decimal.Zero) {
			continue
		}

		take := decimal.Min(pos.CurrentQuantity, remaining)
		line := AllocationLine{
			Position: pos,
			Quantity: take,
			UnitCost: pos.AverageCost,
		}
		plan.Lines = append(plan.Lines, line)
		plan.TotalQuantity = plan.TotalQuantity.Add(take)
		plan.TotalCost = plan.TotalCost.Add(line.Cost())
		remaining = remaining.Sub(take)
	}

	plan.Shortfall = remaining
	return plan, nil
}
