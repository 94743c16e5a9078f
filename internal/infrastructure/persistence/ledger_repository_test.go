package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&ledger.StockMovement{}, &Product{}, &Branch{}, &Warehouse{})
	require.NoError(t, err)

	return db
}

type ledgerFixture struct {
	db        *gorm.DB
	repo      *GormLedgerRepository
	tenantID  uuid.UUID
	productID uuid.UUID
	branchID  uuid.UUID
	actorID   uuid.UUID
	clock     time.Time
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := setupLedgerTestDB(t)
	return &ledgerFixture{
		db:        db,
		repo:      NewGormLedgerRepository(db),
		tenantID:  uuid.New(),
		productID: uuid.New(),
		branchID:  uuid.New(),
		actorID:   uuid.New(),
		clock:     time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
	}
}

func (f *ledgerFixture) scope() ledger.StockScope {
	return ledger.StockScope{TenantID: f.tenantID, ProductID: f.productID, BranchID: f.branchID}
}

// append writes a movement with a controlled timestamp so ordering assertions
// are deterministic
func (f *ledgerFixture) append(t *testing.T, movementType ledger.MovementType, batch string, qty, cost float64, expiry *time.Time) *ledger.StockMovement {
	t.Helper()
	m, err := ledger.NewStockMovement(f.tenantID, f.productID, f.branchID, nil,
		movementType, decimal.NewFromFloat(qty), decimal.NewFromFloat(cost), f.actorID)
	require.NoError(t, err)
	m.WithLot(batch, "").WithDates(nil, expiry)
	f.clock = f.clock.Add(time.Minute)
	m.CreatedAt = f.clock
	require.NoError(t, f.repo.Append(context.Background(), m))
	return m
}

func expiry(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestGormLedgerRepository_AppendAndFind(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	t.Run("append and find by ID", func(t *testing.T) {
		m := f.append(t, ledger.MovementTypePurchase, "B1", 10, 2.5, nil)

		found, err := f.repo.FindByID(ctx, f.tenantID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.ID, found.ID)
		assert.Equal(t, ledger.MovementTypePurchase, found.MovementType)
		assert.True(t, found.Quantity.Equal(decimal.NewFromInt(10)))
		assert.True(t, found.TotalCost.Equal(decimal.NewFromInt(25)))
	})

	t.Run("not found for wrong tenant", func(t *testing.T) {
		m := f.append(t, ledger.MovementTypePurchase, "B2", 1, 1, nil)
		_, err := f.repo.FindByID(ctx, uuid.New(), m.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("append rejects invalid movement", func(t *testing.T) {
		m, err := ledger.NewStockMovement(f.tenantID, f.productID, f.branchID, nil,
			ledger.MovementTypePurchase, decimal.NewFromInt(1), decimal.Zero, f.actorID)
		require.NoError(t, err)
		m.Quantity = decimal.Zero
		require.Error(t, f.repo.Append(ctx, m))
	})
}

func TestGormLedgerRepository_CurrentQuantity(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	t.Run("zero for empty scope", func(t *testing.T) {
		qty, err := f.repo.CurrentQuantity(ctx, f.scope())
		require.NoError(t, err)
		assert.True(t, qty.IsZero())
	})

	t.Run("sums signed quantities", func(t *testing.T) {
		f.append(t, ledger.MovementTypePurchase, "B1", 100, 2, nil)
		f.append(t, ledger.MovementTypeSale, "B1", 30, 2, nil)
		f.append(t, ledger.MovementTypeAdjustmentIn, "B1", 5, 2, nil)

		qty, err := f.repo.CurrentQuantity(ctx, f.scope())
		require.NoError(t, err)
		assert.True(t, qty.Equal(decimal.NewFromInt(75)), "got %s", qty)
	})

	t.Run("scope isolates tenants", func(t *testing.T) {
		other := f.scope()
		other.TenantID = uuid.New()
		qty, err := f.repo.CurrentQuantity(ctx, other)
		require.NoError(t, err)
		assert.True(t, qty.IsZero())
	})

	t.Run("tenant-wide signed sum matches", func(t *testing.T) {
		total, err := f.repo.SumSignedQuantity(ctx, f.tenantID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.NewFromInt(75)), "got %s", total)

		none, err := f.repo.SumSignedQuantity(ctx, uuid.New())
		require.NoError(t, err)
		assert.True(t, none.IsZero())
	})
}

func TestGormLedgerRepository_Positions(t *testing.T) {
	ctx := context.Background()

	t.Run("groups by batch with signed sums", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.append(t, ledger.MovementTypePurchase, "B1", 50, 2, nil)
		f.append(t, ledger.MovementTypePurchase, "B2", 30, 4, nil)
		f.append(t, ledger.MovementTypeSale, "B1", 20, 2, nil)

		positions, err := f.repo.PositionsFIFO(ctx, f.scope())
		require.NoError(t, err)
		require.Len(t, positions, 2)
		assert.Equal(t, "B1", positions[0].BatchNumber)
		assert.True(t, positions[0].CurrentQuantity.Equal(decimal.NewFromInt(30)))
		assert.Equal(t, "B2", positions[1].BatchNumber)
		assert.True(t, positions[1].CurrentQuantity.Equal(decimal.NewFromInt(30)))
	})

	t.Run("fully consumed batches disappear", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.append(t, ledger.MovementTypePurchase, "B1", 10, 1, nil)
		f.append(t, ledger.MovementTypeSale, "B1", 10, 1, nil)
		f.append(t, ledger.MovementTypePurchase, "B2", 5, 1, nil)

		positions, err := f.repo.PositionsFIFO(ctx, f.scope())
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, "B2", positions[0].BatchNumber)
	})

	t.Run("average cost is the mean over the group", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.append(t, ledger.MovementTypePurchase, "B1", 10, 2.00, nil)
		f.append(t, ledger.MovementTypePurchase, "B1", 10, 4.00, nil)

		positions, err := f.repo.PositionsFIFO(ctx, f.scope())
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.True(t, positions[0].AverageCost.Equal(decimal.NewFromInt(3)),
			"got %s", positions[0].AverageCost)
	})

	t.Run("FIFO orders by first receipt", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.append(t, ledger.MovementTypePurchase, "ZULU", 10, 1, nil)
		f.append(t, ledger.MovementTypePurchase, "ALFA", 10, 1, nil)

		positions, err := f.repo.PositionsFIFO(ctx, f.scope())
		require.NoError(t, err)
		require.Len(t, positions, 2)
		// ZULU arrived first, batch name does not matter
		assert.Equal(t, "ZULU", positions[0].BatchNumber)
		assert.Equal(t, "ALFA", positions[1].BatchNumber)
		assert.True(t, positions[0].FirstReceivedAt.Before(positions[1].FirstReceivedAt))
	})

	t.Run("FEFO orders by expiry with undated last", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.append(t, ledger.MovementTypePurchase, "UNDATED", 10, 1, nil)
		f.append(t, ledger.MovementTypePurchase, "LATE", 10, 1, expiry(2027, 1, 1))
		f.append(t, ledger.MovementTypePurchase, "EARLY", 10, 1, expiry(2026, 6, 1))

		positions, err := f.repo.PositionsFEFO(ctx, f.scope())
		require.NoError(t, err)
		require.Len(t, positions, 3)
		assert.Equal(t, "EARLY", positions[0].BatchNumber)
		assert.Equal(t, "LATE", positions[1].BatchNumber)
		assert.Equal(t, "UNDATED", positions[2].BatchNumber)
	})

	t.Run("positions for tenant span scopes", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.append(t, ledger.MovementTypePurchase, "B1", 10, 1, nil)

		otherProduct := uuid.New()
		m, err := ledger.NewStockMovement(f.tenantID, otherProduct, f.branchID, nil,
			ledger.MovementTypePurchase, decimal.NewFromInt(7), decimal.NewFromInt(1), f.actorID)
		require.NoError(t, err)
		m.WithLot("C1", "")
		require.NoError(t, f.repo.Append(ctx, m))

		all, err := f.repo.PositionsForTenant(ctx, f.tenantID, ledger.PositionFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		byProduct, err := f.repo.PositionsForTenant(ctx, f.tenantID, ledger.PositionFilter{ProductID: &otherProduct})
		require.NoError(t, err)
		require.Len(t, byProduct, 1)
		assert.Equal(t, otherProduct, byProduct[0].ProductID)
	})

	t.Run("positions for tenant narrow by warehouse", func(t *testing.T) {
		f := newLedgerFixture(t)
		warehouseID := uuid.New()

		m, err := ledger.NewStockMovement(f.tenantID, f.productID, f.branchID, &warehouseID,
			ledger.MovementTypePurchase, decimal.NewFromInt(4), decimal.NewFromInt(1), f.actorID)
		require.NoError(t, err)
		m.WithLot("WH", "")
		require.NoError(t, f.repo.Append(ctx, m))
		f.append(t, ledger.MovementTypePurchase, "FLOOR", 6, 1, nil)

		narrowed, err := f.repo.PositionsForTenant(ctx, f.tenantID, ledger.PositionFilter{WarehouseID: &warehouseID})
		require.NoError(t, err)
		require.Len(t, narrowed, 1)
		assert.Equal(t, "WH", narrowed[0].BatchNumber)
	})
}

func TestGormLedgerRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	asOf := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	f.append(t, ledger.MovementTypePurchase, "GONE", 5, 1, expiry(2026, 7, 1))
	f.append(t, ledger.MovementTypePurchase, "SOON", 5, 1, expiry(2026, 8, 20))
	f.append(t, ledger.MovementTypePurchase, "FAR", 5, 1, expiry(2027, 8, 1))
	f.append(t, ledger.MovementTypePurchase, "NONE", 5, 1, nil)

	t.Run("expired positions", func(t *testing.T) {
		expired, err := f.repo.ExpiredPositions(ctx, f.tenantID, asOf)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "GONE", expired[0].BatchNumber)
	})

	t.Run("near expiry includes expired", func(t *testing.T) {
		near, err := f.repo.NearExpiryPositions(ctx, f.tenantID, asOf, 30)
		require.NoError(t, err)
		require.Len(t, near, 2)
		batches := []string{near[0].BatchNumber, near[1].BatchNumber}
		assert.Contains(t, batches, "GONE")
		assert.Contains(t, batches, "SOON")
	})

	t.Run("near expiry orders by expiry, not receipt", func(t *testing.T) {
		f := newLedgerFixture(t)
		// LATE arrives before SOON but expires after it
		f.append(t, ledger.MovementTypePurchase, "LATE", 5, 1, expiry(2026, 9, 10))
		f.append(t, ledger.MovementTypePurchase, "SOON", 5, 1, expiry(2026, 8, 10))

		near, err := f.repo.NearExpiryPositions(ctx, f.tenantID, asOf, 60)
		require.NoError(t, err)
		require.Len(t, near, 2)
		assert.Equal(t, "SOON", near[0].BatchNumber)
		assert.Equal(t, "LATE", near[1].BatchNumber)
	})

	t.Run("expired orders by expiry", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.append(t, ledger.MovementTypePurchase, "NEWER", 5, 1, expiry(2026, 6, 1))
		f.append(t, ledger.MovementTypePurchase, "OLDER", 5, 1, expiry(2026, 5, 1))

		expired, err := f.repo.ExpiredPositions(ctx, f.tenantID, asOf)
		require.NoError(t, err)
		require.Len(t, expired, 2)
		assert.Equal(t, "OLDER", expired[0].BatchNumber)
		assert.Equal(t, "NEWER", expired[1].BatchNumber)
	})
}

func TestGormLedgerRepository_FindForTenant(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	for i := 0; i < 5; i++ {
		f.append(t, ledger.MovementTypePurchase, "B1", 10, 1, nil)
	}
	f.append(t, ledger.MovementTypeSale, "B1", 3, 1, nil)

	t.Run("paginates", func(t *testing.T) {
		filter := ledger.MovementFilter{Filter: shared.Filter{Page: 1, PageSize: 4}}
		page, err := f.repo.FindForTenant(ctx, f.tenantID, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(6), page.Total)
		assert.Len(t, page.Items, 4)
		assert.Equal(t, 2, page.TotalPages)
	})

	t.Run("filters by movement type", func(t *testing.T) {
		sale := ledger.MovementTypeSale
		filter := ledger.MovementFilter{MovementType: &sale}
		page, err := f.repo.FindForTenant(ctx, f.tenantID, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("filters by time range", func(t *testing.T) {
		from := f.clock.Add(-90 * time.Second)
		filter := ledger.MovementFilter{From: &from}
		page, err := f.repo.FindForTenant(ctx, f.tenantID, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
	})

	t.Run("empty for other tenant", func(t *testing.T) {
		page, err := f.repo.FindForTenant(ctx, uuid.New(), ledger.MovementFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), page.Total)
	})
}

func TestGormLedgerRepository_FindByDocument(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	ref := ledger.DocumentRef{Kind: ledger.DocumentKindSalesOrder, ID: "SO-77"}
	m, err := ledger.NewStockMovement(f.tenantID, f.productID, f.branchID, nil,
		ledger.MovementTypePurchase, decimal.NewFromInt(10), decimal.NewFromInt(1), f.actorID)
	require.NoError(t, err)
	m.WithLot("B1", "").WithDocument(ref)
	require.NoError(t, f.repo.Append(ctx, m))

	found, err := f.repo.FindByDocument(ctx, f.tenantID, ref)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "SO-77", found[0].DocumentID)

	none, err := f.repo.FindByDocument(ctx, f.tenantID,
		ledger.DocumentRef{Kind: ledger.DocumentKindSalesOrder, ID: "SO-99"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormLedgerTransactionScope(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	scope := NewGormLedgerTransactionScope(f.db)

	newMovement := func(t *testing.T) *ledger.StockMovement {
		m, err := ledger.NewStockMovement(f.tenantID, f.productID, f.branchID, nil,
			ledger.MovementTypePurchase, decimal.NewFromInt(10), decimal.NewFromInt(1), f.actorID)
		require.NoError(t, err)
		return m
	}

	t.Run("commits on success", func(t *testing.T) {
		m := newMovement(t)
		err := scope.Execute(ctx, func(ctx context.Context, repos stock.TransactionalRepositories) error {
			if err := repos.Locker.LockScope(ctx, f.scope()); err != nil {
				return err
			}
			return repos.Ledger.Append(ctx, m)
		})
		require.NoError(t, err)

		_, err = f.repo.FindByID(ctx, f.tenantID, m.ID)
		assert.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		m := newMovement(t)
		err := scope.Execute(ctx, func(ctx context.Context, repos stock.TransactionalRepositories) error {
			if err := repos.Ledger.Append(ctx, m); err != nil {
				return err
			}
			return assert.AnError
		})
		require.Error(t, err)

		_, err = f.repo.FindByID(ctx, f.tenantID, m.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormReferenceData(t *testing.T) {
	ctx := context.Background()
	db := setupLedgerTestDB(t)
	tenantID := uuid.New()

	product := &Product{
		BaseEntity:  shared.NewBaseEntity(),
		TenantID:    tenantID,
		Code:        "VACCINE",
		Name:        "Flu vaccine",
		TrackBatch:  true,
		TrackExpiry: true,
	}
	require.NoError(t, db.Create(product).Error)

	branch := &Branch{BaseEntity: shared.NewBaseEntity(), TenantID: tenantID, Code: "HQ", Name: "Head office"}
	require.NoError(t, db.Create(branch).Error)

	warehouse := &Warehouse{BaseEntity: shared.NewBaseEntity(), TenantID: tenantID, BranchID: branch.ID, Code: "WH1", Name: "Cold storage"}
	require.NoError(t, db.Create(warehouse).Error)

	catalog := NewGormProductCatalog(db)
	directory := NewGormBranchDirectory(db)

	t.Run("finds product attributes", func(t *testing.T) {
		info, err := catalog.FindProduct(ctx, tenantID, product.ID)
		require.NoError(t, err)
		assert.True(t, info.TrackExpiry)
		assert.Equal(t, ledger.PolicyFEFO, info.AllocationPolicy())
	})

	t.Run("missing product", func(t *testing.T) {
		_, err := catalog.FindProduct(ctx, tenantID, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("product is tenant scoped", func(t *testing.T) {
		_, err := catalog.FindProduct(ctx, uuid.New(), product.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("branch and warehouse existence", func(t *testing.T) {
		ok, err := directory.BranchExists(ctx, tenantID, branch.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = directory.WarehouseExists(ctx, tenantID, branch.ID, warehouse.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = directory.WarehouseExists(ctx, tenantID, uuid.New(), warehouse.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
