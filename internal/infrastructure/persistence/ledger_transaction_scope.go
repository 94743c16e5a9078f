package persistence

import (
	"context"
	"hash/fnv"

	"github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormLedgerTransactionScope implements stock.TransactionScope using GORM
// transactions. Repositories handed to the callback are bound to the same
// transaction, so an error anywhere rolls back every appended movement.
type GormLedgerTransactionScope struct {
	db *gorm.DB
}

// NewGormLedgerTransactionScope creates a new transaction scope
func NewGormLedgerTransactionScope(db *gorm.DB) *GormLedgerTransactionScope {
	return &GormLedgerTransactionScope{db: db}
}

// Execute runs fn within a database transaction
func (s *GormLedgerTransactionScope) Execute(ctx context.Context, fn func(ctx context.Context, repos stock.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := stock.TransactionalRepositories{
			Ledger: NewGormLedgerRepository(tx),
			Locker: newScopeLocker(tx),
		}
		return fn(ctx, repos)
	})
}

// scopeLocker serializes issuance per stock scope with a Postgres
// transaction-scoped advisory lock. The lock is released automatically when
// the transaction ends. On dialects without advisory locks (the sqlite test
// database) locking is a no-op: sqlite allows a single writer anyway.
type scopeLocker struct {
	tx *gorm.DB
}

func newScopeLocker(tx *gorm.DB) *scopeLocker {
	return &scopeLocker{tx: tx}
}

// LockScope implements ledger.PositionLocker
func (l *scopeLocker) LockScope(ctx context.Context, scope ledger.StockScope) error {
	if l.tx.Dialector.Name() != "postgres" {
		return nil
	}
	return l.tx.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(?)", scopeLockKey(scope)).Error
}

// scopeLockKey hashes the scope identity into the signed 64-bit key space
// advisory locks use
func scopeLockKey(scope ledger.StockScope) int64 {
	h := fnv.New64a()
	h.Write(scope.TenantID[:])
	h.Write(scope.ProductID[:])
	h.Write(scope.BranchID[:])
	if scope.WarehouseID != nil {
		h.Write(scope.WarehouseID[:])
	}
	return int64(h.Sum64())
}

var _ stock.TransactionScope = (*GormLedgerTransactionScope)(nil)
var _ ledger.PositionLocker = (*scopeLocker)(nil)
