package stock

import (
	"context"

	"github.com/erp/stockledger/internal/domain/ledger"
)

// TransactionalRepositories bundles the repositories that participate in one
// ledger transaction. Every repository in the bundle is bound to the same
// underlying transaction.
type TransactionalRepositories struct {
	Ledger ledger.LedgerRepository
	Locker ledger.PositionLocker
}

// TransactionScope executes a function within a database transaction.
// If fn returns an error the transaction is rolled back, otherwise committed.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos TransactionalRepositories) error) error
}

// NoOpTransactionScope runs the function against the provided repositories
// without transactional guarantees. Intended for tests.
type NoOpTransactionScope struct {
	Repos TransactionalRepositories
}

// Execute implements TransactionScope
func (s *NoOpTransactionScope) Execute(ctx context.Context, fn func(ctx context.Context, repos TransactionalRepositories) error) error {
	return fn(ctx, s.Repos)
}
