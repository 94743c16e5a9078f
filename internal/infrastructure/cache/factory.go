package cache

import (
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/config"
)

// NewIdempotencyStore builds the idempotency store selected by configuration
func NewIdempotencyStore(cfg *config.Config) (shared.IdempotencyStore, error) {
	switch cfg.Ledger.IdempotencyBackend {
	case "memory":
		return NewMemoryIdempotencyStore(), nil
	case "redis":
		return NewRedisIdempotencyStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.Ledger.IdempotencyBackend)
	}
}
