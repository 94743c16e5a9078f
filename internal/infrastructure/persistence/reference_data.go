package persistence

import (
	"context"
	"errors"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the ledger's read model of the product master. The full master
// lives in the upstream ERP; this table is synchronized reference data.
type Product struct {
	shared.BaseEntity
	TenantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_products_tenant_code,priority:1"`
	Code        string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_products_tenant_code,priority:2"`
	Name        string    `gorm:"type:varchar(200);not null"`
	TrackBatch  bool      `gorm:"not null;default:false"`
	TrackSerial bool      `gorm:"not null;default:false"`
	TrackExpiry bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// Branch is a tenant's physical or logical location
type Branch struct {
	shared.BaseEntity
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_branches_tenant_code,priority:1"`
	Code     string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_branches_tenant_code,priority:2"`
	Name     string    `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (Branch) TableName() string {
	return "branches"
}

// Warehouse is a storage area within a branch
type Warehouse struct {
	shared.BaseEntity
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	BranchID uuid.UUID `gorm:"type:uuid;not null;index"`
	Code     string    `gorm:"type:varchar(50);not null"`
	Name     string    `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (Warehouse) TableName() string {
	return "warehouses"
}

// GormProductCatalog implements ledger.ProductCatalog against the products table
type GormProductCatalog struct {
	db *gorm.DB
}

// NewGormProductCatalog creates a new product catalog
func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

// FindProduct returns the product's ledger-relevant attributes
func (c *GormProductCatalog) FindProduct(ctx context.Context, tenantID, productID uuid.UUID) (*ledger.ProductInfo, error) {
	var product Product
	err := c.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, productID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ledger.ProductInfo{
		ID:          product.ID,
		Code:        product.Code,
		Name:        product.Name,
		TrackBatch:  product.TrackBatch,
		TrackSerial: product.TrackSerial,
		TrackExpiry: product.TrackExpiry,
	}, nil
}

// GormBranchDirectory implements ledger.BranchDirectory against the branch
// and warehouse tables
type GormBranchDirectory struct {
	db *gorm.DB
}

// NewGormBranchDirectory creates a new branch directory
func NewGormBranchDirectory(db *gorm.DB) *GormBranchDirectory {
	return &GormBranchDirectory{db: db}
}

// BranchExists reports whether the branch exists for the tenant
func (d *GormBranchDirectory) BranchExists(ctx context.Context, tenantID, branchID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&Branch{}).
		Where("tenant_id = ? AND id = ?", tenantID, branchID).
		Count(&count).Error
	return count > 0, err
}

// WarehouseExists reports whether the warehouse exists under the branch
func (d *GormBranchDirectory) WarehouseExists(ctx context.Context, tenantID, branchID, warehouseID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&Warehouse{}).
		Where("tenant_id = ? AND branch_id = ? AND id = ?", tenantID, branchID, warehouseID).
		Count(&count).Error
	return count > 0, err
}

var _ ledger.ProductCatalog = (*GormProductCatalog)(nil)
var _ ledger.BranchDirectory = (*GormBranchDirectory)(nil)
