package adapter

import (
	"context"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormInventoryLedger 直接在 products.stock 上做条件扣减
type GormInventoryLedger struct {
	db *gorm.DB
}

func NewGormInventoryLedger(db *gorm.DB) *GormInventoryLedger {
	return &GormInventoryLedger{db: db}
}

// Reserve 依赖 UPDATE ... WHERE stock >= ? 的行锁保证原子性
func (l *GormInventoryLedger) Reserve(ctx context.Context, productID string, quantity int) error {
	res := l.db.WithContext(ctx).Model(&infrastructure.ProductModel{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "reserve %d of %s", quantity, productID)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := l.db.WithContext(ctx).Model(&infrastructure.ProductModel{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return errors.Wrapf(err, "check product %s", productID)
	}
	if count == 0 {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	return &domain.InsufficientStockError{ProductID: productID, Requested: quantity}
}

func (l *GormInventoryLedger) Release(ctx context.Context, productID string, quantity int) error {
	res := l.db.WithContext(ctx).Model(&infrastructure.ProductModel{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "release %d of %s", quantity, productID)
	}
	if res.RowsAffected == 0 {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	return nil
}

// Adjust 无条件地修改库存，供 Redis 账本同步使用，结果不会小于 0
func (l *GormInventoryLedger) Adjust(ctx context.Context, productID string, delta int) error {
	res := l.db.WithContext(ctx).Model(&infrastructure.ProductModel{}).
		Where("id = ? AND stock + ? >= 0", productID, delta).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "adjust stock of %s by %d", productID, delta)
	}
	if res.RowsAffected == 0 {
		return errors.Errorf("stock of %s cannot be adjusted by %d", productID, delta)
	}
	return nil
}
