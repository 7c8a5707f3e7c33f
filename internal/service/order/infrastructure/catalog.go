package infrastructure

import (
	"context"
	"storefront/internal/service/order/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormProductCatalog 从 products 表读取商品，只读
type GormProductCatalog struct {
	db *gorm.DB
}

func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

func (c *GormProductCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var model ProductModel
	err := c.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.ProductNotFoundError{ProductID: id}
		}
		return nil, errors.Wrapf(err, "get product %s", id)
	}
	return ToDomainProduct(&model), nil
}

// ListProducts 返回全部商品，用于启动时预热库存账本
func (c *GormProductCatalog) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	var models []ProductModel
	if err := c.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products := make([]*domain.Product, len(models))
	for i := range models {
		products[i] = ToDomainProduct(&models[i])
	}
	return products, nil
}
