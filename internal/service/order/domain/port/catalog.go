package port

import (
	"context"
	"storefront/internal/service/order/domain"
)

// ProductCatalog 是商品目录的只读端口
type ProductCatalog interface {
	// GetProduct 找不到时返回 *domain.ProductNotFoundError
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}
