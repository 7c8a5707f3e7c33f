package port

import (
	"context"
)

// InventoryLedger 是库存账本的出站端口。
// 同一商品上的 Reserve/Release 互斥，不同商品之间互不阻塞。
type InventoryLedger interface {
	// Reserve 原子地检查并扣减库存。库存不足时返回 *domain.InsufficientStockError 且不做任何修改。
	Reserve(ctx context.Context, productID string, quantity int) error

	// Release 是 Reserve 的补偿操作，归还预占的库存。
	Release(ctx context.Context, productID string, quantity int) error
}
