// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Create 写入新订单。events 会和订单在同一个事务中写入发件箱。
	Create(ctx context.Context, order *Order, events ...OutboxEvent) error

	// FindByID 找不到时返回 ErrOrderNotFound
	FindByID(ctx context.Context, id string) (*Order, error)

	// ListByUser 按创建时间倒序返回用户的订单
	ListByUser(ctx context.Context, userID string) ([]*Order, error)

	// List 是管理端的分页查询，返回当前页和总数
	List(ctx context.Context, filter ListFilter) ([]*Order, int64, error)

	// UpdateStatus 只持久化状态和送达字段
	UpdateStatus(ctx context.Context, order *Order) error
}

// ListFilter 中 Status 为空表示不过滤
type ListFilter struct {
	Status Status
	Page   int
	Limit  int
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// TotalPages 向上取整
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
