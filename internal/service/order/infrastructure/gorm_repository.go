package infrastructure

import (
	"context"
	"storefront/internal/service/order/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建一个新的 GORM 仓储实例
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 在一个事务中写入订单、订单行和发件箱事件
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order, events ...domain.OutboxEvent) error {
	model := FromDomainOrder(order)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 订单行通过 has-many 关联一并写入
		if err := tx.Create(model).Error; err != nil {
			if IsDuplicateKey(err) {
				return errors.Wrapf(err, "order %s already exists", order.ID)
			}
			return errors.Wrap(err, "insert order")
		}
		for _, e := range events {
			if err := tx.Create(FromDomainOutbox(e)).Error; err != nil {
				return errors.Wrap(err, "insert outbox event")
			}
		}
		return nil
	})
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items", orderItemsByPosition).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %s", id)
	}
	return ToDomainOrder(&model), nil
}

func (r *GormOrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", orderItemsByPosition).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of user %s", userID)
	}
	return toDomainOrders(models), nil
}

func (r *GormOrderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&OrderModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	// Session 让同一个查询条件可以安全地复用两次
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	var models []OrderModel
	err := query.
		Preload("Items", orderItemsByPosition).
		Order("created_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return toDomainOrders(models), total, nil
}

// UpdateStatus 只更新状态相关的字段，订单行不会被触碰
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, order *domain.Order) error {
	updateData := map[string]interface{}{
		"status":       string(order.Status),
		"is_delivered": order.IsDelivered,
		"delivered_at": toNullTime(order.DeliveredAt),
		"updated_at":   order.UpdatedAt,
	}
	res := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", order.ID).Updates(updateData)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update order %s", order.ID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func orderItemsByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func toDomainOrders(models []OrderModel) []*domain.Order {
	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = ToDomainOrder(&models[i])
	}
	return orders
}
