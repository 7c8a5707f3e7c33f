package port

import (
	"context"
	"storefront/internal/service/order/domain"
)

// Notifier 把订单摘要投递到外部系统。调用方只记录错误，不会因此回滚订单。
type Notifier interface {
	NotifyOrderPlaced(ctx context.Context, event domain.OrderPlaced) error
}

// EventPublisher 向用户的在线会话推送订单事件，尽力而为
type EventPublisher interface {
	Publish(ctx context.Context, userID, eventType string, payload any)
}

// Locker 为某个资源加互斥锁，返回的 unlock 必须被调用
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
