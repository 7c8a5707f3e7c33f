package saga

import (
	"context"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// NotificationHandler 是 Saga 流程的最后一步，尽力发送订单创建通知。
// 失败只记录日志和 span，不影响下单结果。
type NotificationHandler struct {
	NextHandler
	timeout time.Duration
}

func NewNotificationHandler(timeout time.Duration) *NotificationHandler {
	return &NotificationHandler{timeout: timeout}
}

func (h *NotificationHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Notification")
	defer span.End()

	order := orderCtx.Order
	event := domain.NewOrderPlaced(order)

	// 为 nil 表示未配置或由发件箱异步投递
	if orderCtx.Notifier != nil {
		notifyCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := orderCtx.Notifier.NotifyOrderPlaced(notifyCtx, event)
		cancel()

		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("WARN: failed to send order notification")
			span.RecordError(err)
			orderCtx.Metrics.Notification("failed")
		} else {
			orderCtx.Metrics.Notification("sent")
		}
		span.SetAttributes(attribute.Bool("notification.sent", err == nil))
	}

	if orderCtx.Publisher != nil {
		orderCtx.Publisher.Publish(ctx, order.UserID, domain.EventOrderPlaced, event)
	}

	return h.executeNext(orderCtx)
}
