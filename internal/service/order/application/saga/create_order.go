package saga

import (
	"encoding/json"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateOrderHandler 负责持久化订单。写入成功后 Saga 不再回滚。
type CreateOrderHandler struct {
	NextHandler
	repo   domain.OrderRepository
	outbox bool // 为 true 时订单摘要与订单同事务写入发件箱
}

func NewCreateOrderHandler(repo domain.OrderRepository, outbox bool) *CreateOrderHandler {
	return &CreateOrderHandler{repo: repo, outbox: outbox}
}

func (h *CreateOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	now := orderCtx.Now()
	order, err := domain.NewOrder(domain.NewOrderParams{
		ID:              orderCtx.NewID(),
		UserID:          orderCtx.UserID,
		UserEmail:       orderCtx.UserEmail,
		Lines:           orderCtx.Lines,
		ShippingAddress: orderCtx.ShippingAddress,
		PaymentMethod:   orderCtx.PaymentMethod,
		Totals:          orderCtx.Totals,
		Now:             now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build order entity")
		return errors.Wrap(err, "build order")
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	var events []domain.OutboxEvent
	if h.outbox {
		payload, err := json.Marshal(domain.NewOrderPlaced(order))
		if err != nil {
			return errors.Wrap(err, "marshal order placed event")
		}
		events = append(events, domain.OutboxEvent{
			ID:        orderCtx.NewID(),
			Type:      domain.EventOrderPlaced,
			Key:       order.UserID,
			Payload:   payload,
			CreatedAt: now,
		})
	}

	if err := h.repo.Create(WriteContext(ctx), order, events...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist order")
		logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("failed to persist order")
		return &domain.PersistenceError{Err: err}
	}

	orderCtx.Order = order
	orderCtx.Commit()
	span.AddEvent("order persisted with pending status")

	return h.executeNext(orderCtx)
}
