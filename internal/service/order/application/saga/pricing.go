package saga

import (
	"storefront/internal/service/order/domain"

	"go.opentelemetry.io/otel/attribute"
)

// PricingHandler 用锁定的单价计算订单金额
type PricingHandler struct {
	NextHandler
}

func (h *PricingHandler) Handle(orderCtx *OrderContext) error {
	_, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Pricing")
	defer span.End()

	priced := make([]domain.PricedLine, len(orderCtx.Lines))
	for i, line := range orderCtx.Lines {
		priced[i] = domain.PricedLine{UnitPrice: line.UnitPrice, Quantity: line.Quantity}
	}
	orderCtx.Totals = domain.CalculateTotals(priced)

	span.SetAttributes(
		attribute.String("order.items_price", orderCtx.Totals.ItemsPrice.StringFixed(2)),
		attribute.String("order.total_price", orderCtx.Totals.TotalPrice.StringFixed(2)),
	)

	return h.executeNext(orderCtx)
}
