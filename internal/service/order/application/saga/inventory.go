package saga

import (
	"context"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// InventoryHandler 负责库存预占步骤。
// 按购物车顺序逐行预占，每成功一行就注册一个释放库存的补偿。
type InventoryHandler struct {
	NextHandler
}

func (h *InventoryHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.InventoryReserve")
	defer span.End()

	for _, line := range orderCtx.Lines {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return errors.Wrap(err, "order processing timed out")
		}
		if err := orderCtx.Ledger.Reserve(WriteContext(ctx), line.ProductID, line.Quantity); err != nil {
			var stockErr *domain.InsufficientStockError
			if errors.As(err, &stockErr) {
				stockErr.Title = line.Title
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "inventory reservation failed")
			logger.Ctx(ctx).Warn().Err(err).
				Str("product", line.ProductID).
				Int("quantity", line.Quantity).
				Msg("inventory reservation failed")
			return err
		}

		orderCtx.AddCompensation(func(compCtx context.Context) {
			compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseStock")
			defer compSpan.End()

			compSpan.SetAttributes(
				attribute.String("product.id", line.ProductID),
				attribute.Int("product.quantity", line.Quantity),
			)

			// 补偿失败意味着库存泄漏，需要人工介入
			if err := orderCtx.Ledger.Release(WriteContext(compCtx), line.ProductID, line.Quantity); err != nil {
				compSpan.RecordError(err)
				logger.Ctx(compCtx).Error().Err(err).
					Str("product", line.ProductID).
					Int("quantity", line.Quantity).
					Msg("CRITICAL: failed to release reserved stock")
			}
		})
	}

	span.SetAttributes(attribute.Int("reserved.lines", len(orderCtx.Lines)))
	span.AddEvent("all items reserved successfully")

	return h.executeNext(orderCtx)
}
