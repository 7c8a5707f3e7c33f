package saga

import (
	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// ResolveProductsHandler 并发查询购物车中的商品，锁定下单时的标题和单价。
// 只读，不注册补偿。
type ResolveProductsHandler struct {
	NextHandler
	concurrency int
}

func NewResolveProductsHandler(concurrency int) *ResolveProductsHandler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ResolveProductsHandler{concurrency: concurrency}
}

func (h *ResolveProductsHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ResolveProducts")
	defer span.End()

	span.SetAttributes(attribute.Int("cart.lines", len(orderCtx.Cart)))

	lines := make([]domain.OrderLine, len(orderCtx.Cart))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for i, item := range orderCtx.Cart {
		g.Go(func() error {
			product, err := orderCtx.Catalog.GetProduct(gctx, item.ProductID)
			if err != nil {
				return err
			}
			// 按提交顺序写回，保证后续预占库存的顺序与购物车一致
			lines[i] = domain.OrderLine{
				ProductID: product.ID,
				Title:     product.Title,
				Image:     product.Image,
				Quantity:  item.Quantity,
				UnitPrice: product.Price,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "product lookup failed")
		if errors.Is(err, domain.ErrProductNotFound) {
			logger.Ctx(ctx).Warn().Err(err).Str("user", orderCtx.UserID).Msg("cart references unknown product")
			return err
		}
		return errors.Wrap(err, "resolve products")
	}

	orderCtx.Lines = lines
	span.AddEvent("all products resolved")

	return h.executeNext(orderCtx)
}
