package saga

import (
	"context"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// OrderContext 在 Saga 流程中传递一次下单的上下文数据。
// 所有外部依赖都是抽象端口。
// Ctx 带有处理超时，只在步骤之间检查；库存扣减和订单写入使用 WriteContext，发出后一定等到结果。
type OrderContext struct {
	Ctx    context.Context
	Tracer trace.Tracer

	UserID          string
	UserEmail       string
	Cart            []domain.CartLine
	ShippingAddress domain.ShippingAddress
	PaymentMethod   domain.PaymentMethod

	// 各步骤的产出
	Lines  []domain.OrderLine
	Totals domain.Totals
	Order  *domain.Order

	Catalog   port.ProductCatalog
	Ledger    port.InventoryLedger
	Notifier  port.Notifier
	Publisher port.EventPublisher
	Metrics   *metrics.Metrics

	NewID func() string
	Now   func() time.Time

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 把补偿操作压栈，后注册的先执行
func (c *OrderContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 按注册的逆序执行所有补偿操作，执行后清空
func (c *OrderContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().Int("count", len(c.compensations)).Msg("executing saga compensations")
	for _, comp := range c.compensations {
		comp(ctx)
		c.Metrics.Compensated()
	}
	c.compensations = nil
}

// Commit 在订单持久化之后调用，之后的步骤失败也不再回滚
func (c *OrderContext) Commit() {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = nil
}

// PendingCompensations 返回尚未执行的补偿数量
func (c *OrderContext) PendingCompensations() int {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	return len(c.compensations)
}

// WriteContext 保留 Ctx 中的 trace 和 logger，但不带截止时间
func WriteContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next == nil {
		return nil
	}
	// 订单落库之后超时也不再中断
	if orderCtx.Order == nil {
		if err := orderCtx.Ctx.Err(); err != nil {
			return errors.Wrap(err, "order processing timed out")
		}
	}
	return h.next.Handle(orderCtx)
}
