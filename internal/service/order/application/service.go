// internal/service/order/application/service.go
package application

import (
	"context"
	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/application/saga"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Dependencies 是应用服务依赖的端口。Notifier 为 nil 时跳过同步通知。
type Dependencies struct {
	Repo      domain.OrderRepository
	Catalog   port.ProductCatalog
	Ledger    port.InventoryLedger
	Notifier  port.Notifier
	Publisher port.EventPublisher
	Locker    port.Locker
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
}

// Options 控制下单流程的行为
type Options struct {
	ProcessingTimeout   time.Duration
	NotificationTimeout time.Duration
	LookupConcurrency   int
	// Outbox 为 true 时通知摘要与订单同事务写入发件箱，由后台任务投递
	Outbox bool
}

// OrderApplicationService 只关注业务流程编排。
type OrderApplicationService struct {
	deps  Dependencies
	opts  Options
	chain saga.Handler
	check *commandValidator

	newID func() string
	now   func() time.Time
}

func NewOrderApplicationService(deps Dependencies, opts Options) *OrderApplicationService {
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 30 * time.Second
	}
	if opts.NotificationTimeout <= 0 {
		opts.NotificationTimeout = 5 * time.Second
	}
	s := &OrderApplicationService{
		deps:  deps,
		opts:  opts,
		check: newCommandValidator(),
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
	s.chain = s.buildChain()
	return s
}

// PlaceOrder 校验购物车、预占库存、计价、落库，最后尽力通知外部系统。
// 第 1 到 4 步任一失败都会把已预占的库存按逆序释放。
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, cmd *PlaceOrderCommand) (*domain.Order, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "app.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", cmd.Principal.UserID),
	))
	defer span.End()

	cart, address, method, err := s.check.Validate(cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid order request")
		s.deps.Metrics.OrderPlaced("invalid")
		return nil, err
	}

	// 一旦开始预占库存，客户端断开也不能打断流程，只受处理超时约束
	processingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ProcessingTimeout)
	defer cancel()

	orderCtx := &saga.OrderContext{
		Ctx:             processingCtx,
		Tracer:          s.deps.Tracer,
		UserID:          cmd.Principal.UserID,
		UserEmail:       cmd.Principal.Email,
		Cart:            cart,
		ShippingAddress: address,
		PaymentMethod:   method,
		Catalog:         s.deps.Catalog,
		Ledger:          s.deps.Ledger,
		Notifier:        s.deps.Notifier,
		Publisher:       s.deps.Publisher,
		Metrics:         s.deps.Metrics,
		NewID:           s.newID,
		Now:             s.now,
	}
	if s.opts.Outbox {
		orderCtx.Notifier = nil
	}

	if err := s.chain.Handle(orderCtx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("user", cmd.Principal.UserID).Msg("order placement failed, saga compensation triggered")
		span.RecordError(err)
		span.SetStatus(codes.Error, "order placement failed")

		// 补偿使用独立的超时，处理超时本身也可能是失败原因
		compCtx, compCancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ProcessingTimeout)
		orderCtx.TriggerCompensation(compCtx)
		compCancel()

		s.deps.Metrics.OrderPlaced(resultLabel(err))
		return nil, err
	}

	order := orderCtx.Order
	span.SetAttributes(attribute.String("order.id", order.ID))
	logger.Ctx(ctx).Info().Str("order", order.ID).Str("total", order.TotalPrice.StringFixed(2)).Msg("order placed")
	s.deps.Metrics.OrderPlaced("ok")
	return order, nil
}

// ListMyOrders 返回调用方自己的订单，按创建时间倒序
func (s *OrderApplicationService) ListMyOrders(ctx context.Context, principal auth.Principal) ([]*domain.Order, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "app.ListMyOrders")
	defer span.End()

	orders, err := s.deps.Repo.ListByUser(ctx, principal.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// GetOrder 只允许订单所有者或管理员查看
func (s *OrderApplicationService) GetOrder(ctx context.Context, principal auth.Principal, id string) (*domain.Order, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "app.GetOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !order.OwnedBy(principal.UserID) && !principal.IsAdmin() {
		return nil, domain.ErrAccessDenied
	}
	return order, nil
}

// ListAllOrders 是管理端的分页查询
func (s *OrderApplicationService) ListAllOrders(ctx context.Context, q AdminListQuery) (*OrderPage, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "app.ListAllOrders")
	defer span.End()

	filter := domain.ListFilter{Page: q.Page, Limit: q.Limit}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}
	if q.Status != "" {
		status, err := domain.ParseStatus(q.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	orders, total, err := s.deps.Repo.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list orders")
	}

	return &OrderPage{
		Orders:      orders,
		TotalPages:  domain.TotalPages(total, filter.Limit),
		CurrentPage: filter.Page,
		Total:       total,
	}, nil
}

// UpdateOrderStatus 由管理员调用，同一订单的状态更新串行执行
func (s *OrderApplicationService) UpdateOrderStatus(ctx context.Context, id, rawStatus string) (*domain.Order, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "app.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", rawStatus),
	))
	defer span.End()

	status, err := domain.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	unlock, err := s.deps.Locker.Lock(ctx, "order-"+id)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "lock order %s", id)
	}
	defer unlock()

	order, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := order.UpdateStatus(status, s.now()); err != nil {
		return nil, err
	}
	if err := s.deps.Repo.UpdateStatus(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update order status")
		return nil, errors.Wrapf(err, "update status of order %s", id)
	}

	logger.Ctx(ctx).Info().Str("order", id).Str("status", string(status)).Msg("order status updated")
	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(ctx, order.UserID, domain.EventOrderStatusChanged, domain.OrderStatusChanged{
			OrderID:   order.ID,
			Status:    order.Status,
			UpdatedAt: order.UpdatedAt,
		})
	}
	return order, nil
}

func (s *OrderApplicationService) buildChain() saga.Handler {
	chain := saga.NewResolveProductsHandler(s.opts.LookupConcurrency)
	chain.
		SetNext(new(saga.InventoryHandler)).
		SetNext(new(saga.PricingHandler)).
		SetNext(saga.NewCreateOrderHandler(s.deps.Repo, s.opts.Outbox)).
		SetNext(saga.NewNotificationHandler(s.opts.NotificationTimeout))
	return chain
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}
