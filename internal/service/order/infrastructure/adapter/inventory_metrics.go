package adapter

import (
	"context"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"time"

	"github.com/pkg/errors"
)

// InstrumentedLedger 为任意账本实现记录耗时和结果
type InstrumentedLedger struct {
	next    port.InventoryLedger
	metrics *metrics.Metrics
}

func NewInstrumentedLedger(next port.InventoryLedger, m *metrics.Metrics) port.InventoryLedger {
	if m == nil {
		return next
	}
	return &InstrumentedLedger{next: next, metrics: m}
}

func (l *InstrumentedLedger) Reserve(ctx context.Context, productID string, quantity int) error {
	start := time.Now()
	err := l.next.Reserve(ctx, productID, quantity)
	l.metrics.ObserveInventory("reserve", ledgerResult(err), time.Since(start))
	return err
}

func (l *InstrumentedLedger) Release(ctx context.Context, productID string, quantity int) error {
	start := time.Now()
	err := l.next.Release(ctx, productID, quantity)
	l.metrics.ObserveInventory("release", ledgerResult(err), time.Since(start))
	return err
}

func ledgerResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, domain.ErrProductNotFound):
		return "not_found"
	default:
		return "error"
	}
}
