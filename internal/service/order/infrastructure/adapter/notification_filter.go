package adapter

import (
	"context"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"storefront/internal/service/order/infrastructure/rule"
)

// FilteredNotifier 只转发满足规则的订单摘要
type FilteredNotifier struct {
	next port.Notifier
	rule *rule.CELRuleEngine
}

func NewFilteredNotifier(next port.Notifier, r *rule.CELRuleEngine) *FilteredNotifier {
	return &FilteredNotifier{next: next, rule: r}
}

func (n *FilteredNotifier) NotifyOrderPlaced(ctx context.Context, event domain.OrderPlaced) error {
	matched, err := n.rule.Evaluate(ctx, event)
	if err != nil {
		return err
	}
	if !matched {
		logger.Ctx(ctx).Debug().Str("order", event.OrderID).Str("rule", n.rule.String()).Msg("notification skipped by rule")
		return nil
	}
	return n.next.NotifyOrderPlaced(ctx, event)
}
