package adapter

import (
	"context"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/order/domain"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// WebhookNotifier 把订单摘要 POST 到外部自动化平台的 webhook
type WebhookNotifier struct {
	client *httpclient.Client
	url    string
	cb     *gobreaker.CircuitBreaker
}

func NewWebhookNotifier(client *httpclient.Client, url string) *WebhookNotifier {
	settings := gobreaker.Settings{
		Name:        "OrderWebhook",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &WebhookNotifier{
		client: client,
		url:    url,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

func (n *WebhookNotifier) NotifyOrderPlaced(ctx context.Context, event domain.OrderPlaced) error {
	if n.url == "" {
		return errors.Wrap(domain.ErrNotificationFailed, "webhook url is not configured")
	}
	_, err := n.cb.Execute(func() (interface{}, error) {
		return nil, n.client.Post(ctx, n.url, event)
	})
	if err != nil {
		return errors.Wrapf(domain.ErrNotificationFailed, "order %s: %v", event.OrderID, err)
	}
	return nil
}
