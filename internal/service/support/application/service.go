// Package application 把客服对话转发到外部自动化平台
package application

import (
	"context"
	"storefront/internal/pkg/httpclient"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotConfigured = errors.New("support webhook is not configured")
	ErrUnavailable   = errors.New("support service unavailable")
)

// ChatRequest 原样转发给上游
type ChatRequest struct {
	ChatInput any `json:"chatInput"`
}

// ChatService 是无状态的转发，不做重试
type ChatService struct {
	client  *httpclient.Client
	url     string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	tracer  trace.Tracer
}

func NewChatService(client *httpclient.Client, tracer trace.Tracer, url string, timeout time.Duration) *ChatService {
	settings := gobreaker.Settings{
		Name:        "SupportChat",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &ChatService{
		client:  client,
		url:     url,
		timeout: timeout,
		cb:      gobreaker.NewCircuitBreaker(settings),
		tracer:  tracer,
	}
}

// Forward 返回上游的原始响应。上游返回的任何状态码都不算错误，只有网络错误才算。
func (s *ChatService) Forward(ctx context.Context, req ChatRequest) (*httpclient.Response, error) {
	if s.url == "" {
		return nil, ErrNotConfigured
	}
	ctx, span := s.tracer.Start(ctx, "support.Forward")
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.PostJSON(ctx, s.url, req)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(ErrUnavailable, "%v", err)
	}
	return out.(*httpclient.Response), nil
}
