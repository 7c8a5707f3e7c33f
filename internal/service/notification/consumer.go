// Package notification 消费 order-placed 主题并把订单摘要转发给外部 webhook
package notification

import (
	"context"
	"encoding/json"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MessageReader 是 kafka.Reader 中被用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type ConsumerOptions struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SendTimeout    time.Duration
}

// Consumer 只在投递成功或确定放弃之后提交 offset
type Consumer struct {
	reader   MessageReader
	notifier port.Notifier
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	opts     ConsumerOptions
}

func NewConsumer(reader MessageReader, notifier port.Notifier, tracer trace.Tracer, m *metrics.Metrics, opts ConsumerOptions) *Consumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	return &Consumer{reader: reader, notifier: notifier, tracer: tracer, metrics: m, opts: opts}
}

// Run 阻塞消费直到 ctx 被取消
func (c *Consumer) Run(ctx context.Context) error {
	log.Info().Msg("order notification consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("order notification consumer stopped")
				return nil
			}
			log.Error().Err(err).Msg("could not fetch message, retrying")
			if !sleep(ctx, c.opts.InitialBackoff) {
				return nil
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// 未提交，重启后会重新投递
				return nil
			}
			log.Error().Err(err).Int64("offset", msg.Offset).Str("key", string(msg.Key)).Msg("notification dropped after retries")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// process 带退避地重试，无法解析的消息直接放弃
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "notification-service.ProcessOrderPlaced",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		),
	)
	defer span.End()

	var event domain.OrderPlaced
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed message")
		c.metrics.Notification("malformed")
		return errors.Wrap(err, "unmarshal order placed event")
	}
	span.SetAttributes(attribute.String("order.id", event.OrderID))

	backoff := c.opts.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(msgCtx, c.opts.SendTimeout)
		lastErr = c.notifier.NotifyOrderPlaced(sendCtx, event)
		cancel()
		if lastErr == nil {
			c.metrics.Notification("sent")
			span.AddEvent("notification delivered")
			return nil
		}

		log.Warn().Err(lastErr).Str("order", event.OrderID).Int("attempt", attempt).Msg("notification delivery failed")
		span.RecordError(lastErr)
		if attempt == c.opts.MaxAttempts || !sleep(msgCtx, backoff) {
			break
		}
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}

	c.metrics.Notification("failed")
	span.SetStatus(codes.Error, "notification failed")
	return errors.Wrapf(lastErr, "deliver order %s", event.OrderID)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
