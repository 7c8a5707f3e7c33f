package adapter

import (
	"context"
	"encoding/json"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaNotifier 把订单摘要写入 Kafka，由 notification-service 转发到 webhook
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(writer *kafka.Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

// NotifyOrderPlaced 以 userId 作为 key，同一用户的消息保持有序
func (a *KafkaNotifier) NotifyOrderPlaced(ctx context.Context, event domain.OrderPlaced) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal order placed event")
	}
	if err := mq.ProduceMessage(ctx, a.writer, []byte(event.UserID), eventBytes); err != nil {
		return errors.Wrapf(domain.ErrNotificationFailed, "produce order %s: %v", event.OrderID, err)
	}
	return nil
}

func (a *KafkaNotifier) Close() error {
	return a.writer.Close()
}
