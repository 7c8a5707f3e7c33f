package notification

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"storefront/internal/service/order/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// fakeReader 依次返回预置消息，耗尽后阻塞到 ctx 结束
type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{pending: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.pending) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []domain.OrderPlaced
}

func (n *flakyNotifier) NotifyOrderPlaced(_ context.Context, event domain.OrderPlaced) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.calls <= n.failures {
		return errors.New("webhook down")
	}
	n.got = append(n.got, event)
	return nil
}

func message(t *testing.T, offset int64, id string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(domain.OrderPlaced{OrderID: id, UserID: "u1", TotalPrice: "65.00", Status: domain.StatusPending})
	require.NoError(t, err)
	return kafka.Message{Topic: "order-placed", Offset: offset, Key: []byte("u1"), Value: value}
}

func runUntilDrained(t *testing.T, reader *fakeReader, notifier *flakyNotifier, opts ConsumerOptions) {
	t.Helper()
	c := NewConsumer(reader, notifier, noop.NewTracerProvider().Tracer("test"), nil, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	require.NoError(t, <-done)
}

var fastRetry = ConsumerOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, SendTimeout: time.Second}

func TestConsumerDeliversAndCommits(t *testing.T) {
	reader := newFakeReader(message(t, 1, "o1"), message(t, 2, "o2"))
	notifier := &flakyNotifier{}
	runUntilDrained(t, reader, notifier, fastRetry)

	assert.Equal(t, []int64{1, 2}, reader.Committed())
	require.Len(t, notifier.got, 2)
	assert.Equal(t, "o1", notifier.got[0].OrderID)
	assert.Equal(t, "65.00", notifier.got[0].TotalPrice.String())
}

func TestConsumerRetriesBeforeGivingUp(t *testing.T) {
	reader := newFakeReader(message(t, 7, "o1"))
	notifier := &flakyNotifier{failures: 2}
	runUntilDrained(t, reader, notifier, fastRetry)

	assert.Equal(t, 3, notifier.calls)
	assert.Len(t, notifier.got, 1)
	assert.Equal(t, []int64{7}, reader.Committed())
}

func TestConsumerCommitsAfterExhaustingRetries(t *testing.T) {
	reader := newFakeReader(message(t, 3, "o1"), message(t, 4, "o2"))
	notifier := &flakyNotifier{failures: 3}
	runUntilDrained(t, reader, notifier, fastRetry)

	assert.Equal(t, []int64{3, 4}, reader.Committed(), "a poisoned message must not block the partition")
	require.Len(t, notifier.got, 1)
	assert.Equal(t, "o2", notifier.got[0].OrderID)
}

func TestConsumerSkipsMalformedMessages(t *testing.T) {
	reader := newFakeReader(kafka.Message{Offset: 1, Value: []byte("{")}, message(t, 2, "o2"))
	notifier := &flakyNotifier{}
	runUntilDrained(t, reader, notifier, fastRetry)

	assert.Equal(t, []int64{1, 2}, reader.Committed())
	assert.Equal(t, 1, notifier.calls)
}
