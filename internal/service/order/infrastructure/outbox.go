package infrastructure

import (
	"context"
	"encoding/json"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// GormOutboxStore 读写 order_outbox 表
type GormOutboxStore struct {
	db *gorm.DB
}

func NewGormOutboxStore(db *gorm.DB) *GormOutboxStore {
	return &GormOutboxStore{db: db}
}

// FetchPending 按写入顺序取出尚未投递且未超过重试上限的记录
func (s *GormOutboxStore) FetchPending(ctx context.Context, limit, maxAttempts int) ([]OutboxModel, error) {
	var rows []OutboxModel
	err := s.db.WithContext(ctx).
		Where("delivered_at IS NULL AND attempts < ?", maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, errors.Wrap(err, "fetch pending outbox rows")
}

func (s *GormOutboxStore) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&OutboxModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivered_at": at,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
		}).Error
	return errors.Wrapf(err, "mark outbox %s delivered", id)
}

func (s *GormOutboxStore) MarkFailed(ctx context.Context, id string, cause error) error {
	err := s.db.WithContext(ctx).Model(&OutboxModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
	return errors.Wrapf(err, "mark outbox %s failed", id)
}

// OutboxStore 是 Relay 依赖的存储
type OutboxStore interface {
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]OutboxModel, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

type RelayOptions struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	SendTimeout  time.Duration
}

// Relay 周期性地把发件箱中的订单摘要交给 Notifier，投递成功后才标记完成。
// 进程在投递和标记之间崩溃会导致重复投递，下游需要按 orderId 去重。
type Relay struct {
	store    OutboxStore
	notifier port.Notifier
	metrics  *metrics.Metrics
	opts     RelayOptions
}

func NewRelay(store OutboxStore, notifier port.Notifier, m *metrics.Metrics, opts RelayOptions) *Relay {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	return &Relay{store: store, notifier: notifier, metrics: m, opts: opts}
}

// Run 阻塞直到 ctx 被取消
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Dur("interval", r.opts.PollInterval).Msg("outbox relay started")
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				log.Error().Err(err).Msg("outbox relay poll failed")
			}
		}
	}
}

// Flush 处理一批待投递记录，返回成功投递的条数
func (r *Relay) Flush(ctx context.Context) (int, error) {
	rows, err := r.store.FetchPending(ctx, r.opts.BatchSize, r.opts.MaxAttempts)
	if err != nil {
		return 0, err
	}
	r.metrics.OutboxPending(len(rows))

	delivered := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		if err := r.deliver(ctx, row); err != nil {
			r.metrics.Notification("failed")
			log.Warn().Err(err).Str("outbox_id", row.ID).Int("attempts", row.Attempts+1).Msg("outbox delivery failed")
			if markErr := r.store.MarkFailed(ctx, row.ID, err); markErr != nil {
				log.Error().Err(markErr).Str("outbox_id", row.ID).Msg("failed to record outbox failure")
			}
			continue
		}
		r.metrics.Notification("sent")
		if err := r.store.MarkDelivered(ctx, row.ID, time.Now().UTC()); err != nil {
			log.Error().Err(err).Str("outbox_id", row.ID).Msg("delivered but failed to mark outbox row")
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, row OutboxModel) error {
	if row.EventType != domain.EventOrderPlaced {
		return errors.Errorf("unsupported outbox event type %q", row.EventType)
	}
	var event domain.OrderPlaced
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return errors.Wrap(err, "decode outbox payload")
	}
	sendCtx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
	defer cancel()
	return r.notifier.NotifyOrderPlaced(sendCtx, event)
}
