package adapter

import (
	"context"
	"fmt"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// reserveScript 在一次原子调用中完成检查和扣减
// KEYS[1]: 库存 Key, 例如 inventory:stock:{p1}
// ARGV[1]: 预占数量
// 返回 -1 表示商品未在账本中, 0 表示库存不足, 1 表示成功
var reserveScript = redis.NewScript(`
local stock = redis.call('get', KEYS[1])
if not stock then
    return -1
end
stock = tonumber(stock)
local qty = tonumber(ARGV[1])
if stock < qty then
    return 0
end
redis.call('decrby', KEYS[1], qty)
return 1
`)

// releaseScript 只给已经存在的 Key 加回库存，不会凭空创建商品
var releaseScript = redis.NewScript(`
if redis.call('exists', KEYS[1]) == 0 then
    return -1
end
redis.call('incrby', KEYS[1], tonumber(ARGV[1]))
return 1
`)

// StockMirror 接收账本的库存变化，用于同步回商品表
type StockMirror interface {
	Adjust(ctx context.Context, productID string, delta int) error
}

// RedisInventoryLedger 是 port.InventoryLedger 的 Redis 实现。
// 单个 Key 上的 Lua 脚本天然串行，不同商品之间互不影响。
// 配置了 catalog 时，账本中缺失的商品会按商品表的库存懒加载；
// 配置了 mirror 时，每次成功的扣减和归还都会写回商品表。
type RedisInventoryLedger struct {
	client  redis.UniversalClient
	catalog port.ProductCatalog
	mirror  StockMirror
}

type RedisLedgerOption func(*RedisInventoryLedger)

// WithCatalog 让账本在 Key 不存在时从商品目录加载库存
func WithCatalog(catalog port.ProductCatalog) RedisLedgerOption {
	return func(l *RedisInventoryLedger) { l.catalog = catalog }
}

// WithMirror 把库存变化同步到商品表
func WithMirror(mirror StockMirror) RedisLedgerOption {
	return func(l *RedisInventoryLedger) { l.mirror = mirror }
}

func NewRedisInventoryLedger(client redis.UniversalClient, opts ...RedisLedgerOption) *RedisInventoryLedger {
	l := &RedisInventoryLedger{client: client}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func stockKey(productID string) string {
	return fmt.Sprintf("inventory:stock:{%s}", productID)
}

func (l *RedisInventoryLedger) Reserve(ctx context.Context, productID string, quantity int) error {
	code, err := reserveScript.Run(ctx, l.client, []string{stockKey(productID)}, quantity).Int64()
	if err != nil {
		return errors.Wrapf(err, "reserve %d of %s", quantity, productID)
	}
	if code == -1 && l.catalog != nil {
		if err := l.load(ctx, productID); err != nil {
			return err
		}
		code, err = reserveScript.Run(ctx, l.client, []string{stockKey(productID)}, quantity).Int64()
		if err != nil {
			return errors.Wrapf(err, "reserve %d of %s", quantity, productID)
		}
	}
	switch code {
	case 1:
		l.sync(ctx, productID, -quantity)
		return nil
	case 0:
		return &domain.InsufficientStockError{ProductID: productID, Requested: quantity}
	case -1:
		return &domain.ProductNotFoundError{ProductID: productID}
	default:
		return errors.Errorf("unknown result code from reserve script: %d", code)
	}
}

func (l *RedisInventoryLedger) Release(ctx context.Context, productID string, quantity int) error {
	code, err := releaseScript.Run(ctx, l.client, []string{stockKey(productID)}, quantity).Int64()
	if err != nil {
		return errors.Wrapf(err, "release %d of %s", quantity, productID)
	}
	if code != 1 {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	l.sync(ctx, productID, quantity)
	return nil
}

// load 用商品表中的库存初始化缺失的 Key，并发加载时只有第一个生效
func (l *RedisInventoryLedger) load(ctx context.Context, productID string) error {
	product, err := l.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := l.client.SetNX(ctx, stockKey(productID), product.Stock, 0).Err(); err != nil {
		return errors.Wrapf(err, "load stock of %s", productID)
	}
	return nil
}

// sync 失败只记录日志，Redis 中的库存仍然是准确的
func (l *RedisInventoryLedger) sync(ctx context.Context, productID string, delta int) {
	if l.mirror == nil {
		return
	}
	if err := l.mirror.Adjust(ctx, productID, delta); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("product", productID).Int("delta", delta).Msg("failed to mirror stock change")
	}
}

// Prime 用数据库中的库存初始化账本，已存在的 Key 保持不变
func (l *RedisInventoryLedger) Prime(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	pipe := l.client.Pipeline()
	for _, p := range products {
		pipe.SetNX(ctx, stockKey(p.ID), p.Stock, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "prime inventory ledger")
	}
	return nil
}

// Stock 返回当前账本中的库存，主要用于测试和管理
func (l *RedisInventoryLedger) Stock(ctx context.Context, productID string) (int, error) {
	n, err := l.client.Get(ctx, stockKey(productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, &domain.ProductNotFoundError{ProductID: productID}
	}
	return n, errors.Wrapf(err, "read stock of %s", productID)
}
