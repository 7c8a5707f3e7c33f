package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ledgerUnderTest 同时覆盖 Redis 和内存两种实现
type ledgerUnderTest interface {
	port.InventoryLedger
	Prime(ctx context.Context, products []*domain.Product) error
}

func newRedisLedger(t *testing.T) (*RedisInventoryLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisInventoryLedger(client), mr
}

func ledgers(t *testing.T) map[string]ledgerUnderTest {
	redisLedger, _ := newRedisLedger(t)
	return map[string]ledgerUnderTest{
		"redis":  redisLedger,
		"memory": NewMemoryInventoryLedger(),
	}
}

func stockOf(t *testing.T, l ledgerUnderTest, id string) int {
	t.Helper()
	switch v := l.(type) {
	case *RedisInventoryLedger:
		n, err := v.Stock(context.Background(), id)
		require.NoError(t, err)
		return n
	case *MemoryInventoryLedger:
		n, ok := v.Stock(id)
		require.True(t, ok)
		return n
	}
	t.Fatalf("unknown ledger %T", l)
	return 0
}

func TestLedgerReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, l.Prime(ctx, []*domain.Product{{ID: "p1", Stock: 3}}))

			require.NoError(t, l.Reserve(ctx, "p1", 2))
			assert.Equal(t, 1, stockOf(t, l, "p1"))

			err := l.Reserve(ctx, "p1", 5)
			var stockErr *domain.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			assert.Equal(t, "p1", stockErr.ProductID)
			assert.Equal(t, 1, stockOf(t, l, "p1"), "failed reserve must not change stock")

			require.NoError(t, l.Release(ctx, "p1", 2))
			assert.Equal(t, 3, stockOf(t, l, "p1"))

			assert.ErrorIs(t, l.Reserve(ctx, "ghost", 1), domain.ErrProductNotFound)
			assert.ErrorIs(t, l.Release(ctx, "ghost", 1), domain.ErrProductNotFound)
		})
	}
}

func TestLedgerPrimeKeepsExistingStock(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, l.Prime(ctx, []*domain.Product{{ID: "p1", Stock: 5}}))
			require.NoError(t, l.Reserve(ctx, "p1", 4))
			require.NoError(t, l.Prime(ctx, []*domain.Product{{ID: "p1", Stock: 5}}))
			assert.Equal(t, 1, stockOf(t, l, "p1"))
		})
	}
}

func TestLedgerConcurrentReserveNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			const stock = 20
			require.NoError(t, l.Prime(ctx, []*domain.Product{{ID: "hot", Stock: stock}}))

			var wg sync.WaitGroup
			var reserved atomic.Int32
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := l.Reserve(ctx, "hot", 1); err == nil {
						reserved.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.EqualValues(t, stock, reserved.Load())
			assert.Equal(t, 0, stockOf(t, l, "hot"))
		})
	}
}

func TestMemoryLedgerSet(t *testing.T) {
	l := NewMemoryInventoryLedger()
	l.Set("p1", 2)
	l.Set("p1", 7)
	n, ok := l.Stock("p1")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = l.Stock("p2")
	assert.False(t, ok)
}

func TestRedisLedgerKeyLayout(t *testing.T) {
	l, mr := newRedisLedger(t)
	require.NoError(t, l.Prime(context.Background(), []*domain.Product{{ID: "p1", Stock: 4}}))
	require.NoError(t, l.Reserve(context.Background(), "p1", 1))

	v, err := mr.Get("inventory:stock:{p1}")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}
