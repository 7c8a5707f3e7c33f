package infrastructure

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"storefront/internal/service/order/domain"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openTestDB 使用进程内的 SQLite，表结构与线上相同
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestOrder(t *testing.T, id, userID string, createdAt time.Time) *domain.Order {
	t.Helper()
	lines := []domain.OrderLine{
		{ProductID: "p2", Title: "Lamp", Quantity: 1, UnitPrice: decimal.RequireFromString("60.00")},
		{ProductID: "p1", Title: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("15.50")},
	}
	priced := make([]domain.PricedLine, len(lines))
	for i, l := range lines {
		priced[i] = domain.PricedLine{UnitPrice: l.UnitPrice, Quantity: l.Quantity}
	}
	o, err := domain.NewOrder(domain.NewOrderParams{
		ID:     id,
		UserID: userID,
		Lines:  lines,
		ShippingAddress: domain.ShippingAddress{
			Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US",
		},
		PaymentMethod: domain.PaymentCreditCard,
		Totals:        domain.CalculateTotals(priced),
		Now:           createdAt,
	})
	require.NoError(t, err)
	return o
}

func TestGormOrderRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewGormOrderRepository(db)

	order := newTestOrder(t, "o1", "u1", epoch)
	event := domain.OutboxEvent{ID: "e1", Type: domain.EventOrderPlaced, Key: "u1", Payload: []byte(`{"orderId":"o1"}`), CreatedAt: epoch}
	require.NoError(t, repo.Create(ctx, order, event))

	got, err := repo.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "p2", got.Lines[0].ProductID, "lines keep submitted order")
	assert.Equal(t, "p1", got.Lines[1].ProductID)
	assert.Equal(t, "15.50", got.Lines[1].UnitPrice.StringFixed(2))
	assert.Equal(t, "91.00", got.ItemsPrice.StringFixed(2))
	assert.Equal(t, "110.10", got.TotalPrice.StringFixed(2))
	assert.Equal(t, "Springfield", got.ShippingAddress.City)

	pending, err := NewGormOutboxStore(db).FetchPending(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e1", pending[0].ID)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestGormOrderRepositoryCreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewGormOrderRepository(db)

	require.NoError(t, repo.Create(ctx, newTestOrder(t, "o1", "u1", epoch)))

	// 发件箱主键冲突时订单本身也不能留下
	dup := domain.OutboxEvent{ID: "e1", Type: domain.EventOrderPlaced, Payload: []byte("{}"), CreatedAt: epoch}
	require.NoError(t, repo.Create(ctx, newTestOrder(t, "o2", "u1", epoch), dup))
	err := repo.Create(ctx, newTestOrder(t, "o3", "u1", epoch), dup)
	require.Error(t, err)

	_, err = repo.FindByID(ctx, "o3")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	var items int64
	require.NoError(t, db.Model(&OrderItemModel{}).Where("order_id = ?", "o3").Count(&items).Error)
	assert.Zero(t, items)
}

func TestGormOrderRepositoryListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(openTestDB(t))

	require.NoError(t, repo.Create(ctx, newTestOrder(t, "old", "u1", epoch)))
	require.NoError(t, repo.Create(ctx, newTestOrder(t, "new", "u1", epoch.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newTestOrder(t, "other", "u2", epoch.Add(2*time.Hour))))

	orders, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "new", orders[0].ID)
	assert.Equal(t, "old", orders[1].ID)
	assert.Len(t, orders[0].Lines, 2)
}

func TestGormOrderRepositoryListPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(openTestDB(t))

	for i := 0; i < 7; i++ {
		o := newTestOrder(t, fmt.Sprintf("o%d", i), "u1", epoch.Add(time.Duration(i)*time.Minute))
		if i%2 == 0 {
			require.NoError(t, o.UpdateStatus(domain.StatusShipped, o.CreatedAt))
		}
		require.NoError(t, repo.Create(ctx, o))
	}

	orders, total, err := repo.List(ctx, domain.ListFilter{Page: 1, Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
	require.Len(t, orders, 3)
	assert.Equal(t, []string{"o6", "o5", "o4"}, ids(orders))
	assert.Equal(t, 3, domain.TotalPages(total, 3))

	orders, total, err = repo.List(ctx, domain.ListFilter{Page: 3, Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
	assert.Equal(t, []string{"o0"}, ids(orders))

	orders, total, err = repo.List(ctx, domain.ListFilter{Status: domain.StatusShipped, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total, "count honours the status filter")
	assert.Equal(t, []string{"o2", "o0"}, ids(orders))
	for _, o := range orders {
		assert.Len(t, o.Lines, 2)
	}
}

func TestGormOrderRepositoryUpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(openTestDB(t))
	order := newTestOrder(t, "o1", "u1", epoch)
	require.NoError(t, repo.Create(ctx, order))

	deliveredAt := epoch.Add(48 * time.Hour)
	require.NoError(t, order.UpdateStatus(domain.StatusDelivered, deliveredAt))
	require.NoError(t, repo.UpdateStatus(ctx, order))

	got, err := repo.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, got.Status)
	assert.True(t, got.IsDelivered)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, deliveredAt.Equal(*got.DeliveredAt))
	assert.Len(t, got.Lines, 2, "lines are untouched")

	ghost := newTestOrder(t, "ghost", "u1", epoch)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, ghost), domain.ErrOrderNotFound)
}

func TestGormOutboxStoreMarks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewGormOutboxStore(db)
	require.NoError(t, db.Create(&OutboxModel{ID: "e1", EventType: domain.EventOrderPlaced, Payload: []byte("{}"), CreatedAt: epoch}).Error)
	require.NoError(t, db.Create(&OutboxModel{ID: "e2", EventType: domain.EventOrderPlaced, Payload: []byte("{}"), CreatedAt: epoch.Add(time.Second)}).Error)

	require.NoError(t, store.MarkFailed(ctx, "e1", errors.New("timeout")))
	require.NoError(t, store.MarkDelivered(ctx, "e2", epoch))

	pending, err := store.FetchPending(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e1", pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "timeout", pending[0].LastError)

	pending, err = store.FetchPending(ctx, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, pending, "rows at the attempt limit are skipped")
}

func TestGormProductCatalog(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Create(&ProductModel{ID: "p1", Title: "Mug", Price: decimal.RequireFromString("15.50"), Stock: 4}).Error)

	catalog := NewGormProductCatalog(db)
	p, err := catalog.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Title)
	assert.Equal(t, "15.50", p.Price.StringFixed(2))
	assert.Equal(t, 4, p.Stock)

	_, err = catalog.GetProduct(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, "Product nope not found", err.Error())

	all, err := catalog.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func ids(orders []*domain.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
