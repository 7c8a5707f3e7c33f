package adapter

import (
	"context"
	"storefront/internal/service/order/domain"
	"sync"
)

type stockEntry struct {
	mu    sync.Mutex
	stock int
}

// MemoryInventoryLedger 是进程内账本，每个商品一把锁
type MemoryInventoryLedger struct {
	mu      sync.RWMutex
	entries map[string]*stockEntry
}

func NewMemoryInventoryLedger() *MemoryInventoryLedger {
	return &MemoryInventoryLedger{entries: make(map[string]*stockEntry)}
}

// Set 设置某个商品的库存
func (l *MemoryInventoryLedger) Set(productID string, stock int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[productID]; ok {
		e.mu.Lock()
		e.stock = stock
		e.mu.Unlock()
		return
	}
	l.entries[productID] = &stockEntry{stock: stock}
}

// Prime 只初始化尚未存在的商品
func (l *MemoryInventoryLedger) Prime(_ context.Context, products []*domain.Product) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range products {
		if _, ok := l.entries[p.ID]; !ok {
			l.entries[p.ID] = &stockEntry{stock: p.Stock}
		}
	}
	return nil
}

func (l *MemoryInventoryLedger) Stock(productID string) (int, bool) {
	e := l.entry(productID)
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stock, true
}

func (l *MemoryInventoryLedger) Reserve(_ context.Context, productID string, quantity int) error {
	e := l.entry(productID)
	if e == nil {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stock < quantity {
		return &domain.InsufficientStockError{ProductID: productID, Requested: quantity}
	}
	e.stock -= quantity
	return nil
}

func (l *MemoryInventoryLedger) Release(_ context.Context, productID string, quantity int) error {
	e := l.entry(productID)
	if e == nil {
		return &domain.ProductNotFoundError{ProductID: productID}
	}
	e.mu.Lock()
	e.stock += quantity
	e.mu.Unlock()
	return nil
}

func (l *MemoryInventoryLedger) entry(productID string) *stockEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[productID]
}
