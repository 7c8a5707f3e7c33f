// Package keylock 提供进程内按 key 互斥的锁
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker 为每个 key 维护一把可被 context 取消的锁，不再使用的 key 会被回收
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
