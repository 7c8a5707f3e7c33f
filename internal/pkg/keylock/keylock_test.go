package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "order-1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks, "idle keys are removed")
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	l := New()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLockHonoursContext(t *testing.T) {
	l := New()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // 重复调用无副作用
	unlock, err = l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
}
