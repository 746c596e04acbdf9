package locking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storytrain/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	locker := NewLocalLocker(0)
	sessionID := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), sessionID)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInside)
	assert.Equal(t, 0, locker.size(), "entries must be cleaned up")
}

func TestLocalLocker_WaitBound(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	sessionID := uuid.New()

	unlock, err := locker.Lock(context.Background(), sessionID)
	require.NoError(t, err)

	_, err = locker.Lock(context.Background(), sessionID)
	assert.ErrorIs(t, err, models.ErrSessionBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // повторный вызов безопасен

	again, err := locker.Lock(context.Background(), sessionID)
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, locker.size())
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker(0)
	sessionID := uuid.New()

	unlock, err := locker.Lock(context.Background(), sessionID)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Lock(ctx, sessionID)
	assert.ErrorIs(t, err, models.ErrSessionBusy)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalLocker_IndependentSessions(t *testing.T) {
	locker := NewLocalLocker(50 * time.Millisecond)

	unlockA, err := locker.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(context.Background(), uuid.New())
	require.NoError(t, err, "a different session must not wait")
	unlockB()
}
