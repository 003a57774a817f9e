package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(3, zerolog.Nop())
	pool.Start()

	var running, peak, done int32
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
		}))
	}
	pool.Stop()

	assert.Equal(t, int32(20), done)
	assert.LessOrEqual(t, peak, int32(3))
	assert.Zero(t, pool.ActiveWorkers())
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	pool := NewWorkerPool(1, zerolog.Nop())
	pool.Start()

	var ran atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), func() { panic("boom") }))
	require.NoError(t, pool.Submit(context.Background(), func() { ran.Store(true) }))
	pool.Stop()

	assert.True(t, ran.Load())
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	pool := NewWorkerPool(1, zerolog.Nop())
	pool.Start()
	defer pool.Stop()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	require.NoError(t, pool.Submit(context.Background(), func() {
		started.Done()
		<-release
	}))
	started.Wait()
	require.NoError(t, pool.Submit(context.Background(), func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}
