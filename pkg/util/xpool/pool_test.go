package xpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidArgs(t *testing.T) {
	_, err := New[int](1, 1, nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = New(0, 1, func(int) {})
	assert.ErrorIs(t, err, ErrInvalidWorkers)

	_, err = New(1, 0, func(int) {})
	assert.ErrorIs(t, err, ErrInvalidQueueSize)
}

func TestPool_Basic(t *testing.T) {
	var sum atomic.Int64
	p, err := New(4, 16, func(n int) { sum.Add(int64(n)) })
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Close())
	assert.Equal(t, int64(55), sum.Load())
	assert.Equal(t, uint64(10), p.Stats().Submitted)
}

func TestPool_QueueFull_Rejects(t *testing.T) {
	// Given: 1 个 worker 被阻塞，队列容量 1
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	p, err := New(1, 1, func(int) {
		once.Do(func() { close(started) })
		<-release
	})
	require.NoError(t, err)

	require.NoError(t, p.Submit(1))
	<-started
	require.NoError(t, p.Submit(2))

	// When: 队列已满
	err = p.Submit(3)

	// Then: 立即拒绝，不阻塞
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(1), p.Stats().Rejected)

	close(release)
	require.NoError(t, p.Close())
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p, err := New(1, 1, func(int) {})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Submit(1), ErrPoolStopped)
	// 重复关闭安全
	assert.NoError(t, p.Close())
}

func TestPool_Shutdown_DrainsQueue(t *testing.T) {
	var done atomic.Int32
	p, err := New(1, 10, func(int) {
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(5), done.Load())
}

func TestPool_Shutdown_Timeout(t *testing.T) {
	release := make(chan struct{})
	p, err := New(1, 1, func(int) { <-release })
	require.NoError(t, err)
	require.NoError(t, p.Submit(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	<-p.Done()
}

func TestPool_PanicRecovery(t *testing.T) {
	var ok atomic.Int32
	p, err := New(1, 4, func(n int) {
		if n == 0 {
			panic("boom")
		}
		ok.Add(1)
	}, WithName("test"))
	require.NoError(t, err)

	require.NoError(t, p.Submit(0))
	require.NoError(t, p.Submit(1))
	require.NoError(t, p.Close())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, uint64(1), p.Stats().Panics)
}

func TestPool_ConcurrentSubmitAndShutdown(t *testing.T) {
	p, err := New(2, 8, func(int) {})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				err := p.Submit(j)
				if err != nil {
					assert.True(t, errors.Is(err, ErrQueueFull) || errors.Is(err, ErrPoolStopped), err)
				}
			}
		}()
	}
	require.NoError(t, p.Close())
	wg.Wait()
}
