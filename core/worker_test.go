package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWorkerPool_StartStop(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	wp := NewWorkerPool(2, 10, logger)

	require.NoError(t, wp.Start())

	stats := wp.GetStats()
	assert.True(t, stats.Running)
	assert.Equal(t, 2, stats.Workers)

	wp.Stop()

	stats = wp.GetStats()
	assert.False(t, stats.Running, "Worker pool should not be running after stop")

	// Second stop is a no-op
	wp.Stop()
}

func TestWorkerPool_SubmitTasks(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	wp := NewWorkerPool(2, 10, logger)
	require.NoError(t, wp.Start())
	defer wp.Stop()

	var counter int64
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := wp.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.Equal(t, int64(5), atomic.LoadInt64(&counter))
}

func TestWorkerPool_QueueFull(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	wp := NewWorkerPool(1, 1, logger)
	require.NoError(t, wp.Start())

	release := make(chan struct{})
	started := make(chan struct{})

	// Occupy the only worker
	require.NoError(t, wp.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	// Fill the queue
	require.NoError(t, wp.Submit(func() {}))

	err := wp.Submit(func() {})
	assert.ErrorIs(t, err, ErrWorkerPoolQueueFull)

	close(release)
	wp.Stop()
}

func TestWorkerPool_SubmitBeforeStart(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	wp := NewWorkerPool(2, 10, logger)

	err := wp.Submit(func() {})
	assert.ErrorIs(t, err, ErrWorkerPoolNotRunning)
}

func TestWorkerPool_StopDrainsQueuedTasks(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	wp := NewWorkerPool(1, 8, logger)
	require.NoError(t, wp.Start())

	var counter int64
	for i := 0; i < 8; i++ {
		require.NoError(t, wp.SubmitWait(context.Background(), func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&counter, 1)
		}))
	}

	wp.Stop()
	assert.Equal(t, int64(8), atomic.LoadInt64(&counter))
}

func TestWorkerPool_PanickingTaskDoesNotKillWorker(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	wp := NewWorkerPool(1, 4, logger)
	require.NoError(t, wp.Start())
	defer wp.Stop()

	require.NoError(t, wp.Submit(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, wp.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}

func TestWorkerPool_SubmitWaitHonoursContext(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	wp := NewWorkerPool(1, 0, logger)
	require.NoError(t, wp.Start())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, wp.SubmitWait(context.Background(), func() {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := wp.SubmitWait(ctx, func() {})
	assert.ErrorIs(t, err, ErrWorkerPoolTimeout)

	close(release)
	wp.Stop()
}
