package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()

	var got []string
	for _, name := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(func() { got = append(got, name) }))
	}

	for i := 0; i < 3; i++ {
		task, ok := q.TryDequeue()
		require.True(t, ok)
		task()
		q.Done()
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)
}

func TestTaskQueue_TryDequeue_Empty(t *testing.T) {
	q := newTaskQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestTaskQueue_IdleTracksActiveTask(t *testing.T) {
	q := newTaskQueue()
	assert.True(t, q.Idle())

	q.Enqueue(func() {})
	assert.False(t, q.Idle(), "queued task")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Idle(), "dequeued task still running")

	q.Done()
	assert.True(t, q.Idle())
}

func TestTaskQueue_EnqueueAfterClose(t *testing.T) {
	q := newTaskQueue()
	q.Close()

	assert.False(t, q.Enqueue(func() {}))
}

func TestTaskQueue_CloseWakesWaiters(t *testing.T) {
	q := newTaskQueue()

	woke := make(chan struct{})
	go func() {
		<-q.Wait()
		close(woke)
	}()

	q.Close()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by Close")
	}
}

func TestTaskQueue_CloseIdempotent(t *testing.T) {
	q := newTaskQueue()
	q.Close()
	assert.NotPanics(t, q.Close)
}

func TestTaskQueue_SignalCoalesces(t *testing.T) {
	q := newTaskQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(func() {})
	}

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
	assert.Equal(t, 5, q.Len())
}

func TestTaskQueue_ConcurrentEnqueue(t *testing.T) {
	q := newTaskQueue()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(func() {})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
}
