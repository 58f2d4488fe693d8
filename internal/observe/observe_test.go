package observe_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo/internal/observe"
)

func TestValue_WatchWakesOnUpdate(t *testing.T) {
	v := observe.NewValue(1)

	got, changed := v.Watch()
	require.Equal(t, 1, got)

	select {
	case <-changed:
		t.Fatal("channel closed before any update")
	default:
	}

	v.Update(func(n int) int { return n + 1 })

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("watcher not woken")
	}
	assert.Equal(t, 2, v.Load())
}

func TestValue_ConcurrentUpdatesSerialized(t *testing.T) {
	v := observe.NewValue(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, v.Load())
}

func TestQueue_FIFO(t *testing.T) {
	q := observe.NewQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestQueue_DeliveredOnce(t *testing.T) {
	q := observe.NewQueue[int]()
	q.Push(7)

	got, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "item replayed to a second consumer")
}

func TestQueue_NextBlocksUntilPush(t *testing.T) {
	q := observe.NewQueue[int]()

	done := make(chan int, 1)
	go func() {
		n, err := q.Next(context.Background())
		if err == nil {
			done <- n
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case n := <-done:
		assert.Equal(t, 42, n)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Push")
	}
}

func TestQueue_NextHonoursContext(t *testing.T) {
	q := observe.NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQueue_CloseDrainsThenFails(t *testing.T) {
	q := observe.NewQueue[int]()
	q.Push(1)
	q.Close()
	q.Close()

	assert.False(t, q.Push(2))

	n, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = q.Next(context.Background())
	assert.ErrorIs(t, err, observe.ErrClosed)
}

func TestQueue_CloseWakesBlockedConsumers(t *testing.T) {
	q := observe.NewQueue[int]()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := q.Next(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, observe.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("blocked consumer not woken by Close")
		}
	}
}
