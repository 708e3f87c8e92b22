package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFIFOOrdering(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.PushBack(i)
	}
	for i := 0; i < 5; i++ {
		v, ok := q.PopFront()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.PopFront()
	require.False(t, ok)
}

func TestPushFrontPriority(t *testing.T) {
	q := New[string]()
	q.PushBack("b")
	q.PushFront("a")
	v, ok := q.PopFront()
	require.True(t, ok)
	require.Equal(t, "a", v)
}

func TestPopBack(t *testing.T) {
	q := New[int]()
	q.PushBack(1)
	q.PushBack(2)
	v, ok := q.PopBack()
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestWaitWakesOnPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	wg.Add(1)

	woke := make(chan struct{})
	go func() {
		defer wg.Done()
		q.Wait(context.Background())
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	q.PushBack(1)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after PushBack")
	}
	wg.Wait()
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		q.Wait(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after context cancellation")
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	q := New[int]()
	q.PushBack(1)
	q.PushBack(2)
	q.Clear()
	require.True(t, q.Empty())
	require.Zero(t, q.Len())
}
