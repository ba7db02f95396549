package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOSingleConsumer(t *testing.T) {
	q := NewHandoffQueue[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	for i := 0; i < 100; i++ {
		require.Equal(t, i, q.Pop())
	}
	assert.True(t, q.IsEmpty())
}

func TestTryPopOnEmpty(t *testing.T) {
	q := NewHandoffQueue[string]()
	v, ok := q.TryPop()
	assert.False(t, ok)
	assert.Equal(t, "", v)

	q.Push("a")
	v, ok = q.TryPop()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewHandoffQueue[int]()
	got := make(chan int, 1)

	go func() {
		got <- q.Pop()
	}()

	select {
	case <-got:
		t.Fatal("Pop returned on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(7)

	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestPopContextCancel(t *testing.T) {
	q := NewHandoffQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.PopContext(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("PopContext ignored cancellation")
	}
}

func TestPopContextPrefersQueuedItem(t *testing.T) {
	q := NewHandoffQueue[int]()
	q.Push(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An item already queued is still handed out.
	v, err := q.PopContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

// Every pushed element is popped exactly once under concurrent producers and
// consumers.
func TestConcurrentConservation(t *testing.T) {
	const producers, consumers, perProducer = 4, 6, 2500
	q := NewHandoffQueue[int]()

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func(base int) {
			defer pwg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base*perProducer + i)
			}
		}(p)
	}

	var mu sync.Mutex
	seen := make(map[int]int)
	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				v := q.Pop()
				if v < 0 {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	pwg.Wait()
	for c := 0; c < consumers; c++ {
		q.Push(-1)
	}
	cwg.Wait()

	require.Len(t, seen, producers*perProducer)
	for v, n := range seen {
		require.Equal(t, 1, n, "value %d popped %d times", v, n)
	}
	assert.Equal(t, 0, q.Len())
}

func TestCompactionKeepsOrder(t *testing.T) {
	q := NewHandoffQueue[int]()
	next := 0
	for round := 0; round < 20; round++ {
		for i := 0; i < 50; i++ {
			q.Push(round*50 + i)
		}
		for i := 0; i < 40; i++ {
			require.Equal(t, next, q.Pop())
			next++
		}
	}
	for !q.IsEmpty() {
		require.Equal(t, next, q.Pop())
		next++
	}
	assert.Equal(t, 1000, next)
}
