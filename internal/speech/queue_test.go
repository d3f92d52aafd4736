package speech

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()

	q.Enqueue("first")
	q.Enqueue("second")
	q.Enqueue("third")
	require.Equal(t, 3, q.Pending())

	for _, want := range []string{"first", "second", "third"} {
		got, ok := q.Dequeue(time.Second)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, q.Pending())
}

func TestQueueDequeueTimeout(t *testing.T) {
	q := NewQueue()

	start := time.Now()
	text, ok := q.Dequeue(50 * time.Millisecond)
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueueDequeueWakesOnEnqueue(t *testing.T) {
	q := NewQueue()

	done := make(chan string, 1)
	go func() {
		text, ok := q.Dequeue(5 * time.Second)
		if ok {
			done <- text
		}
	}()

	// Give the consumer a moment to park, then hand it work.
	time.Sleep(20 * time.Millisecond)
	q.Enqueue("wake up")

	select {
	case text := <-done:
		assert.Equal(t, "wake up", text)
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not wake on Enqueue")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				q.Enqueue("msg")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Pending())
}
