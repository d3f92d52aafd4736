// Package speech queues text announcements and speaks them through the
// platform text-to-speech engine. Delivery is strictly in submission order:
// a single worker goroutine drains the queue one utterance at a time.
package speech

import (
	"sync"
	"time"
)

// Queue is an unbounded in-order announcement queue. Enqueue never blocks,
// so callers on the web path are never held up by a slow speech engine.
type Queue struct {
	mu    sync.Mutex
	items []string
	wake  chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Enqueue appends text and nudges the worker.
func (q *Queue) Enqueue(text string) {
	q.mu.Lock()
	q.items = append(q.items, text)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue pops the oldest utterance, waiting up to timeout for one to
// arrive. ok is false when the wait expired with the queue still empty.
func (q *Queue) Dequeue(timeout time.Duration) (text string, ok bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			text = q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return text, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-deadline.C:
			return "", false
		}
	}
}

// Pending returns the number of queued utterances.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
