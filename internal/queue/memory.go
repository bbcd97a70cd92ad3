package queue

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue is closed")

// MemQueue is a buffered in-process Queue for tests and single-binary
// local runs. It deliberately mimics broker semantics: independent
// consumers each receive distinct items.
type MemQueue struct {
	mu     sync.RWMutex
	closed bool
	ch     chan WorkItem
}

func NewMemQueue(buffer int) *MemQueue {
	if buffer < 1 {
		buffer = 1
	}
	return &MemQueue{ch: make(chan WorkItem, buffer)}
}

func (q *MemQueue) Enqueue(ctx context.Context, item WorkItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemQueue) Dequeue(ctx context.Context) (WorkItem, error) {
	select {
	case item, ok := <-q.ch:
		if !ok {
			return WorkItem{}, ErrQueueClosed
		}
		return item, nil
	case <-ctx.Done():
		return WorkItem{}, ctx.Err()
	}
}

// Close stops accepting new items; pending items remain consumable
// until the channel drains.
func (q *MemQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
