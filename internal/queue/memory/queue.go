// Package memory provides the in-process work queue feeding the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan catalog.WorkItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan catalog.WorkItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
// Enqueue on a closed queue returns catalog.ErrQueueClosed.
func (q *Queue) Enqueue(ctx context.Context, item catalog.WorkItem) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return catalog.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation. Items still
// buffered when the queue is closed are delivered before ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (catalog.WorkItem, error) {
	// A canceled run must not pick up buffered work.
	if err := ctx.Err(); err != nil {
		return catalog.WorkItem{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return catalog.WorkItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return catalog.WorkItem{}, catalog.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel. Only the producer may call Close.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
