// Package dispatcher manages worker fan-out over the reference queue.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   catalog.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue catalog.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every worker has returned, either
// because the queue was closed and drained or because ctx finished.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item catalog.WorkItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Dispatch feeds refs to the pool in order and waits for the workers. When
// ctx is canceled no further reference is handed out; the number of refs
// actually dispatched is returned together with the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, refs []catalog.DetailRef) (int, error) {
	if len(d.workers) == 0 {
		d.queue.Close()
		return 0, fmt.Errorf("dispatch: no workers")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	sent := 0
	var err error
	for i, ref := range refs {
		if err = d.Enqueue(ctx, catalog.WorkItem{Index: i, Ref: ref}); err != nil {
			break
		}
		sent++
	}
	d.queue.Close()
	<-done
	return sent, err
}

// Collector is the single accumulation point for worker results.
type Collector struct {
	mu      sync.Mutex
	records map[int]catalog.BookRecord
}

// NewCollector builds an empty Collector.
func NewCollector() *Collector {
	return &Collector{records: make(map[int]catalog.BookRecord)}
}

// Add stores rec under its harvest index.
func (c *Collector) Add(index int, rec catalog.BookRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[index] = rec
}

// Len reports how many records were collected.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns the collected records in harvest order.
func (c *Collector) Records() []catalog.BookRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	indexes := make([]int, 0, len(c.records))
	for i := range c.records {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	out := make([]catalog.BookRecord, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, c.records[i])
	}
	return out
}
