// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/queue/memory"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/worker"
)

func newPool(q catalog.Queue, size int, extractor catalog.Extractor, sink worker.Sink) []*worker.Worker {
	workers := make([]*worker.Worker, 0, size)
	for i := 0; i < size; i++ {
		workers = append(workers, worker.New(q, extractor, nopResolver{}, nopDownloader{}, sink, worker.Config{RunID: "run"}, zap.NewNop()))
	}
	return workers
}

// TestDispatchPreservesHarvestOrder ensures the collector sorts out-of-order completions.
func TestDispatchPreservesHarvestOrder(t *testing.T) {
	t.Parallel()

	refs := make([]catalog.DetailRef, 0, 20)
	for i := 0; i < 20; i++ {
		refs = append(refs, catalog.DetailRef(fmt.Sprintf("book/%02d", i)))
	}
	q := memory.NewQueue(4)
	collector := NewCollector()
	d := New(q, newPool(q, 4, &jitterExtractor{skip: "book/07"}, collector))

	sent, err := d.Dispatch(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, 20, sent)

	records := collector.Records()
	require.Len(t, records, 19)
	prev := ""
	for _, rec := range records {
		assert.NotEqual(t, "book/07", rec.Title)
		assert.Greater(t, rec.Title, prev)
		prev = rec.Title
	}
}

// TestDispatchStopsOnCancel verifies no new references are handed out after cancel.
func TestDispatchStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	refs := make([]catalog.DetailRef, 50)
	for i := range refs {
		refs[i] = catalog.DetailRef(fmt.Sprintf("book/%02d", i))
	}
	q := memory.NewQueue(1)
	collector := NewCollector()
	extractor := &cancelingExtractor{cancel: cancel, after: 3}
	d := New(q, newPool(q, 1, extractor, collector))

	done := make(chan struct{})
	var (
		sent int
		err  error
	)
	go func() {
		sent, err = d.Dispatch(ctx, refs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop after cancel")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, sent, len(refs))
	// In-flight work finished; its record was kept.
	assert.GreaterOrEqual(t, collector.Len(), 3)
	assert.Less(t, collector.Len(), len(refs))
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), catalog.WorkItem{Ref: "book/1"})
	require.EqualError(t, err, "queue enqueue: boom")

	_, err = dispatch.Dispatch(context.Background(), []catalog.DetailRef{"book/1"})
	assert.Error(t, err)
}

func TestCollectorOrdersByIndex(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.Add(5, catalog.BookRecord{Title: "c"})
	c.Add(0, catalog.BookRecord{Title: "a"})
	c.Add(2, catalog.BookRecord{Title: "b"})

	var titles []string
	for _, rec := range c.Records() {
		titles = append(titles, rec.Title)
	}
	assert.Equal(t, []string{"a", "b", "c"}, titles)
	assert.Empty(t, NewCollector().Records())
}

type jitterExtractor struct {
	skip catalog.DetailRef
}

func (e *jitterExtractor) Extract(_ context.Context, ref catalog.DetailRef) (catalog.Detail, error) {
	if ref == e.skip {
		return catalog.Detail{}, &catalog.StructuralError{Page: "detail", Ref: string(ref), Field: "title", Reason: "missing"}
	}
	// Later refs finish sooner so completions arrive out of order.
	var n int
	_, _ = fmt.Sscanf(string(ref), "book/%d", &n)
	time.Sleep(time.Duration(5-n%5) * time.Millisecond)
	return catalog.Detail{Record: catalog.BookRecord{Title: string(ref)}}, nil
}

type cancelingExtractor struct {
	mu     sync.Mutex
	calls  int
	after  int
	cancel context.CancelFunc
}

func (e *cancelingExtractor) Extract(_ context.Context, ref catalog.DetailRef) (catalog.Detail, error) {
	e.mu.Lock()
	e.calls++
	if e.calls == e.after {
		e.cancel()
	}
	e.mu.Unlock()
	return catalog.Detail{Record: catalog.BookRecord{Title: string(ref)}}, nil
}

type nopResolver struct{}

func (nopResolver) ResolveFileURL(context.Context, string) (string, error) {
	return "", catalog.ErrNoDownloadLink
}

type nopDownloader struct{}

func (nopDownloader) Download(context.Context, catalog.Source, catalog.Category, string) (string, error) {
	return "", nil
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, catalog.WorkItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (catalog.WorkItem, error) {
	return catalog.WorkItem{}, catalog.ErrQueueClosed
}

func (q *errorQueue) Close() {}
