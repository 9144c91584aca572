package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan catalog.WorkItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	item := catalog.WorkItem{Index: 3, Ref: "book/index.php?md5=ABC"}
	require.NoError(t, q.Enqueue(context.Background(), item))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		assert.Equal(t, item, got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qDequeue.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	qEnqueue := NewQueue(1)
	require.NoError(t, qEnqueue.Enqueue(context.Background(), catalog.WorkItem{Index: 0}))
	err = qEnqueue.Enqueue(ctx, catalog.WorkItem{Index: 1})
	require.EqualError(t, err, "enqueue canceled: context canceled")
}

func TestQueueCanceledSkipsBufferedItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), catalog.WorkItem{Index: 0}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, q.Len())
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), catalog.WorkItem{Index: 0}))
	q.Close()
	// Closing twice should be safe.
	q.Close()

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, item.Index)

	_, err = q.Dequeue(context.Background())
	assert.True(t, errors.Is(err, catalog.ErrQueueClosed))
	assert.ErrorIs(t, q.Enqueue(context.Background(), catalog.WorkItem{}), catalog.ErrQueueClosed)
}
