package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

func sampleDetail(ref catalog.DetailRef, title string) catalog.Detail {
	return catalog.Detail{
		Record: catalog.BookRecord{
			Title:     title,
			FileType:  "pdf",
			DetailURL: "https://libgen.test/" + string(ref),
			ImageURL:  "https://covers.test/" + title + ".jpg",
			FileRef:   "http://mirror.test/main/" + title,
			Ref:       ref,
		},
		Snapshot: []byte("<html>" + title + "</html>"),
	}
}

func TestWorker_ProcessSavesAllResources(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{details: map[catalog.DetailRef]catalog.Detail{"book/1": sampleDetail("book/1", "Rome")}}
	resolver := &fakeResolver{urls: map[string]string{"http://mirror.test/main/Rome": "https://dl.test/Rome.pdf"}}
	downloader := newFakeDownloader()
	w := New(nil, extractor, resolver, downloader, nil, Config{RunID: "run-1"}, nil)

	rec, err := w.Process(context.Background(), "book/1")
	require.NoError(t, err)
	assert.Equal(t, "/out/html/Rome", rec.SnapshotPath)
	assert.Equal(t, "/out/image/Rome", rec.ImagePath)
	assert.Equal(t, "/out/pdf/Rome", rec.FilePath)
	assert.Equal(t, "https://dl.test/Rome.pdf", rec.FileURL)

	snapshot := downloader.call(catalog.CategoryHTML)
	assert.Equal(t, []byte("<html>Rome</html>"), snapshot.Body)
	assert.Equal(t, "https://dl.test/Rome.pdf", downloader.call("pdf").URL)
}

func TestWorker_ProcessKeepsRecordWhenDownloadsFail(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	extractor := &fakeExtractor{details: map[catalog.DetailRef]catalog.Detail{"book/2": sampleDetail("book/2", "Gaul")}}
	resolver := &fakeResolver{err: catalog.ErrNoDownloadLink}
	downloader := newFakeDownloader()
	downloader.fail[catalog.CategoryImage] = &catalog.TransportError{URL: "https://covers.test/Gaul.jpg", StatusCode: 404, Err: errors.New("Not Found")}
	w := New(nil, extractor, resolver, downloader, nil, Config{RunID: "run-2"}, zap.New(core))

	rec, err := w.Process(context.Background(), "book/2")
	require.NoError(t, err)
	assert.Equal(t, "Gaul", rec.Title)
	assert.NotEmpty(t, rec.SnapshotPath)
	assert.Empty(t, rec.ImagePath)
	assert.Empty(t, rec.FilePath)
	assert.Equal(t, 1, logs.FilterMessage("cover not saved").Len())
	assert.Equal(t, 1, logs.FilterMessage("file link not resolved").Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "run-2", entry.ContextMap()["run_id"])
		assert.Equal(t, "book/2", entry.ContextMap()["ref"])
	}
}

func TestWorker_ProcessWithoutCover(t *testing.T) {
	t.Parallel()

	detail := sampleDetail("book/3", "Carthage")
	detail.Record.ImageURL = ""
	extractor := &fakeExtractor{details: map[catalog.DetailRef]catalog.Detail{"book/3": detail}}
	downloader := newFakeDownloader()
	w := New(nil, extractor, &fakeResolver{urls: map[string]string{}}, downloader, nil, Config{}, nil)

	rec, err := w.Process(context.Background(), "book/3")
	require.NoError(t, err)
	assert.Empty(t, rec.ImagePath)
	assert.Zero(t, downloader.count(catalog.CategoryImage))
}

func TestWorker_ProcessExtractFailure(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	downloader := newFakeDownloader()
	w := New(nil, extractor, &fakeResolver{}, downloader, nil, Config{}, nil)

	_, err := w.Process(context.Background(), "book/missing")
	require.Error(t, err)
	assert.True(t, catalog.IsStructural(err))
	assert.Zero(t, downloader.total())
}

func TestWorker_RunDrainsQueue(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	queue := &fakeQueue{items: []catalog.WorkItem{
		{Index: 0, Ref: "book/1"},
		{Index: 1, Ref: "book/broken"},
		{Index: 2, Ref: "book/3"},
	}, closed: true}
	extractor := &fakeExtractor{details: map[catalog.DetailRef]catalog.Detail{
		"book/1": sampleDetail("book/1", "Rome"),
		"book/3": sampleDetail("book/3", "Carthage"),
	}}
	sink := &fakeSink{}
	w := New(queue, extractor, &fakeResolver{urls: map[string]string{}}, newFakeDownloader(), sink, Config{RunID: "run-3"}, zap.New(core))

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after the queue drained")
	}
	assert.Equal(t, []int{0, 2}, sink.indexes())
	dropped := logs.FilterMessage("reference dropped").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, "book/broken", dropped[0].ContextMap()["ref"])
	assert.Equal(t, "structural", dropped[0].ContextMap()["kind"])
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w := New(&fakeQueue{}, &fakeExtractor{}, &fakeResolver{}, newFakeDownloader(), &fakeSink{}, Config{}, nil)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

// --- fakes ---

type fakeQueue struct {
	mu     sync.Mutex
	items  []catalog.WorkItem
	closed bool
}

func (q *fakeQueue) Enqueue(_ context.Context, item catalog.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (catalog.WorkItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return catalog.WorkItem{}, catalog.ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return catalog.WorkItem{}, ctx.Err()
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func (q *fakeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

type fakeExtractor struct {
	details map[catalog.DetailRef]catalog.Detail
}

func (f *fakeExtractor) Extract(_ context.Context, ref catalog.DetailRef) (catalog.Detail, error) {
	detail, ok := f.details[ref]
	if !ok {
		return catalog.Detail{}, &catalog.StructuralError{Page: "detail", Ref: string(ref), Field: "synopsis", Reason: "row missing"}
	}
	return detail, nil
}

type fakeResolver struct {
	urls map[string]string
	err  error
}

func (f *fakeResolver) ResolveFileURL(_ context.Context, fileRef string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	u, ok := f.urls[fileRef]
	if !ok {
		return "", catalog.ErrNoDownloadLink
	}
	return u, nil
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls map[catalog.Category][]catalog.Source
	fail  map[catalog.Category]error
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{
		calls: map[catalog.Category][]catalog.Source{},
		fail:  map[catalog.Category]error{},
	}
}

func (f *fakeDownloader) Download(_ context.Context, src catalog.Source, category catalog.Category, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[category] = append(f.calls[category], src)
	if err := f.fail[category]; err != nil {
		return "", err
	}
	return "/out/" + string(category) + "/" + title, nil
}

func (f *fakeDownloader) call(category catalog.Category) catalog.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[category][0]
}

func (f *fakeDownloader) count(category catalog.Category) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[category])
}

func (f *fakeDownloader) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

type fakeSink struct {
	mu   sync.Mutex
	seen []int
}

func (s *fakeSink) Add(index int, _ catalog.BookRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, index)
}

func (s *fakeSink) indexes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.seen...)
}
