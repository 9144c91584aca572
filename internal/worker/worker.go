// Package worker implements the per-reference enrichment loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/metrics"
)

// Sink receives finished records together with their harvest position.
type Sink interface {
	Add(index int, rec catalog.BookRecord)
}

// Config controls Worker behavior.
type Config struct {
	RunID string
}

// Worker consumes queue items and runs extract, resolve and download for each.
type Worker struct {
	queue      catalog.Queue
	extractor  catalog.Extractor
	resolver   catalog.Resolver
	downloader catalog.Downloader
	sink       Sink
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	queue catalog.Queue,
	extractor catalog.Extractor,
	resolver catalog.Resolver,
	downloader catalog.Downloader,
	sink Sink,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		extractor:  extractor,
		resolver:   resolver,
		downloader: downloader,
		sink:       sink,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the queue is drained or the
// context finishes. An item already dequeued is completed on a context that
// ignores cancellation, so each of its fetches ends on its own timeout.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, catalog.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.String("run_id", w.cfg.RunID), zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued reference", zap.Int("index", item.Index), zap.String("ref", string(item.Ref)))

		metrics.IncActiveWorkers()
		rec, err := w.Process(context.WithoutCancel(ctx), item.Ref)
		metrics.DecActiveWorkers()
		if err != nil {
			metrics.ObserveReference(catalog.Kind(err))
			w.logger.Warn("reference dropped",
				zap.String("run_id", w.cfg.RunID),
				zap.String("ref", string(item.Ref)),
				zap.String("kind", catalog.Kind(err)),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveReference("ok")
		if w.sink != nil {
			w.sink.Add(item.Index, rec)
		}
	}
}

// Process enriches one reference. Only an extraction failure is returned;
// snapshot, cover and file failures leave the matching path empty.
func (w *Worker) Process(ctx context.Context, ref catalog.DetailRef) (catalog.BookRecord, error) {
	detail, err := w.extractor.Extract(ctx, ref)
	if err != nil {
		return catalog.BookRecord{}, fmt.Errorf("extract: %w", err)
	}
	rec := detail.Record
	logger := w.logger.With(zap.String("run_id", w.cfg.RunID), zap.String("ref", string(ref)))

	if path, err := w.downloader.Download(ctx, catalog.Source{URL: rec.DetailURL, Body: detail.Snapshot}, catalog.CategoryHTML, rec.Title); err != nil {
		logger.Warn("snapshot not saved", zap.String("category", string(catalog.CategoryHTML)), zap.Error(err))
	} else {
		rec.SnapshotPath = path
	}

	if rec.ImageURL != "" {
		if path, err := w.downloader.Download(ctx, catalog.Source{URL: rec.ImageURL}, catalog.CategoryImage, rec.Title); err != nil {
			logger.Warn("cover not saved",
				zap.String("category", string(catalog.CategoryImage)),
				zap.String("url", rec.ImageURL),
				zap.Error(err),
			)
		} else {
			rec.ImagePath = path
		}
	}

	w.fetchFile(ctx, logger, &rec)
	return rec, nil
}

func (w *Worker) fetchFile(ctx context.Context, logger *zap.Logger, rec *catalog.BookRecord) {
	if rec.FileRef == "" || w.resolver == nil {
		return
	}
	fileURL, err := w.resolver.ResolveFileURL(ctx, rec.FileRef)
	if err != nil {
		logger.Warn("file link not resolved", zap.String("url", rec.FileRef), zap.Error(err))
		return
	}
	rec.FileURL = fileURL

	category := catalog.Category(rec.FileType)
	path, err := w.downloader.Download(ctx, catalog.Source{URL: fileURL}, category, rec.Title)
	if err != nil {
		logger.Warn("file not saved", zap.String("category", string(category)), zap.String("url", fileURL), zap.Error(err))
		return
	}
	rec.FilePath = path
}
