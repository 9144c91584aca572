// Package pipeline runs one search term from listing harvest to archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/dispatcher"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/metrics"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/queue/memory"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/report"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/storage/local"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/worker"
)

// State is a step of a run.
type State string

// Run states in the order they are entered. Aborted is terminal and may
// follow any other state.
const (
	StateHarvesting State = "harvesting"
	StateExtracting State = "extracting"
	StatePersisting State = "persisting"
	StateReporting  State = "reporting"
	StateArchiving  State = "archiving"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

// Config controls the orchestrator.
type Config struct {
	OutputRoot     string
	Concurrency    int
	QueueDepth     int
	MaxRecords     int
	PersistTimeout time.Duration
	UploadTimeout  time.Duration
}

// Uploader ships the finished archive somewhere durable.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) (string, error)
}

// Deps are the collaborators a Pipeline drives. Store and Uploader are optional.
type Deps struct {
	Harvester catalog.Harvester
	Extractor catalog.Extractor
	Resolver  catalog.Resolver
	Fetcher   catalog.Fetcher
	Store     catalog.Store
	Uploader  Uploader
	Clock     catalog.Clock
	IDs       catalog.IDGenerator
	Logger    *zap.Logger
	// OnTransition, when set, is called after every state change.
	OnTransition func(runID string, state State)
}

// Result describes what a run produced.
type Result struct {
	RunID       string
	State       State
	RunFolder   string
	References  int
	Dispatched  int
	Records     []catalog.BookRecord
	Persist     catalog.PersistSummary
	ReportPath  string
	ArchivePath string
	ArchiveURI  string
	Canceled    bool
}

// Pipeline composes harvest, enrichment, persistence and reporting.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates deps and applies defaults.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Harvester == nil:
		return nil, errors.New("harvester is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if cfg.OutputRoot == "" {
		return nil, &catalog.ConfigError{Field: "output.root", Reason: "is required"}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Concurrency
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 2 * time.Minute
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 5 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run executes one run. Per-reference failures are logged and skipped; the
// returned error is non-nil only for configuration, output area, persistence
// or report failures. A canceled ctx stops dispatch, and whatever was
// collected is still persisted and reported.
func (p *Pipeline) Run(ctx context.Context, rc catalog.RunConfig) (Result, error) {
	var res Result
	if err := rc.Validate(); err != nil {
		res.State = StateAborted
		return res, err
	}

	runID, err := p.deps.IDs.NewID()
	if err != nil {
		res.State = StateAborted
		return res, fmt.Errorf("run id: %w", err)
	}
	res.RunID = runID
	logger := p.logger.With(zap.String("run_id", runID), zap.String("term", rc.Term))

	area, err := local.NewArea(local.Config{Root: p.cfg.OutputRoot}, rc.Term, p.deps.Clock.Now())
	if err != nil {
		p.abort(logger, &res, "output area", err)
		return res, err
	}
	res.RunFolder = area.Path()
	logger.Info("run started",
		zap.String("run_folder", area.Path()),
		zap.Int("from_page", rc.FromPage),
		zap.Int("to_page", rc.ToPage),
		zap.String("format", string(rc.Format)),
	)

	p.transition(logger, &res, StateHarvesting)
	refs, err := p.deps.Harvester.Harvest(ctx, rc.Term, rc.FromPage, rc.ToPage)
	if err != nil {
		res.Canceled = true
		logger.Warn("harvest interrupted", zap.Int("references", len(refs)), zap.Error(err))
	}
	res.References = len(refs)
	if p.cfg.MaxRecords > 0 && len(refs) > p.cfg.MaxRecords {
		logger.Info("reference cap applied", zap.Int("harvested", len(refs)), zap.Int("max_records", p.cfg.MaxRecords))
		refs = refs[:p.cfg.MaxRecords]
	}

	p.transition(logger, &res, StateExtracting)
	records, dispatched, err := p.enrich(ctx, logger, area, runID, refs)
	res.Dispatched = dispatched
	res.Records = records
	if err != nil {
		res.Canceled = true
		logger.Warn("dispatch interrupted", zap.Int("dispatched", dispatched), zap.Int("references", len(refs)), zap.Error(err))
	}
	logger.Info("enrichment finished", zap.Int("records", len(records)), zap.Int("dispatched", dispatched))

	// Everything after enrichment must complete even if the run was canceled.
	finalCtx := context.WithoutCancel(ctx)

	var storeErr error
	if p.deps.Store != nil {
		p.transition(logger, &res, StatePersisting)
		storeErr = p.persist(finalCtx, logger, &res, rc.Term)
	} else {
		logger.Info("persistence disabled")
	}

	p.transition(logger, &res, StateReporting)
	reportPath, err := report.Write(area.Path(), area.Name(), rc.Format, records)
	if err != nil {
		p.abort(logger, &res, "report", err)
		return res, errors.Join(storeErr, err)
	}
	res.ReportPath = reportPath
	logger.Info("report written", zap.String("path", reportPath), zap.Int("rows", len(records)))

	p.transition(logger, &res, StateArchiving)
	p.archive(finalCtx, logger, &res, area)

	if storeErr != nil {
		p.abort(logger, &res, "persist", storeErr)
		return res, storeErr
	}
	p.transition(logger, &res, StateDone)
	return res, nil
}

func (p *Pipeline) enrich(
	ctx context.Context,
	logger *zap.Logger,
	area *local.Area,
	runID string,
	refs []catalog.DetailRef,
) ([]catalog.BookRecord, int, error) {
	if len(refs) == 0 {
		return nil, 0, ctx.Err()
	}
	downloader, err := local.NewDownloader(area, p.deps.Fetcher, logger.Named("downloader"))
	if err != nil {
		return nil, 0, err
	}

	q := memory.NewQueue(p.cfg.QueueDepth)
	collector := dispatcher.NewCollector()
	workers := make([]*worker.Worker, 0, p.cfg.Concurrency)
	for i := 0; i < p.cfg.Concurrency; i++ {
		workers = append(workers, worker.New(
			q,
			p.deps.Extractor,
			p.deps.Resolver,
			downloader,
			collector,
			worker.Config{RunID: runID},
			logger.Named("worker").With(zap.Int("worker", i)),
		))
	}
	sent, err := dispatcher.New(q, workers).Dispatch(ctx, refs)
	return collector.Records(), sent, err
}

func (p *Pipeline) persist(ctx context.Context, logger *zap.Logger, res *Result, term string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PersistTimeout)
	defer cancel()

	summary, err := p.deps.Store.Persist(ctx, res.Records, term)
	res.Persist = summary
	if err != nil {
		logger.Error("persist failed", zap.Error(err))
		return err
	}
	logger.Info("batch persisted",
		zap.Int64("term_id", summary.TermID),
		zap.Int("inserted", summary.Inserted),
		zap.Int("existing", summary.Existing),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
	)
	return nil
}

// archive packs the run folder and optionally uploads it. Failures here are
// logged only.
func (p *Pipeline) archive(ctx context.Context, logger *zap.Logger, res *Result, area *local.Area) {
	path, err := report.Archive(area.Path(), area.Root())
	if err != nil {
		logger.Error("archive failed", zap.Error(err))
		return
	}
	res.ArchivePath = path
	logger.Info("archive written", zap.String("path", path))

	if p.deps.Uploader == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.UploadTimeout)
	defer cancel()
	uri, err := p.deps.Uploader.UploadFile(ctx, path)
	if err != nil {
		logger.Error("archive upload failed", zap.String("path", path), zap.Error(err))
		return
	}
	res.ArchiveURI = uri
	logger.Info("archive uploaded", zap.String("uri", uri))
}

func (p *Pipeline) transition(logger *zap.Logger, res *Result, next State) {
	logger.Info("pipeline state", zap.String("from", string(res.State)), zap.String("to", string(next)))
	res.State = next
	metrics.ObserveTransition(string(next))
	if p.deps.OnTransition != nil {
		p.deps.OnTransition(res.RunID, next)
	}
}

func (p *Pipeline) abort(logger *zap.Logger, res *Result, stage string, err error) {
	logger.Error("run aborted", zap.String("stage", stage), zap.String("kind", catalog.Kind(err)), zap.Error(err))
	p.transition(logger, res, StateAborted)
}
