package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/api"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/clock/system"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/config"
	collyfetcher "github.com/mrtz90/Libgen-Scraper-CLI/internal/fetcher/colly"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/id/uuid"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/logging"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/metrics"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/pipeline"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/policy/ratelimit"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/policy/retry"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/source"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/storage/gcs"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// runScrape wires every component from cfg and executes a single run.
func runScrape(parent context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	metrics.Init()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc, err := cfg.RunConfig()
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Clock:  system.New(),
		IDs:    uuid.New(),
		Logger: logger.Named("pipeline"),
	}

	var pinger api.Pinger
	if cfg.DB.Enabled {
		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Store = store
		pinger = store
	} else {
		logger.Warn("database disabled; records will only be reported")
	}

	if cfg.Archive.GCSBucket != "" {
		uploader, err := gcs.Dial(ctx, gcs.Config{
			Bucket:   cfg.Archive.GCSBucket,
			Prefix:   cfg.Archive.GCSPrefix,
			Endpoint: cfg.Archive.GCSEndpoint,
		})
		if err != nil {
			return fmt.Errorf("init archive uploader: %w", err)
		}
		defer func() {
			if cerr := uploader.Close(); cerr != nil {
				logger.Warn("uploader close failed", zap.Error(cerr))
			}
		}()
		deps.Uploader = uploader
	}

	tracker := api.NewTracker(nil)
	deps.OnTransition = func(runID string, state pipeline.State) {
		tracker.Record(runID, string(state))
	}
	if cfg.Metrics.Enabled {
		shutdown := startServer(ctx, cfg.Metrics.Port, api.NewServer(tracker, pinger, logger.Named("api")), logger)
		defer shutdown()
	}

	fetcher := collyfetcher.New(
		collyfetcher.Config{
			UserAgent:          cfg.HTTP.UserAgent,
			Timeout:            cfg.FetchTimeout(),
			MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
			InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		},
		ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			Burst:             cfg.HTTP.Burst,
		}),
		retry.NewExponentialPolicy(retry.Config{
			MaxRetries: cfg.HTTP.MaxRetries,
			BaseDelay:  time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		}),
		logger.Named("fetcher"),
	)
	deps.Fetcher = fetcher

	if deps.Harvester, err = source.NewHarvester(source.HarvesterConfig{
		SearchURL:      cfg.Search.URL,
		ResultsPerPage: cfg.Search.ResultsPerPage,
		TableIndex:     cfg.Search.ListingTableIndex,
		DetailPrefix:   cfg.Search.DetailPrefix,
	}, fetcher, logger.Named("harvester")); err != nil {
		return err
	}
	if deps.Extractor, err = source.NewExtractor(
		cfg.Search.DetailBaseURL, cfg.Search.ImageBaseURL, fetcher, logger.Named("extractor"),
	); err != nil {
		return err
	}
	if deps.Resolver, err = source.NewResolver(source.ResolverConfig{
		BaseURL:    cfg.Search.DetailBaseURL,
		Extensions: cfg.Search.FileExtensions,
		CacheSize:  cfg.Search.ResolverCacheSize,
	}, fetcher, logger.Named("resolver")); err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Config{
		OutputRoot:     cfg.Output.Root,
		Concurrency:    cfg.Pipeline.Concurrency,
		QueueDepth:     cfg.Pipeline.QueueDepth,
		MaxRecords:     cfg.Pipeline.MaxRecords,
		PersistTimeout: cfg.PersistTimeout(),
		UploadTimeout:  cfg.UploadTimeout(),
	}, deps)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	res, err := p.Run(ctx, rc)
	tracker.Finish(res.RunID, len(res.Records), err)
	logger.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.String("state", string(res.State)),
		zap.Int("references", res.References),
		zap.Int("records", len(res.Records)),
		zap.Int("inserted", res.Persist.Inserted),
		zap.Int("existing", res.Persist.Existing),
		zap.Int("rejected", res.Persist.Rejected),
		zap.Int("failed", res.Persist.Failed),
		zap.String("report", res.ReportPath),
		zap.String("archive", res.ArchivePath),
		zap.Bool("canceled", res.Canceled),
	)
	if err != nil {
		return fmt.Errorf("run %s: %w", res.State, err)
	}
	return nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return logger, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.CatalogStore, error) {
	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime(),
	}, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	if cfg.DB.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

// startServer serves the operator API in the background and returns a
// function that drains it.
func startServer(ctx context.Context, port int, server *api.Server, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}
}
