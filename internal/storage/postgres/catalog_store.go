// Package postgres persists catalog records into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/metrics"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/normalize"
)

const (
	upsertTermSQL   = `INSERT INTO KeyWordSearched (key_word) VALUES ($1) ON CONFLICT (key_word) DO NOTHING`
	selectTermSQL   = `SELECT id FROM KeyWordSearched WHERE key_word = $1`
	selectBookSQL   = `SELECT id FROM Book WHERE title = $1`
	insertBookSQL   = `INSERT INTO Book (title, year, language, pages, topic, about_book, image_file_path, book_file_path) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (title) DO NOTHING`
	upsertAuthorSQL = `INSERT INTO Author (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	selectAuthorSQL = `SELECT id FROM Author WHERE name = $1`
	linkAuthorSQL   = `INSERT INTO book_authors (book_id, author_id) VALUES ($1, $2) ON CONFLICT (book_id, author_id) DO NOTHING`
	upsertPubSQL    = `INSERT INTO Publisher (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	selectPubSQL    = `SELECT id FROM Publisher WHERE name = $1`
	linkPubSQL      = `INSERT INTO book_publisher (book_id, publisher_id) VALUES ($1, $2) ON CONFLICT (book_id, publisher_id) DO NOTHING`
	insertResultSQL = `INSERT INTO SearchResult (key_word_id, book_id, link) VALUES ($1, $2, $3) ON CONFLICT (key_word_id, book_id) DO NOTHING`
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// queryer is the subset shared by the pool and a transaction.
type queryer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// CatalogStore writes batches of records with one transaction per record.
type CatalogStore struct {
	pool   pool
	logger *zap.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*CatalogStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, &catalog.ConfigError{Field: "db.dsn", Reason: "is required"}
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, &catalog.ConfigError{Field: "db.dsn", Reason: err.Error()}
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &catalog.StoreError{Op: "connect", Err: err}
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, &catalog.StoreError{Op: "ping", Err: err}
	}
	return NewWithPool(p, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, logger *zap.Logger) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogStore{pool: p, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *CatalogStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &catalog.StoreError{Op: "ping", Err: err}
	}
	return nil
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeExisting
	outcomeRejected
	outcomeFailed
)

// Persist upserts the search term and then every record of batch in its own
// transaction. A record that fails validation or hits a database error is
// rolled back, logged and counted; siblings are unaffected. Losing the
// connection (no transaction can begin) ends the batch with a StoreError.
func (s *CatalogStore) Persist(ctx context.Context, batch []catalog.BookRecord, term string) (catalog.PersistSummary, error) {
	var summary catalog.PersistSummary
	termID, err := s.upsertTerm(ctx, term)
	if err != nil {
		return summary, err
	}
	summary.TermID = termID

	for i := range batch {
		rec := &batch[i]
		res, err := s.persistOne(ctx, termID, rec)
		var storeErr *catalog.StoreError
		if errors.As(err, &storeErr) {
			s.recordSummary(summary)
			return summary, err
		}
		switch res {
		case outcomeInserted:
			summary.Inserted++
		case outcomeExisting:
			summary.Existing++
		case outcomeRejected:
			summary.Rejected++
			s.logger.Warn("record rejected", zap.String("title", rec.Title), zap.String("ref", string(rec.Ref)), zap.Error(err))
		case outcomeFailed:
			summary.Failed++
			s.logger.Error("record not persisted", zap.String("title", rec.Title), zap.String("ref", string(rec.Ref)), zap.Error(err))
		}
	}
	s.recordSummary(summary)
	return summary, nil
}

func (s *CatalogStore) recordSummary(summary catalog.PersistSummary) {
	metrics.ObservePersist("inserted", summary.Inserted)
	metrics.ObservePersist("existing", summary.Existing)
	metrics.ObservePersist("rejected", summary.Rejected)
	metrics.ObservePersist("failed", summary.Failed)
}

func (s *CatalogStore) upsertTerm(ctx context.Context, term string) (int64, error) {
	if _, err := s.pool.Exec(ctx, upsertTermSQL, term); err != nil {
		return 0, &catalog.StoreError{Op: "upsert search term", Err: err}
	}
	var id int64
	if err := s.pool.QueryRow(ctx, selectTermSQL, term).Scan(&id); err != nil {
		return 0, &catalog.StoreError{Op: "resolve search term", Err: err}
	}
	return id, nil
}

func (s *CatalogStore) persistOne(ctx context.Context, termID int64, rec *catalog.BookRecord) (outcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return outcomeFailed, &catalog.StoreError{Op: "begin", Err: err}
	}
	res, err := writeRecord(ctx, tx, termID, rec)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		if errors.Is(err, catalog.ErrInvalidRecord) {
			return outcomeRejected, err
		}
		return outcomeFailed, err
	}
	if err := tx.Commit(ctx); err != nil {
		return outcomeFailed, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// writeRecord runs the statements of one record inside tx. An existing
// title only gains a search result row for the current term.
func writeRecord(ctx context.Context, tx queryer, termID int64, rec *catalog.BookRecord) (outcome, error) {
	res := outcomeExisting
	var bookID int64
	err := tx.QueryRow(ctx, selectBookSQL, rec.Title).Scan(&bookID)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		row, vErr := bookRow(rec)
		if vErr != nil {
			return outcomeRejected, vErr
		}
		if bookID, err = insertBook(ctx, tx, rec, row); err != nil {
			return outcomeFailed, err
		}
		res = outcomeInserted
	default:
		return outcomeFailed, fmt.Errorf("look up book: %w", err)
	}

	if _, err := tx.Exec(ctx, insertResultSQL, termID, bookID, rec.DetailURL); err != nil {
		return outcomeFailed, fmt.Errorf("insert search result: %w", err)
	}
	return res, nil
}

func insertBook(ctx context.Context, tx queryer, rec *catalog.BookRecord, row []any) (int64, error) {
	if _, err := tx.Exec(ctx, insertBookSQL, row...); err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	var bookID int64
	if err := tx.QueryRow(ctx, selectBookSQL, rec.Title).Scan(&bookID); err != nil {
		return 0, fmt.Errorf("resolve book: %w", err)
	}
	for _, name := range rec.Authors {
		authorID, err := upsertName(ctx, tx, upsertAuthorSQL, selectAuthorSQL, name)
		if err != nil {
			return 0, fmt.Errorf("author %q: %w", name, err)
		}
		if _, err := tx.Exec(ctx, linkAuthorSQL, bookID, authorID); err != nil {
			return 0, fmt.Errorf("link author %q: %w", name, err)
		}
	}
	if rec.Publisher != "" {
		pubID, err := upsertName(ctx, tx, upsertPubSQL, selectPubSQL, rec.Publisher)
		if err != nil {
			return 0, fmt.Errorf("publisher %q: %w", rec.Publisher, err)
		}
		if _, err := tx.Exec(ctx, linkPubSQL, bookID, pubID); err != nil {
			return 0, fmt.Errorf("link publisher %q: %w", rec.Publisher, err)
		}
	}
	return bookID, nil
}

func upsertName(ctx context.Context, tx queryer, upsertSQL, selectSQL, name string) (int64, error) {
	if _, err := tx.Exec(ctx, upsertSQL, name); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	var id int64
	if err := tx.QueryRow(ctx, selectSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve: %w", err)
	}
	return id, nil
}

// bookRow validates rec and returns the Book insert arguments.
func bookRow(rec *catalog.BookRecord) ([]any, error) {
	if strings.TrimSpace(rec.Title) == "" {
		return nil, fmt.Errorf("title missing: %w", catalog.ErrInvalidRecord)
	}
	year, ok := normalize.LeadingInt(rec.Year)
	if !ok {
		return nil, fmt.Errorf("year %q: %w", rec.Year, catalog.ErrInvalidRecord)
	}
	pages, ok := normalize.LeadingInt(rec.Pages)
	if !ok {
		return nil, fmt.Errorf("pages %q: %w", rec.Pages, catalog.ErrInvalidRecord)
	}
	for field, value := range map[string]string{
		"language":   rec.Language,
		"topic":      rec.Topic,
		"about_book": rec.Synopsis,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%s missing: %w", field, catalog.ErrInvalidRecord)
		}
	}
	return []any{
		rec.Title,
		year,
		rec.Language,
		pages,
		rec.Topic,
		rec.Synopsis,
		nullable(rec.ImagePath),
		nullable(rec.FilePath),
	}, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
