package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// uniqueViolation is the SQLSTATE raised when a unique index cannot be
// built over existing rows.
const uniqueViolation = "23505"

type schemaStatement struct {
	sql string
	// table is set for unique indexes added to tables that may predate them.
	table string
}

// schemaStatements create the catalog tables when absent. The two unique
// indexes give the insert-or-ignore statements a conflict target and are
// also applied to tables created without them, which requires those tables
// to hold no duplicate keys.
var schemaStatements = []schemaStatement{
	{sql: `CREATE TABLE IF NOT EXISTS Author (
	id SERIAL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL
)`},
	{sql: `CREATE TABLE IF NOT EXISTS Publisher (
	id SERIAL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL
)`},
	{sql: `CREATE TABLE IF NOT EXISTS KeyWordSearched (
	id SERIAL PRIMARY KEY,
	key_word TEXT NOT NULL,
	search_date TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
)`},
	{sql: `CREATE UNIQUE INDEX IF NOT EXISTS keywordsearched_key_word_key ON KeyWordSearched (key_word)`, table: "KeyWordSearched"},
	{sql: `CREATE TABLE IF NOT EXISTS Book (
	id SERIAL PRIMARY KEY,
	title TEXT UNIQUE NOT NULL,
	year INTEGER NOT NULL,
	language TEXT NOT NULL,
	pages INTEGER NOT NULL,
	topic TEXT NOT NULL,
	about_book TEXT NOT NULL,
	book_file_path TEXT,
	image_file_path TEXT
)`},
	{sql: `CREATE TABLE IF NOT EXISTS book_authors (
	id SERIAL PRIMARY KEY,
	book_id INTEGER REFERENCES Book(id),
	author_id INTEGER REFERENCES Author(id),
	CONSTRAINT unique_book_author UNIQUE (book_id, author_id)
)`},
	{sql: `CREATE TABLE IF NOT EXISTS book_publisher (
	id SERIAL PRIMARY KEY,
	book_id INTEGER REFERENCES Book(id),
	publisher_id INTEGER REFERENCES Publisher(id),
	CONSTRAINT unique_book_publisher UNIQUE (book_id, publisher_id)
)`},
	{sql: `CREATE TABLE IF NOT EXISTS SearchResult (
	id SERIAL PRIMARY KEY,
	key_word_id INTEGER NOT NULL REFERENCES KeyWordSearched(id),
	book_id INTEGER NOT NULL REFERENCES Book(id),
	link TEXT NOT NULL
)`},
	{sql: `CREATE UNIQUE INDEX IF NOT EXISTS searchresult_term_book_key ON SearchResult (key_word_id, book_id)`, table: "SearchResult"},
}

// EnsureSchema creates any missing catalog table or index.
func (s *CatalogStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt.sql); err != nil {
			var pgErr *pgconn.PgError
			if stmt.table != "" && errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				err = fmt.Errorf("table %s holds duplicate rows; remove them before migrating: %w", stmt.table, err)
			}
			return &catalog.StoreError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}
