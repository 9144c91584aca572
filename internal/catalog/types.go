// Package catalog defines the domain types, capabilities, and error taxonomy
// shared by the acquisition-and-persistence pipeline.
package catalog

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DetailRef is an opaque relative reference to a single item's detail page,
// exactly as it appeared in the listing table (for example
// "book/index.php?md5=...").
type DetailRef string

// Category classifies a downloaded resource. Besides the image and html
// snapshot categories, any other value is the primary document's file type.
type Category string

// Fixed resource categories.
const (
	CategoryImage Category = "image"
	CategoryHTML  Category = "html"
)

// OutputFormat selects the flat report writer.
type OutputFormat string

// Supported report formats.
const (
	FormatCSV  OutputFormat = "csv"
	FormatJSON OutputFormat = "json"
	FormatXLS  OutputFormat = "xls"
)

// ParseOutputFormat maps a user supplied value onto a supported format.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatJSON, FormatXLS:
		return f, nil
	default:
		return "", &ConfigError{Field: "output_format", Reason: fmt.Sprintf("unsupported format %q (want csv, json or xls)", raw)}
	}
}

// RunConfig is the plain value object handed to the core for one run.
type RunConfig struct {
	Term     string
	FromPage int
	ToPage   int
	Format   OutputFormat
}

// Validate rejects configurations that must fail before any network activity.
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.Term) == "" {
		return &ConfigError{Field: "keyword", Reason: "must not be empty"}
	}
	if c.FromPage < 1 {
		return &ConfigError{Field: "pages", Reason: fmt.Sprintf("start page %d must be >= 1", c.FromPage)}
	}
	if c.ToPage < c.FromPage {
		return &ConfigError{Field: "pages", Reason: fmt.Sprintf("end page %d is before start page %d", c.ToPage, c.FromPage)}
	}
	if _, err := ParseOutputFormat(string(c.Format)); err != nil {
		return err
	}
	return nil
}

// BookRecord is one catalog entry. It is created by the detail extractor,
// enriched with local paths by the downloader, and persisted by the store.
// Empty path strings mean the corresponding download failed.
type BookRecord struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Publisher string   `json:"publisher"`
	Year      string   `json:"year"`
	Language  string   `json:"language"`
	Pages     string   `json:"pages"`
	Topic     string   `json:"topic"`
	Synopsis  string   `json:"about_book"`
	FileType  string   `json:"book_file_type"`
	DetailURL string   `json:"link"`
	ImageURL  string   `json:"image_link"`
	FileRef   string   `json:"file_url"`
	ImagePath string   `json:"book_image_path"`
	FilePath  string   `json:"book_file_path"`

	// Fields below are kept in memory only.
	Ref          DetailRef `json:"-"`
	FileURL      string    `json:"-"`
	SnapshotPath string    `json:"-"`
}

// Response is the result returned by a Fetcher implementation.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// PersistSummary reports what the catalog store did with a batch.
type PersistSummary struct {
	TermID   int64
	Inserted int
	Existing int
	Rejected int
	Failed   int
}

// Total returns the number of records the store looked at.
func (s PersistSummary) Total() int {
	return s.Inserted + s.Existing + s.Rejected + s.Failed
}
