// Package report writes the flat run report and packs the run folder.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// Columns is the fixed report column order.
var Columns = []string{
	"title", "authors", "publisher", "year", "language", "pages",
	"topic", "about_book", "book_file_type", "link", "image_link",
	"file_url", "book_image_path", "book_file_path",
}

// AuthorSeparator joins authors in flat formats.
const AuthorSeparator = ", "

// Extension returns the file extension written for format. The spreadsheet
// format is written as Office Open XML.
func Extension(format catalog.OutputFormat) (string, error) {
	switch format {
	case catalog.FormatCSV:
		return "csv", nil
	case catalog.FormatJSON:
		return "json", nil
	case catalog.FormatXLS:
		return "xlsx", nil
	default:
		return "", &catalog.ConfigError{Field: "output_format", Reason: fmt.Sprintf("unsupported format %q", format)}
	}
}

// Encode writes records to w in the given format.
func Encode(w io.Writer, format catalog.OutputFormat, records []catalog.BookRecord) error {
	switch format {
	case catalog.FormatCSV:
		return WriteCSV(w, records)
	case catalog.FormatJSON:
		return WriteJSON(w, records)
	case catalog.FormatXLS:
		return WriteSpreadsheet(w, records)
	default:
		return &catalog.ConfigError{Field: "output_format", Reason: fmt.Sprintf("unsupported format %q", format)}
	}
}

// Write creates <dir>/<name>.<ext> and encodes records into it. A zero-length
// batch yields a header-only report.
func Write(dir, name string, format catalog.OutputFormat, records []catalog.BookRecord) (string, error) {
	ext, err := Extension(format)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+"."+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", &catalog.FilesystemError{Op: "create report", Path: path, Err: err}
	}
	if err := Encode(f, format, records); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s report: %w", format, err)
	}
	if err := f.Close(); err != nil {
		return "", &catalog.FilesystemError{Op: "close report", Path: path, Err: err}
	}
	return path, nil
}

// Row flattens rec in Columns order.
func Row(rec catalog.BookRecord) []string {
	return []string{
		rec.Title,
		strings.Join(rec.Authors, AuthorSeparator),
		rec.Publisher,
		rec.Year,
		rec.Language,
		rec.Pages,
		rec.Topic,
		rec.Synopsis,
		rec.FileType,
		rec.DetailURL,
		rec.ImageURL,
		rec.FileRef,
		rec.ImagePath,
		rec.FilePath,
	}
}
