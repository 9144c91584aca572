package report

import (
	"encoding/json"
	"io"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// jsonRecord keeps authors as an array and renders missing paths as null.
type jsonRecord struct {
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
	ImagePath *string  `json:"book_image_path"`
	FilePath  *string  `json:"book_file_path"`
}

func toJSONRecord(rec catalog.BookRecord) jsonRecord {
	authors := rec.Authors
	if authors == nil {
		authors = []string{}
	}
	return jsonRecord{
		Title:     rec.Title,
		Authors:   authors,
		Publisher: rec.Publisher,
		Year:      rec.Year,
		Language:  rec.Language,
		Pages:     rec.Pages,
		Topic:     rec.Topic,
		Synopsis:  rec.Synopsis,
		FileType:  rec.FileType,
		DetailURL: rec.DetailURL,
		ImageURL:  rec.ImageURL,
		FileRef:   rec.FileRef,
		ImagePath: optional(rec.ImagePath),
		FilePath:  optional(rec.FilePath),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []catalog.BookRecord) error {
	out := make([]jsonRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, toJSONRecord(rec))
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(out)
}
