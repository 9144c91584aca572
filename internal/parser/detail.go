package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/normalize"
)

// Row offsets of the detail table, counted over every <tr> of the first
// table in document order.
const (
	rowHeader    = 1
	rowAuthors   = 10
	rowPublisher = 12
	rowYear      = 13
	rowLanguage  = 14
	rowFileType  = 18
	rowTopic     = 22
	rowSynopsis  = 31
)

// DetailParser reads a BookRecord out of a detail page.
type DetailParser struct {
	// ImageBase is the host cover image sources are resolved against.
	ImageBase *url.URL
}

// NewDetailParser validates the cover image base URL.
func NewDetailParser(imageBase string) (DetailParser, error) {
	base, err := url.Parse(imageBase)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return DetailParser{}, &catalog.ConfigError{Field: "search.image_base_url", Reason: "must be an absolute URL"}
	}
	return DetailParser{ImageBase: base}, nil
}

// Parse extracts the positional fields. ref only labels errors. The returned
// record has no DetailURL, Ref or local paths yet.
func (p DetailParser) Parse(ref string, body []byte) (catalog.BookRecord, error) {
	doc, err := parseDocument(PageDetail, ref, body)
	if err != nil {
		return catalog.BookRecord{}, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return catalog.BookRecord{}, missing(PageDetail, ref, "table", "detail table not found")
	}
	rows := &detailRows{ref: ref, rows: table.Find("tr")}

	header, err := rows.row(rowHeader, "title")
	if err != nil {
		return catalog.BookRecord{}, err
	}
	anchors := header.Find("a")
	if anchors.Length() < 2 {
		return catalog.BookRecord{}, missing(PageDetail, ref, "title", "row %d has %d anchors, want 2", rowHeader, anchors.Length())
	}
	titleAnchor := anchors.Eq(1)
	title := strings.TrimSpace(titleAnchor.Text())
	if title == "" {
		return catalog.BookRecord{}, missing(PageDetail, ref, "title", "title anchor is empty")
	}
	fileRef, ok := titleAnchor.Attr("href")
	if !ok || strings.TrimSpace(fileRef) == "" {
		return catalog.BookRecord{}, missing(PageDetail, ref, "file_url", "title anchor has no href")
	}

	rec := catalog.BookRecord{
		Title:    title,
		FileRef:  strings.TrimSpace(fileRef),
		ImageURL: p.coverURL(header),
	}

	authorsRow, err := rows.row(rowAuthors, "authors")
	if err != nil {
		return catalog.BookRecord{}, err
	}
	bold := authorsRow.Find("b").First()
	if bold.Length() == 0 {
		return catalog.BookRecord{}, missing(PageDetail, ref, "authors", "row %d has no <b> element", rowAuthors)
	}
	rec.Authors = normalize.SplitAuthors(bold.Text())

	fields := []struct {
		dst   *string
		row   int
		cell  int
		field string
	}{
		{&rec.Publisher, rowPublisher, 1, "publisher"},
		{&rec.Year, rowYear, 1, "year"},
		{&rec.Language, rowLanguage, 1, "language"},
		{&rec.Pages, rowLanguage, 3, "pages"},
		{&rec.Topic, rowTopic, 1, "topic"},
		{&rec.FileType, rowFileType, 3, "file_type"},
		{&rec.Synopsis, rowSynopsis, 0, "synopsis"},
	}
	for _, f := range fields {
		text, err := rows.cell(f.row, f.cell, f.field)
		if err != nil {
			return catalog.BookRecord{}, err
		}
		*f.dst = text
	}
	// Page counts are published as "<pages>\<pages with front matter>".
	rec.Pages = strings.TrimSpace(strings.SplitN(rec.Pages, `\`, 2)[0])
	return rec, nil
}

// coverURL resolves the first image of the header row. A missing cover is
// not fatal; the record simply carries no image link.
func (p DetailParser) coverURL(header *goquery.Selection) string {
	src, ok := header.Find("img").First().Attr("src")
	src = strings.TrimSpace(src)
	if !ok || src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if p.ImageBase == nil {
		return ref.String()
	}
	return p.ImageBase.ResolveReference(ref).String()
}

type detailRows struct {
	ref  string
	rows *goquery.Selection
}

func (d *detailRows) row(i int, field string) (*goquery.Selection, error) {
	if d.rows.Length() <= i {
		return nil, missing(PageDetail, d.ref, field, "row %d missing (table has %d rows)", i, d.rows.Length())
	}
	return d.rows.Eq(i), nil
}

func (d *detailRows) cell(row, cell int, field string) (string, error) {
	sel, err := d.row(row, field)
	if err != nil {
		return "", err
	}
	cells := sel.Find("td")
	if cells.Length() <= cell {
		return "", missing(PageDetail, d.ref, field, "row %d has %d cells, want cell %d", row, cells.Length(), cell)
	}
	return strings.TrimSpace(cells.Eq(cell).Text()), nil
}
