package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/parser/parsertest"
)

func TestListingParser(t *testing.T) {
	t.Parallel()

	p := ListingParser{TableIndex: 2, DetailPrefix: "book"}
	page, err := p.Parse([]byte(parsertest.Listing("book/index.php?md5=A", "book/index.php?md5=B", "book/index.php?md5=A")))
	require.NoError(t, err)
	assert.Equal(t, []catalog.DetailRef{
		"book/index.php?md5=A",
		"book/index.php?md5=B",
		"book/index.php?md5=A",
	}, page.Refs)
	assert.Zero(t, page.SkippedRows)
}

func TestListingParserHeaderOnly(t *testing.T) {
	t.Parallel()

	p := ListingParser{TableIndex: 2, DetailPrefix: "book"}
	page, err := p.Parse([]byte(parsertest.Listing()))
	require.NoError(t, err)
	assert.Empty(t, page.Refs)
}

func TestListingParserShortRowsAreSkipped(t *testing.T) {
	t.Parallel()

	body := `<table></table><table></table><table>
<tr><td>h</td><td>h</td><td>h</td></tr>
<tr><td colspan="3">no results</td></tr>
<tr><td>1</td><td>a</td><td><a href="book/index.php?md5=C">C</a></td></tr>
</table>`
	p := ListingParser{TableIndex: 2, DetailPrefix: "book"}
	page, err := p.Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []catalog.DetailRef{"book/index.php?md5=C"}, page.Refs)
	assert.Equal(t, 1, page.SkippedRows)
}

func TestListingParserMissingTable(t *testing.T) {
	t.Parallel()

	p := ListingParser{TableIndex: 2, DetailPrefix: "book"}
	_, err := p.Parse([]byte("<html><body><table></table></body></html>"))
	require.Error(t, err)
	var se *catalog.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, PageListing, se.Page)
	assert.Equal(t, "table", se.Field)
}

func TestDetailParser(t *testing.T) {
	t.Parallel()

	p, err := NewDetailParser("https://libgen.rs")
	require.NoError(t, err)

	rec, err := p.Parse("book/index.php?md5=ABC123", []byte(parsertest.Detail(parsertest.SampleBook())))
	require.NoError(t, err)

	assert.Equal(t, "A History of Rome", rec.Title)
	assert.Equal(t, []string{"Jane Doe", "John Smith"}, rec.Authors)
	assert.Equal(t, "Penguin", rec.Publisher)
	assert.Equal(t, "2004", rec.Year)
	assert.Equal(t, "English", rec.Language)
	assert.Equal(t, "320", rec.Pages)
	assert.Equal(t, "History", rec.Topic)
	assert.Equal(t, "pdf", rec.FileType)
	assert.Equal(t, "A concise history of the Roman republic.", rec.Synopsis)
	assert.Equal(t, "https://libgen.rs/covers/1000/abc123.jpg", rec.ImageURL)
	assert.Equal(t, "http://mirror.test/main/ABC123", rec.FileRef)
}

func TestDetailParserMissingCoverIsTolerated(t *testing.T) {
	t.Parallel()

	p, err := NewDetailParser("https://libgen.rs")
	require.NoError(t, err)
	book := parsertest.SampleBook()
	book.CoverSrc = ""

	rec, err := p.Parse("ref", []byte(parsertest.Detail(book)))
	require.NoError(t, err)
	assert.Empty(t, rec.ImageURL)
	assert.Equal(t, "A History of Rome", rec.Title)
}

func TestDetailParserStructuralFailures(t *testing.T) {
	t.Parallel()

	p, err := NewDetailParser("https://libgen.rs")
	require.NoError(t, err)

	tests := []struct {
		name  string
		page  func() string
		field string
	}{
		{
			name: "missing synopsis row",
			page: func() string {
				rows := parsertest.DetailRows(parsertest.SampleBook())
				return parsertest.DetailPage(rows[:31])
			},
			field: "synopsis",
		},
		{
			name: "single anchor in header",
			page: func() string {
				rows := parsertest.DetailRows(parsertest.SampleBook())
				rows[1] = `<tr><td>Title:</td><td><a href="x">only</a></td></tr>`
				return parsertest.DetailPage(rows)
			},
			field: "title",
		},
		{
			name: "authors without bold",
			page: func() string {
				rows := parsertest.DetailRows(parsertest.SampleBook())
				rows[10] = `<tr><td>Author(s):</td><td>Jane Doe</td></tr>`
				return parsertest.DetailPage(rows)
			},
			field: "authors",
		},
		{
			name: "language row without pages cell",
			page: func() string {
				rows := parsertest.DetailRows(parsertest.SampleBook())
				rows[14] = `<tr><td>Language:</td><td>English</td></tr>`
				return parsertest.DetailPage(rows)
			},
			field: "pages",
		},
		{
			name:  "no table",
			page:  func() string { return "<html><body><p>gone</p></body></html>" },
			field: "table",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse("book/index.php?md5=BAD", []byte(tt.page()))
			require.Error(t, err)
			var se *catalog.StructuralError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.field, se.Field)
			assert.Equal(t, "book/index.php?md5=BAD", se.Ref)
		})
	}
}

func TestNewDetailParserRejectsRelativeBase(t *testing.T) {
	t.Parallel()

	_, err := NewDetailParser("/covers")
	require.Error(t, err)
	assert.True(t, catalog.IsConfig(err))
}

func TestMirrorParser(t *testing.T) {
	t.Parallel()

	href, err := MirrorParser{}.Parse("m", []byte(parsertest.Mirror("https://download.test/main/abc/Rome.pdf")))
	require.NoError(t, err)
	assert.Equal(t, "https://download.test/main/abc/Rome.pdf", href)
}

func TestMirrorParserFailures(t *testing.T) {
	t.Parallel()

	_, err := MirrorParser{}.Parse("m", []byte(`<div id="info"><a href="x.pdf">x</a></div>`))
	assert.True(t, catalog.IsStructural(err))

	_, err = MirrorParser{}.Parse("m", []byte(`<div id="download"><p>nothing here</p></div>`))
	assert.True(t, errors.Is(err, catalog.ErrNoDownloadLink))
}
