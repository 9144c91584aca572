// Package parsertest builds upstream HTML pages with the same positional
// layout the parsers expect. It is used by tests across the module.
package parsertest

import (
	"fmt"
	"html"
	"strings"
)

// Book describes the content of a generated detail page.
type Book struct {
	Title     string
	FileRef   string
	CoverSrc  string
	Authors   string
	Publisher string
	Year      string
	Language  string
	Pages     string
	FileType  string
	Topic     string
	Synopsis  string
}

// SampleBook returns a fully populated book.
func SampleBook() Book {
	return Book{
		Title:     "A History of Rome",
		FileRef:   "http://mirror.test/main/ABC123",
		CoverSrc:  "/covers/1000/abc123.jpg",
		Authors:   "Jane Doe (Translator), John Smith",
		Publisher: "Penguin",
		Year:      "2004",
		Language:  "English",
		Pages:     `320\310`,
		FileType:  "pdf",
		Topic:     "History",
		Synopsis:  "A concise history of the Roman republic.",
	}
}

// DetailRows returns the <tr> elements of a detail page in order. Tests may
// drop or edit rows before passing them to DetailPage.
func DetailRows(b Book) []string {
	rows := make([]string, 32)
	for i := range rows {
		rows[i] = fmt.Sprintf("<tr><td>Label %d:</td><td>filler %d</td></tr>", i, i)
	}
	rows[0] = `<tr><td colspan="4">Library Genesis</td></tr>`
	cover := ""
	if b.CoverSrc != "" {
		cover = fmt.Sprintf(`<img src="%s" width="240">`, html.EscapeString(b.CoverSrc))
	}
	rows[1] = fmt.Sprintf(
		`<tr><td rowspan="22"><a href="ads.php?md5=ABC123">%s</a></td><td>Title:</td><td colspan="2"><b><a href="%s">%s</a></b></td></tr>`,
		cover, html.EscapeString(b.FileRef), html.EscapeString(b.Title),
	)
	rows[10] = fmt.Sprintf(`<tr><td>Author(s):</td><td colspan="3"><b>%s</b></td></tr>`, html.EscapeString(b.Authors))
	rows[12] = cellRow("Publisher:", b.Publisher)
	rows[13] = cellRow("Year:", b.Year)
	rows[14] = fmt.Sprintf(`<tr><td>Language:</td><td>%s</td><td>Pages (biblio\tech):</td><td>%s</td></tr>`,
		html.EscapeString(b.Language), html.EscapeString(b.Pages))
	rows[18] = fmt.Sprintf(`<tr><td>Size:</td><td>2 Mb</td><td>Extension:</td><td>%s</td></tr>`, html.EscapeString(b.FileType))
	rows[22] = cellRow("Topic:", b.Topic)
	rows[31] = fmt.Sprintf(`<tr><td colspan="4">%s</td></tr>`, html.EscapeString(b.Synopsis))
	return rows
}

func cellRow(label, value string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td>%s</td></tr>`, label, html.EscapeString(value))
}

// DetailPage wraps rows in the detail page table.
func DetailPage(rows []string) string {
	return "<html><body><table rules=\"cols\">" + strings.Join(rows, "\n") + "</table></body></html>"
}

// Detail renders the detail page of b.
func Detail(b Book) string {
	return DetailPage(DetailRows(b))
}

// Listing renders a search results page whose third table lists refs, one
// per row, next to a non-detail anchor that must be ignored.
func Listing(refs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<table><tr><td>search form</td></tr></table>")
	b.WriteString("<table><tr><td>25 files found</td></tr></table>")
	b.WriteString(`<table class="c"><tr><td>ID</td><td>Author(s)</td><td>Title</td></tr>`)
	for i, ref := range refs {
		fmt.Fprintf(&b,
			`<tr><td>%d</td><td><a href="search.php?req=author">Author</a></td><td><a href="search.php?column=series">Series</a><a href="%s" id="%d">Title %d</a></td></tr>`,
			i, html.EscapeString(ref), i, i,
		)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

// Mirror renders a download mirror page whose download section links href.
func Mirror(href string) string {
	return fmt.Sprintf(
		`<html><body><div id="info"><a href="/other">other</a></div><div id="download"><h2><a href="%s">GET</a></h2><ul><li><a href="https://ipfs.test/x.epub">IPFS</a></li></ul></div></body></html>`,
		html.EscapeString(href),
	)
}
