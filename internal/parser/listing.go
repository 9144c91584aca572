package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// listingLinkCell is the cell holding the title anchors in each result row.
const listingLinkCell = 2

// ListingParser reads detail references out of one search results page.
type ListingParser struct {
	// TableIndex is the zero-based position of the results table among all
	// tables of the page.
	TableIndex int
	// DetailPrefix filters anchors down to book detail links.
	DetailPrefix string
}

// ListingPage is the parsed content of one search results page.
type ListingPage struct {
	Refs []catalog.DetailRef
	// SkippedRows counts result rows too short to hold the link cell.
	SkippedRows int
}

// Parse returns the detail references of the page in document order.
// A page whose results table is absent is a structural failure; a table
// with only a header row yields no references and no error.
func (p ListingParser) Parse(body []byte) (ListingPage, error) {
	doc, err := parseDocument(PageListing, "", body)
	if err != nil {
		return ListingPage{}, err
	}
	tables := doc.Find("table")
	if p.TableIndex < 0 || tables.Length() <= p.TableIndex {
		return ListingPage{}, missing(PageListing, "", "table", "results table %d not found (page has %d tables)", p.TableIndex, tables.Length())
	}

	var page ListingPage
	rows := tables.Eq(p.TableIndex).Find("tr")
	// The first row is the column header.
	rows.Slice(min(1, rows.Length()), rows.Length()).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= listingLinkCell {
			page.SkippedRows++
			return
		}
		cells.Eq(listingLinkCell).Find("a").Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok || !strings.HasPrefix(href, p.DetailPrefix) {
				return
			}
			page.Refs = append(page.Refs, catalog.DetailRef(href))
		})
	})
	return page, nil
}
