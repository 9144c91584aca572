// Package parser extracts typed results from the three upstream page types
// (search listing, book detail, download mirror). Every parser is coupled to
// the fixed positional layout of its page and reports a
// catalog.StructuralError when that layout is not found.
package parser

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// Page names used in structural errors.
const (
	PageListing = "listing"
	PageDetail  = "detail"
	PageMirror  = "mirror"
)

func parseDocument(page, ref string, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &catalog.StructuralError{Page: page, Ref: ref, Field: "document", Reason: fmt.Sprintf("parse html: %v", err)}
	}
	return doc, nil
}

func missing(page, ref, field, format string, args ...any) error {
	return &catalog.StructuralError{Page: page, Ref: ref, Field: field, Reason: fmt.Sprintf(format, args...)}
}
