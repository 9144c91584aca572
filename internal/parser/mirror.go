package parser

import (
	"fmt"
	"strings"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// MirrorParser finds the download link on a mirror page.
type MirrorParser struct{}

// Parse returns the raw href of the first anchor inside div#download.
// Extension filtering and URL resolution are left to the caller.
func (MirrorParser) Parse(ref string, body []byte) (string, error) {
	doc, err := parseDocument(PageMirror, ref, body)
	if err != nil {
		return "", err
	}
	section := doc.Find("div#download").First()
	if section.Length() == 0 {
		return "", missing(PageMirror, ref, "download", "download section not found")
	}
	href, ok := section.Find("a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", fmt.Errorf("mirror %s: %w", ref, catalog.ErrNoDownloadLink)
	}
	return strings.TrimSpace(href), nil
}
