package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []catalog.BookRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
