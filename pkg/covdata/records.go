package covdata

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dkoosis/buildgate/pkg/coverage"
)

// Document is the buildgate records JSON format.
type Document struct {
	Records []coverage.Record `json:"records"`
}

func parseRecords(r io.Reader) ([]coverage.Record, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing records: %w", err)
	}
	for i, rec := range doc.Records {
		if rec.Path == "" {
			return nil, fmt.Errorf("record #%d: empty path", i+1)
		}
		for m, c := range rec.Counters {
			if c.Covered < 0 || c.Total < c.Covered {
				return nil, fmt.Errorf("record %s: %s counter %d/%d is inconsistent", rec.Path, m, c.Covered, c.Total)
			}
		}
	}
	return doc.Records, nil
}

// WriteRecords writes records in the format Load reads back.
func WriteRecords(w io.Writer, records []coverage.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Document{Records: records})
}
