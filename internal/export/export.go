// Package export merges triage results back into the source keyword table
// and writes the annotated table out as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/keywordlens/keywordlens/internal/triage"
)

// StatusUnprocessed marks rows whose keyword never entered the pipeline.
const StatusUnprocessed = "unprocessed"

// Rows is a rectangular keyword table.
type Rows struct {
	Header  []string
	Records [][]string
}

// keywordHeaders are recognized keyword column names, in priority order.
var keywordHeaders = []string{"关键词", "Keyword", "Search Term", "keyword"}

// KeywordColumn returns the index of the keyword column. Known header names
// win; otherwise the first column is assumed.
func KeywordColumn(header []string) int {
	for _, name := range keywordHeaders {
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				return i
			}
		}
	}
	return 0
}

// Merge annotates rows with triage outcomes: a Score column and a Status
// column are inserted right after the keyword column, replacing any
// pre-existing ones. Rows whose keyword has no triage entry get an empty
// score and the unprocessed status.
func Merge(rows *Rows, statuses map[string]triage.Item) (*Rows, error) {
	if rows == nil || len(rows.Header) == 0 {
		return nil, fmt.Errorf("no rows to export")
	}

	kwCol := KeywordColumn(rows.Header)

	// Column indexes to strip, so re-exporting never duplicates them.
	drop := make(map[int]bool)
	for i, h := range rows.Header {
		if i == kwCol {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "score", "status":
			drop[i] = true
		}
	}

	strip := func(row []string) []string {
		out := make([]string, 0, len(row))
		for i, v := range row {
			if !drop[i] {
				out = append(out, v)
			}
		}
		return out
	}

	// The keyword column keeps its position among the surviving columns.
	newKwCol := kwCol
	for i := range drop {
		if i < kwCol {
			newKwCol--
		}
	}

	header := insertAfter(strip(rows.Header), newKwCol, "Score", "Status")
	records := make([][]string, 0, len(rows.Records))

	for _, rec := range rows.Records {
		// Ragged rows are padded to the header width.
		if len(rec) < len(rows.Header) {
			padded := make([]string, len(rows.Header))
			copy(padded, rec)
			rec = padded
		}
		keyword := strings.TrimSpace(rec[kwCol])

		score, status := "", StatusUnprocessed
		if it, ok := statuses[keyword]; ok {
			score = strconv.FormatFloat(it.Score, 'f', 4, 64)
			status = string(it.Status)
		}
		records = append(records, insertAfter(strip(rec), newKwCol, score, status))
	}

	return &Rows{Header: header, Records: records}, nil
}

// insertAfter returns row with values spliced in right after index i.
func insertAfter(row []string, i int, values ...string) []string {
	out := make([]string, 0, len(row)+len(values))
	out = append(out, row[:i+1]...)
	out = append(out, values...)
	out = append(out, row[i+1:]...)
	return out
}

// ReadCSV parses a keyword table. The first record is the header.
func ReadCSV(r io.Reader) (*Rows, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}
	return &Rows{Header: all[0], Records: all[1:]}, nil
}

// WriteCSV writes the table to path, creating parent directories.
func WriteCSV(path string, rows *Rows) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(rows.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(rows.Records); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	w.Flush()
	return w.Error()
}
