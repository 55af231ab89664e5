package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

var errNoHeader = errors.New("no header row")

type csvReader struct {
	src config.Source
}

// Fetch reads the whole CSV file. The first row is the header.
func (r *csvReader) Fetch(ctx context.Context) (snapshot.Raw, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	data, err := os.ReadFile(r.src.Path)
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	raw, err := parseCSV(bytes.NewReader(data))
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	return raw, nil
}

// parseCSV decodes a header-first CSV stream. Short rows leave trailing
// fields absent; extra cells beyond the header are ignored.
func parseCSV(r io.Reader) (snapshot.Raw, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return snapshot.Raw{}, fmt.Errorf("parse csv: %w", err)
	}
	return fromGrid(rows)
}

// fromGrid turns a header row plus data rows into a Raw. Cells that are
// blank stay in the record as empty strings and normalize as missing.
// Shared by the csv, gsheet and xlsx readers.
func fromGrid(rows [][]string) (snapshot.Raw, error) {
	if len(rows) == 0 {
		return snapshot.Raw{}, errNoHeader
	}
	header := make([]string, 0, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header = append(header, h)
	}

	raw := snapshot.Raw{Records: make([]snapshot.Record, 0, len(rows)-1)}
	keep := make([]bool, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		keep[i] = true
		raw.Fields = append(raw.Fields, h)
	}
	if len(raw.Fields) == 0 {
		return snapshot.Raw{}, errNoHeader
	}

	// Blank rows inside the data still occupy a position, so they stay as
	// all-missing records and row indexes match the sheet. Trailing blank
	// rows are export padding.
	data := rows[1:]
	for len(data) > 0 && blankRow(data[len(data)-1]) {
		data = data[:len(data)-1]
	}
	for _, row := range data {
		rec := make(snapshot.Record, len(raw.Fields))
		for i, cell := range row {
			if i >= len(header) || !keep[i] {
				continue
			}
			rec[header[i]] = cell
		}
		raw.Records = append(raw.Records, rec)
	}
	return raw, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
