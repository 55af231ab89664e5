package source

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

type xlsxReader struct {
	src config.Source
}

// Fetch opens the workbook and reads one sheet. The workbook is reopened on
// every fetch because the logger keeps appending rows to it.
func (r *xlsxReader) Fetch(ctx context.Context) (snapshot.Raw, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	f, err := excelize.OpenFile(r.src.Path)
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, err)
	}
	defer f.Close()

	sheet := r.src.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return snapshot.Raw{}, unavailable(r.src, fmt.Errorf("sheet %q not found", sheet))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, fmt.Errorf("read sheet %q: %w", sheet, err))
	}
	raw, err := fromGrid(rows)
	if err != nil {
		return snapshot.Raw{}, unavailable(r.src, fmt.Errorf("sheet %q: %w", sheet, err))
	}
	return raw, nil
}
