// Package xlsx appends extracted certificate rows to a local Excel workbook.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"certsheet/internal/models"
)

// Workbook is a row sink backed by an .xlsx file. Each Append opens the file,
// writes one row below the last used row and saves it again.
type Workbook struct {
	path  string
	sheet string
	log   *slog.Logger

	mu sync.Mutex
}

// New creates a Workbook sink. The file is created on first Append if missing.
func New(path, sheet string, log *slog.Logger) *Workbook {
	if log == nil {
		log = slog.Default()
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &Workbook{path: path, sheet: sheet, log: log}
}

func (w *Workbook) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return f, nil
}

// Append writes ext as the next row.
func (w *Workbook) Append(_ context.Context, ext models.Extraction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	idx, err := f.GetSheetIndex(w.sheet)
	if err != nil {
		return fmt.Errorf("look up sheet %q: %w", w.sheet, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(w.sheet); err != nil {
			return fmt.Errorf("create sheet %q: %w", w.sheet, err)
		}
	}

	rows, err := f.GetRows(w.sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", w.sheet, err)
	}
	next := len(rows) + 1

	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}

	row := ext.Row()
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	if err := f.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", next, err)
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	w.log.Info("Appended row to workbook",
		slog.String("path", w.path),
		slog.String("sheet", w.sheet),
		slog.Int("row", next),
	)
	return nil
}
