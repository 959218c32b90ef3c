package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/extension-approver/internal/roster"
	"github.com/noah-isme/extension-approver/pkg/config"
)

// WorkbookStore backs the roster with a local XLSX workbook. It exists for
// development and staging runs that should not touch a shared spreadsheet;
// it shares the GoogleStore row convention (header on row 1).
type WorkbookStore struct {
	file         *excelize.File
	path         string
	rosterSheet  string
	catalogSheet string

	once      sync.Once
	headerErr error
	headerIdx map[string]int
}

// NewWorkbookStore opens the workbook at the configured path.
func NewWorkbookStore(cfg config.RosterConfig) (*WorkbookStore, error) {
	f, err := excelize.OpenFile(cfg.WorkbookPath)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", cfg.WorkbookPath, err)
	}
	return &WorkbookStore{
		file:         f,
		path:         cfg.WorkbookPath,
		rosterSheet:  cfg.RosterSheet,
		catalogSheet: cfg.AssignmentsSheet,
	}, nil
}

// Close releases the underlying workbook handle.
func (w *WorkbookStore) Close() error {
	return w.file.Close()
}

// LookupRecord finds the roster row whose email column matches.
func (w *WorkbookStore) LookupRecord(ctx context.Context, email string) (*roster.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grid, err := w.file.GetRows(w.rosterSheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", w.rosterSheet, err)
	}
	return findRecord(w, grid, email)
}

// ColumnIndex resolves a roster column key to its zero-based position.
func (w *WorkbookStore) ColumnIndex(ctx context.Context, key string) (int, error) {
	w.once.Do(func() {
		grid, err := w.file.GetRows(w.rosterSheet)
		if err != nil {
			w.headerErr = fmt.Errorf("read sheet %q: %w", w.rosterSheet, err)
			return
		}
		if len(grid) == 0 {
			w.headerErr = fmt.Errorf("roster sheet %q is empty", w.rosterSheet)
			return
		}
		w.headerIdx = headerIndex(grid[0])
	})
	if w.headerErr != nil {
		return 0, w.headerErr
	}
	idx, ok := w.headerIdx[key]
	if !ok {
		return 0, fmt.Errorf("roster sheet has no column %q", key)
	}
	return idx, nil
}

// WriteCell updates a single cell and saves the workbook.
func (w *WorkbookStore) WriteCell(ctx context.Context, row, col int, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Errorf("bad cell coordinates (%d, %d): %w", row, col, err)
	}
	if err := w.file.SetCellValue(w.rosterSheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	if err := w.file.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// AssignmentRows returns the raw cell grid of the assignments sheet.
func (w *WorkbookStore) AssignmentRows(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grid, err := w.file.GetRows(w.catalogSheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", w.catalogSheet, err)
	}
	return grid, nil
}
