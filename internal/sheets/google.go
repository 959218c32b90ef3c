package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/noah-isme/extension-approver/internal/models"
	"github.com/noah-isme/extension-approver/internal/roster"
	"github.com/noah-isme/extension-approver/pkg/config"
)

// GoogleStore backs the roster with a Google Sheets spreadsheet. Row
// positions handed to Records are 1-based spreadsheet row numbers, so the
// header row is row 1 and the first student sits on row 2.
type GoogleStore struct {
	svc           *sheets.Service
	spreadsheetID string
	rosterSheet   string
	catalogSheet  string

	once      sync.Once
	headerErr error
	headerIdx map[string]int
}

// NewGoogleStore dials the Sheets API with service-account credentials.
func NewGoogleStore(ctx context.Context, cfg config.RosterConfig) (*GoogleStore, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("dial sheets api: %w", err)
	}
	return &GoogleStore{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		rosterSheet:   cfg.RosterSheet,
		catalogSheet:  cfg.AssignmentsSheet,
	}, nil
}

// LookupRecord finds the roster row whose email column matches.
func (g *GoogleStore) LookupRecord(ctx context.Context, email string) (*roster.Record, error) {
	grid, err := g.readGrid(ctx, g.rosterSheet)
	if err != nil {
		return nil, err
	}
	return findRecord(g, grid, email)
}

// ColumnIndex resolves a roster column key to its zero-based position.
func (g *GoogleStore) ColumnIndex(ctx context.Context, key string) (int, error) {
	g.once.Do(func() {
		grid, err := g.readGrid(ctx, g.rosterSheet)
		if err != nil {
			g.headerErr = err
			return
		}
		if len(grid) == 0 {
			g.headerErr = fmt.Errorf("roster sheet %q is empty", g.rosterSheet)
			return
		}
		g.headerIdx = headerIndex(grid[0])
	})
	if g.headerErr != nil {
		return 0, g.headerErr
	}
	idx, ok := g.headerIdx[key]
	if !ok {
		return 0, fmt.Errorf("roster sheet has no column %q", key)
	}
	return idx, nil
}

// WriteCell updates a single cell using RAW input (no formula parsing).
func (g *GoogleStore) WriteCell(ctx context.Context, row, col int, value interface{}) error {
	cellRange := fmt.Sprintf("%s!%s%d", g.rosterSheet, columnLetters(col), row)
	_, err := g.svc.Spreadsheets.Values.
		Update(g.spreadsheetID, cellRange, &sheets.ValueRange{Values: [][]interface{}{{value}}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", cellRange, err)
	}
	return nil
}

// AssignmentRows returns the raw cell grid of the assignments sheet for the
// catalog parser.
func (g *GoogleStore) AssignmentRows(ctx context.Context) ([][]string, error) {
	return g.readGrid(ctx, g.catalogSheet)
}

func (g *GoogleStore) readGrid(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.
		Get(g.spreadsheetID, fmt.Sprintf("%s!A1:ZZ", sheet)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	grid := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}
		grid[i] = cells
	}
	return grid, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

// columnLetters converts a zero-based column index to A1 letters.
func columnLetters(col int) string {
	letters := ""
	for col >= 0 {
		letters = string(rune('A'+col%26)) + letters
		col = col/26 - 1
	}
	return letters
}

func findRecord(store roster.Store, grid [][]string, email string) (*roster.Record, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("roster sheet is empty")
	}
	headers := grid[0]
	idx := headerIndex(headers)
	emailCol, ok := idx[models.ColEmail]
	if !ok {
		return nil, fmt.Errorf("roster sheet has no %q column", models.ColEmail)
	}

	want := strings.ToLower(strings.TrimSpace(email))
	for i, row := range grid[1:] {
		if emailCol >= len(row) {
			continue
		}
		if strings.ToLower(strings.TrimSpace(row[emailCol])) != want {
			continue
		}
		columns := make(map[string]string, len(headers))
		for j, h := range headers {
			key := strings.TrimSpace(h)
			if key == "" {
				continue
			}
			if j < len(row) {
				columns[key] = row[j]
			} else {
				columns[key] = ""
			}
		}
		// Grid index 0 is the header on spreadsheet row 1.
		return roster.NewRecord(store, i+2, columns), nil
	}
	return nil, roster.ErrRecordNotFound(email)
}
