package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/extension-approver/internal/models"
	appErrors "github.com/noah-isme/extension-approver/pkg/errors"
)

// Column keys expected on the assignments sheet.
const (
	colID      = "id"
	colName    = "name"
	colDueDate = "due_date"
	colPartner = "partner"
)

// Accepted due-date layouts, tried in order.
var dueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Catalog holds the assignment list in sheet order with ID lookup.
type Catalog struct {
	ordered []models.Assignment
	byID    map[string]models.Assignment
}

// Parse builds a Catalog from the raw cell grid of the assignments sheet.
// The first row must be a header containing id, name, due_date and partner
// columns; blank rows are skipped.
func Parse(rows [][]string) (*Catalog, error) {
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignments sheet is empty")
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colID, colName, colDueDate, colPartner} {
		if _, ok := index[required]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("assignments sheet is missing the %q column", required))
		}
	}

	c := &Catalog{byID: make(map[string]models.Assignment)}
	for rowNum, row := range rows[1:] {
		id := cell(row, index[colID])
		if id == "" {
			continue
		}
		if _, dup := c.byID[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("duplicate assignment ID %q on row %d", id, rowNum+2))
		}
		due, err := parseDueDate(cell(row, index[colDueDate]))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("bad due date for assignment %q", id))
		}
		a := models.Assignment{
			ID:      id,
			Name:    cell(row, index[colName]),
			DueDate: due,
			Partner: truthy(cell(row, index[colPartner])),
		}
		c.byID[id] = a
		c.ordered = append(c.ordered, a)
	}

	return c, nil
}

// Get returns the assignment with the given ID.
func (c *Catalog) Get(id string) (models.Assignment, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// All returns assignments in sheet order.
func (c *Catalog) All() []models.Assignment {
	return c.ordered
}

// IDs returns assignment IDs in sheet order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.ordered))
	for i, a := range c.ordered {
		ids[i] = a.ID
	}
	return ids
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseDueDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("due date is blank")
	}
	var lastErr error
	for _, layout := range dueDateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func truthy(raw string) bool {
	switch strings.ToLower(raw) {
	case "yes", "true", "1", "y":
		return true
	default:
		return false
	}
}
