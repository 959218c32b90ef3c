package roster

import (
	"context"
	"fmt"

	appErrors "github.com/noah-isme/extension-approver/pkg/errors"
)

// Store is the tabular backing store for the roster sheet. Implementations
// live in internal/sheets; the policy engine only sees this surface.
type Store interface {
	// LookupRecord finds the roster row for an email.
	LookupRecord(ctx context.Context, email string) (*Record, error)
	// ColumnIndex resolves a column key to its zero-based position.
	ColumnIndex(ctx context.Context, key string) (int, error)
	// WriteCell commits a single cell value at (row, col).
	WriteCell(ctx context.Context, row, col int, value interface{}) error
}

// ErrRecordNotFound reports a missing roster row for an email.
func ErrRecordNotFound(email string) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no roster record for %s", email))
}
