package roster

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/extension-approver/internal/models"
	appErrors "github.com/noah-isme/extension-approver/pkg/errors"
)

type pendingWrite struct {
	key   string
	value interface{}
}

// Record holds a single roster row: a local cache of the last dispatched
// column values plus a queue of writes not yet committed to the store. The
// cache never includes pending writes until Flush succeeds.
type Record struct {
	store   Store
	row     int
	columns map[string]string
	pending []pendingWrite
}

// NewRecord builds a Record over cached column values at the given row.
func NewRecord(store Store, row int, columns map[string]string) *Record {
	if columns == nil {
		columns = make(map[string]string)
	}
	return &Record{store: store, row: row, columns: columns}
}

// Row returns the record's position in the backing store.
func (r *Record) Row() int { return r.row }

// Name returns the student's name column.
func (r *Record) Name() string { return r.columns[models.ColName] }

// Email returns the student's email column.
func (r *Record) Email() string { return r.columns[models.ColEmail] }

// SID returns the student ID column.
func (r *Record) SID() string { return r.columns[models.ColSID] }

// IsDSP reports whether the roster marks the student for DSP accommodations.
func (r *Record) IsDSP() bool {
	return truthy(r.columns[models.ColIsDSP])
}

// Status returns the current approval status.
func (r *Record) Status() models.ApprovalStatus {
	return models.ApprovalStatus(strings.TrimSpace(r.columns[models.ColApprovalStatus]))
}

// EmailStatus returns the current confirmation-email status.
func (r *Record) EmailStatus() models.EmailStatus {
	return models.EmailStatus(strings.TrimSpace(r.columns[models.ColEmailStatus]))
}

// Column returns the raw cached value for a column key.
func (r *Record) Column(key string) (string, bool) {
	v, ok := r.columns[key]
	return v, ok
}

// ExistingDays reads the already-granted extension length for an assignment.
// A blank cell means no prior request (ok=false). A non-blank cell that does
// not parse as an integer is a data-integrity failure, never a silent zero.
func (r *Record) ExistingDays(assignmentID string) (int, bool, error) {
	raw, present := r.columns[assignmentID]
	raw = strings.TrimSpace(raw)
	if !present || raw == "" {
		return 0, false, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, appErrors.Wrap(err, appErrors.ErrDataIntegrity.Code, appErrors.ErrDataIntegrity.Status,
			fmt.Sprintf("unreadable value %q for assignment %s (row %d, email %s)", raw, assignmentID, r.row, r.Email()))
	}
	return days, true, nil
}

// QueueWrite appends a pending write. It never fails and has no externally
// observable effect until Flush.
func (r *Record) QueueWrite(key string, value interface{}) {
	r.pending = append(r.pending, pendingWrite{key: key, value: value})
}

// QueueApprovalStatus queues a status transition.
func (r *Record) QueueApprovalStatus(status models.ApprovalStatus) {
	r.QueueWrite(models.ColApprovalStatus, string(status))
}

// QueueEmailStatus queues an email-status transition.
func (r *Record) QueueEmailStatus(status models.EmailStatus) {
	r.QueueWrite(models.ColEmailStatus, string(status))
}

// PendingCount returns the number of not-yet-committed writes.
func (r *Record) PendingCount() int { return len(r.pending) }

// Flush commits every queued write to the store in queue order, then swaps
// the committed values into the local cache and clears the queue. The cache
// is only updated once the whole queue has committed, so no caller observes
// a half-flushed record. Any store failure is fatal for the evaluation; the
// queue is cleared to avoid re-committing stale values on a later flush.
// Flushing an empty queue is a no-op.
func (r *Record) Flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	staged := make(map[string]string, len(r.pending))
	for _, w := range r.pending {
		col, err := r.store.ColumnIndex(ctx, w.key)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status,
				fmt.Sprintf("no roster column for key %q (row %d)", w.key, r.row))
		}
		if err := r.store.WriteCell(ctx, r.row, col, w.value); err != nil {
			return appErrors.Wrap(err, appErrors.ErrStoreWrite.Code, appErrors.ErrStoreWrite.Status,
				fmt.Sprintf("failed to write column %q (row %d)", w.key, r.row))
		}
		staged[w.key] = fmt.Sprint(w.value)
	}

	for key, value := range staged {
		r.columns[key] = value
	}
	r.pending = nil
	return nil
}

func truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1", "y":
		return true
	default:
		return false
	}
}
