package models

import "time"

// Assignment describes a single assignment from the catalog sheet.
type Assignment struct {
	ID      string
	Name    string
	DueDate time.Time
	Partner bool
}

// PastDue reports whether a request made at the given time arrives after the
// assignment's deadline.
func (a Assignment) PastDue(at time.Time) bool {
	return a.DueDate.Before(at)
}
