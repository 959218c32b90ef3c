package models

import "time"

// ExtensionRequest is one (assignment, requested days) pair from a form
// submission. Order within the submission is preserved.
type ExtensionRequest struct {
	AssignmentID string
	Days         int
}

// Submission is a validated extension-request form submission.
type Submission struct {
	Email        string
	PartnerEmail string
	ClaimsDSP    bool
	DSPAnswer    string
	Timestamp    time.Time
	Requests     []ExtensionRequest
}

// HasPartner reports whether the submission names a partner.
func (s Submission) HasPartner() bool {
	return s.PartnerEmail != ""
}

// KnowsAssignments reports whether the student named specific assignments.
// When false the student is asking for a support meeting instead.
func (s Submission) KnowsAssignments() bool {
	return len(s.Requests) > 0
}
