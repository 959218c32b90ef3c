package models

import "time"

// OutcomeKind is the terminal state of one policy evaluation.
type OutcomeKind string

const (
	OutcomeRequestedMeeting OutcomeKind = "requested_meeting"
	OutcomeEscalated        OutcomeKind = "escalated"
	OutcomeAutoApproved     OutcomeKind = "auto_approved"
)

// Outcome is the result of a single policy evaluation. Escalation is a
// normal outcome, not an error: Reason carries the human-readable cause.
type Outcome struct {
	Kind     OutcomeKind
	Reason   string
	Warnings []string
}

// DecisionLog is one audit-log row recorded per evaluation.
type DecisionLog struct {
	ID           string      `db:"id" json:"id"`
	StudentEmail string      `db:"student_email" json:"student_email"`
	PartnerEmail *string     `db:"partner_email" json:"partner_email,omitempty"`
	Outcome      OutcomeKind `db:"outcome" json:"outcome"`
	Reason       string      `db:"reason" json:"reason"`
	WarningCount int         `db:"warning_count" json:"warning_count"`
	DurationMs   int64       `db:"duration_ms" json:"duration_ms"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// DecisionLogFilter narrows audit-log listings.
type DecisionLogFilter struct {
	Email   string
	Outcome OutcomeKind
	Limit   int
}
