package models

// ApprovalStatus tracks where a roster row sits in the review pipeline.
// Exactly one status holds at a time; transitions within a single policy
// evaluation are one-directional.
type ApprovalStatus string

const (
	ApprovalStatusRequestedMeeting ApprovalStatus = "Requested Meeting"
	ApprovalStatusPending          ApprovalStatus = "Pending"
	ApprovalStatusAutoApproved     ApprovalStatus = "Auto Approved"
	ApprovalStatusManualApproved   ApprovalStatus = "Manually Approved"
)

// EmailStatus tracks the confirmation-email lifecycle for a roster row.
type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "Pending Approval"
	EmailStatusInQueue    EmailStatus = "In Queue"
	EmailStatusAutoSent   EmailStatus = "Auto Sent"
	EmailStatusManualSent EmailStatus = "Manually Sent"
)

// Fixed roster column keys. Every other column key is an assignment ID whose
// cell holds the number of extension days granted for that assignment.
const (
	ColName           = "name"
	ColEmail          = "email"
	ColSID            = "sid"
	ColIsDSP          = "is_dsp"
	ColApprovalStatus = "approval_status"
	ColEmailStatus    = "email_status"
	ColEmailComments  = "email_comments"
)

// WorkInProgress reports whether the status indicates an unresolved prior
// request. A blank status and both approval states count as clean baselines.
func (s ApprovalStatus) WorkInProgress() bool {
	switch s {
	case ApprovalStatusRequestedMeeting, ApprovalStatusPending:
		return true
	default:
		return false
	}
}
