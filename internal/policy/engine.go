package policy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/extension-approver/internal/catalog"
	"github.com/noah-isme/extension-approver/internal/models"
	"github.com/noah-isme/extension-approver/internal/roster"
	appErrors "github.com/noah-isme/extension-approver/pkg/errors"
)

// Thresholds configures the auto-approval policy. AutoApproveDays of zero or
// below disables auto-approval entirely: every request escalates.
type Thresholds struct {
	AutoApproveDays          int
	DSPAutoApproveDays       int
	MaxRequestsPerSubmission int
}

type notifier interface {
	Notify(message string, autoApprove bool)
	AddWarning(message string)
	Suppress()
}

type reporter interface {
	SendConfirmation(ctx context.Context, target *roster.Record, cat *catalog.Catalog) error
}

// ruleResult records one escalation rule that fired during submission
// processing. Rules are evaluated in a fixed order and every result is kept;
// the retained escalation reason is the LAST rule to fire. The
// too-many-requests rule is evaluated before the per-assignment rules, so a
// per-assignment rule firing later overwrites its reason. That ordering
// matches the production behaviour this engine replaces and is deliberate.
type ruleResult struct {
	rule   string
	reason string
}

// Engine evaluates one extension-request submission against the roster
// state of a student and optional partner. One Engine serves exactly one
// evaluation; records are not reusable across submissions.
type Engine struct {
	submission *models.Submission
	student    *roster.Record
	partner    *roster.Record
	catalog    *catalog.Catalog
	thresholds Thresholds
	notifier   notifier
	reporter   reporter
	logger     *zap.Logger

	warnings []string
}

// NewEngine constructs a policy engine. The partner record may be nil.
func NewEngine(
	submission *models.Submission,
	student *roster.Record,
	partner *roster.Record,
	cat *catalog.Catalog,
	thresholds Thresholds,
	n notifier,
	rep reporter,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		submission: submission,
		student:    student,
		partner:    partner,
		catalog:    cat,
		thresholds: thresholds,
		notifier:   n,
		reporter:   rep,
		logger:     logger,
	}
}

// Apply runs the evaluation: meeting-request early exit, submission
// processing, work-in-progress blocking, warning accumulation, then
// auto-approval with confirmation email. Escalation is a normal outcome. A
// non-nil outcome alongside a non-nil error means roster writes committed
// but the confirmation email did not go out.
func (e *Engine) Apply(ctx context.Context, silent bool) (*models.Outcome, error) {
	if silent {
		e.notifier.Suppress()
	}

	// Step 1: a submission naming no assignments is a request for a
	// support meeting. Nothing is queued and the partner is not touched.
	if !e.submission.KnowsAssignments() {
		e.notifier.Notify("A student requested a student support meeting.", false)
		return &models.Outcome{Kind: models.OutcomeRequestedMeeting}, nil
	}

	// Step 2: inspect the submission. This also queues the requested day
	// counts onto the roster records.
	reason, err := e.processSubmission(ctx)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		e.notifier.Notify(fmt.Sprintf("An extension request needs review (%s).", reason), false)
		return &models.Outcome{Kind: models.OutcomeEscalated, Reason: reason, Warnings: e.warnings}, nil
	}

	// Step 3: existing work-in-progress blocks auto-approval so that rows
	// already marked Pending are never approved behind a reviewer's back.
	blocked, err := e.checkWorkInProgress(ctx)
	if err != nil {
		return nil, err
	}
	if blocked != "" {
		e.notifier.Notify(blocked, false)
		return &models.Outcome{Kind: models.OutcomeEscalated, Reason: blocked, Warnings: e.warnings}, nil
	}

	// Step 4: non-blocking consistency warnings for the reviewer.
	e.checkForWarnings()

	// Step 5: all checks passed.
	if err := e.approve(ctx); err != nil {
		return nil, err
	}

	outcome := &models.Outcome{Kind: models.OutcomeAutoApproved, Warnings: e.warnings}

	// Step 6: confirmation emails, skipped in silent mode.
	if !silent {
		if err := e.sendConfirmations(ctx); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

// processSubmission walks the requested extensions in submission order,
// queueing writes and evaluating the escalation rules. It returns the
// retained escalation reason, empty when no rule fired.
func (e *Engine) processSubmission(ctx context.Context) (string, error) {
	var fired []ruleResult

	// Requesting many extensions at once needs a human unless the student
	// claims DSP accommodations. Evaluated before the per-assignment rules,
	// so those overwrite its reason (last rule to fire wins).
	if n := len(e.submission.Requests); !e.submission.ClaimsDSP && n > e.thresholds.MaxRequestsPerSubmission {
		fired = append(fired, ruleResult{
			rule: "too_many_requests",
			reason: fmt.Sprintf("this student has requested more assignment extensions (%d) than the auto-approve threshold (%d)",
				n, e.thresholds.MaxRequestsPerSubmission),
		})
	}

	for _, req := range e.submission.Requests {
		assignment, ok := e.catalog.Get(req.AssignmentID)
		if !ok {
			return "", appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("submission names unknown assignment %q", req.AssignmentID))
		}

		// A new request shorter than an already-granted extension keeps
		// the granted length in place. This handles partners requesting
		// different lengths for a shared assignment: the longer one wins.
		days := req.Days
		existing, hasExisting, err := e.student.ExistingDays(assignment.ID)
		if err != nil {
			return "", err
		}
		if hasExisting && days <= existing {
			e.warn(fmt.Sprintf("[%s] student requested an extension for %d days, which was <= an existing request of %d days, so the existing request was kept in place.",
				assignment.Name, days, existing))
			days = existing
		}

		if result, firedRule := e.evaluateRequest(assignment, days); firedRule {
			fired = append(fired, result)
		}

		// The requested day count lands on the roster whether or not a
		// human needs to look at it.
		e.student.QueueWrite(assignment.ID, days)
		if assignment.Partner && e.partner != nil {
			e.partner.QueueWrite(assignment.ID, days)
		}
	}

	if len(fired) == 0 {
		return "", nil
	}
	for _, f := range fired {
		e.logger.Sugar().Debugw("escalation rule fired", "rule", f.rule, "reason", f.reason)
	}
	reason := fired[len(fired)-1].reason

	e.student.QueueApprovalStatus(models.ApprovalStatusPending)
	if err := e.student.Flush(ctx); err != nil {
		return "", err
	}
	if e.partner != nil {
		e.partner.QueueApprovalStatus(models.ApprovalStatusPending)
		if err := e.partner.Flush(ctx); err != nil {
			return "", err
		}
	}
	return reason, nil
}

// evaluateRequest applies the per-assignment escalation rules to an
// effective day count. At most one rule fires per assignment.
func (e *Engine) evaluateRequest(assignment models.Assignment, days int) (ruleResult, bool) {
	switch {
	case !e.submission.ClaimsDSP && days > e.thresholds.AutoApproveDays:
		if e.thresholds.AutoApproveDays <= 0 {
			return ruleResult{rule: "threshold", reason: "auto-approve is disabled"}, true
		}
		return ruleResult{
			rule: "threshold",
			reason: fmt.Sprintf("a request of %d days is greater than the auto-approve threshold of %d days",
				days, e.thresholds.AutoApproveDays),
		}, true
	case e.submission.ClaimsDSP && days > e.thresholds.DSPAutoApproveDays:
		return ruleResult{
			rule:   "dsp_threshold",
			reason: fmt.Sprintf("a DSP request of %d days is greater than the DSP auto-approve threshold", days),
		}, true
	case assignment.PastDue(e.submission.Timestamp):
		return ruleResult{rule: "retroactive", reason: "student requested a retroactive extension on an assignment"}, true
	}
	return ruleResult{}, false
}

// checkWorkInProgress blocks auto-approval when either party already has an
// unresolved status. The three cases are deliberately asymmetric in what
// they touch: a lone student's status is left alone so a Requested Meeting
// marker is never silently overwritten.
func (e *Engine) checkWorkInProgress(ctx context.Context) (string, error) {
	switch {
	case e.partner != nil && e.student.Status().WorkInProgress():
		// Blocked on the student; neither party can be approved.
		if err := e.student.Flush(ctx); err != nil {
			return "", err
		}
		e.partner.QueueApprovalStatus(models.ApprovalStatusPending)
		if err := e.partner.Flush(ctx); err != nil {
			return "", err
		}
		return "An extension request needs review (blocked on work in progress for this student).", nil

	case e.partner != nil && e.partner.Status().WorkInProgress():
		// Blocked on the partner; mirror of the case above.
		if err := e.partner.Flush(ctx); err != nil {
			return "", err
		}
		e.student.QueueApprovalStatus(models.ApprovalStatusPending)
		if err := e.student.Flush(ctx); err != nil {
			return "", err
		}
		return "An extension request needs review (blocked on work in progress for this student's partner).", nil

	case e.student.Status().WorkInProgress():
		// No partner. The day counts land on the roster but the status
		// stays untouched.
		if err := e.student.Flush(ctx); err != nil {
			return "", err
		}
		return "An extension request needs review (there is work in progress for this student's record).", nil
	}
	return "", nil
}

// checkForWarnings surfaces inconsistencies that deserve reviewer attention
// but never block approval.
func (e *Engine) checkForWarnings() {
	if e.submission.ClaimsDSP && !e.student.IsDSP() {
		e.warn(fmt.Sprintf("Student %s responded %q to the DSP question in the extension request, but is not marked for DSP approval on the roster. Please investigate.",
			e.submission.Email, e.submission.DSPAnswer))
	}
}

func (e *Engine) approve(ctx context.Context) error {
	e.student.QueueApprovalStatus(models.ApprovalStatusAutoApproved)
	e.student.QueueEmailStatus(models.EmailStatusInQueue)
	if err := e.student.Flush(ctx); err != nil {
		return err
	}

	message := "An extension request was automatically approved!"
	if e.partner != nil {
		e.partner.QueueApprovalStatus(models.ApprovalStatusAutoApproved)
		e.partner.QueueEmailStatus(models.EmailStatusInQueue)
		if err := e.partner.Flush(ctx); err != nil {
			return err
		}
		message = "An extension request was automatically approved (for a partner, too!)"
	}

	e.notifier.Notify(message, true)
	return nil
}

// sendConfirmations emails each approved party independently. By the time
// this runs every roster write has committed, so a send failure is reported
// as a notification failure and never rolls anything back.
func (e *Engine) sendConfirmations(ctx context.Context) error {
	targets := []*roster.Record{e.student}
	if e.partner != nil {
		targets = append(targets, e.partner)
	}

	var failed error
	for _, target := range targets {
		if err := e.reporter.SendConfirmation(ctx, target, e.catalog); err != nil {
			if failed == nil {
				failed = appErrors.Wrap(err, appErrors.ErrNotificationFailed.Code, appErrors.ErrNotificationFailed.Status,
					fmt.Sprintf("roster writes succeeded but the confirmation email to %s failed; follow up manually and check the mail logs", target.Email()))
			}
			continue
		}
		target.QueueEmailStatus(models.EmailStatusAutoSent)
		if err := target.Flush(ctx); err != nil && failed == nil {
			failed = err
		}
	}
	return failed
}

func (e *Engine) warn(message string) {
	e.warnings = append(e.warnings, message)
	e.notifier.AddWarning(message)
}
