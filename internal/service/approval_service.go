package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/extension-approver/internal/catalog"
	"github.com/noah-isme/extension-approver/internal/forms"
	"github.com/noah-isme/extension-approver/internal/models"
	"github.com/noah-isme/extension-approver/internal/policy"
	"github.com/noah-isme/extension-approver/internal/roster"
	"github.com/noah-isme/extension-approver/pkg/config"
	appErrors "github.com/noah-isme/extension-approver/pkg/errors"
	"github.com/noah-isme/extension-approver/pkg/export"
)

type rosterSource interface {
	LookupRecord(ctx context.Context, email string) (*roster.Record, error)
	AssignmentRows(ctx context.Context) ([][]string, error)
}

type decisionLogs interface {
	Create(ctx context.Context, entry *models.DecisionLog) error
	List(ctx context.Context, filter models.DecisionLogFilter) ([]models.DecisionLog, error)
}

type dedupGuard interface {
	Acquire(ctx context.Context, fingerprint string) (bool, error)
}

type confirmationSender interface {
	SendConfirmation(ctx context.Context, target *roster.Record, cat *catalog.Catalog) error
}

// EvaluationNotifier receives human-readable evaluation updates. A fresh one
// is created per evaluation so context and warnings never leak across
// submissions.
type EvaluationNotifier interface {
	SetContext(sub *models.Submission, student *roster.Record, cat *catalog.Catalog)
	Notify(message string, autoApprove bool)
	AddWarning(message string)
	Suppress()
}

// ApprovalService runs the evaluation pipeline end to end: parse, dedup,
// roster lookup, policy evaluation, audit logging. It is invoked from the
// evaluation job queue, never concurrently.
type ApprovalService struct {
	store       rosterSource
	decisions   decisionLogs
	dedup       dedupGuard
	reporter    confirmationSender
	newNotifier func() EvaluationNotifier
	parser      *forms.Parser
	metrics     *MetricsService
	thresholds  policy.Thresholds
	logger      *zap.Logger
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(
	store rosterSource,
	decisions decisionLogs,
	dedup dedupGuard,
	reporter confirmationSender,
	newNotifier func() EvaluationNotifier,
	metrics *MetricsService,
	cfg config.PolicyConfig,
	logger *zap.Logger,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		store:       store,
		decisions:   decisions,
		dedup:       dedup,
		reporter:    reporter,
		newNotifier: newNotifier,
		parser:      forms.NewParser(nil),
		metrics:     metrics,
		thresholds: policy.Thresholds{
			AutoApproveDays:          cfg.AutoApproveDays,
			DSPAutoApproveDays:       cfg.DSPAutoApproveDays,
			MaxRequestsPerSubmission: cfg.MaxRequestsPerSubmission,
		},
		logger: logger,
	}
}

// Catalog loads and parses the assignment sheet.
func (s *ApprovalService) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	rows, err := s.store.AssignmentRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load assignment sheet: %w", err)
	}
	return catalog.Parse(rows)
}

// Evaluate processes one raw form submission. A non-nil outcome alongside a
// non-nil error means roster writes committed but a confirmation email
// failed; callers must not treat that as a failed evaluation.
func (s *ApprovalService) Evaluate(ctx context.Context, payload forms.SubmissionPayload, silent bool) (*models.Outcome, error) {
	cat, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := s.parser.Parse(payload, cat)
	if err != nil {
		return nil, err
	}

	if dup, err := s.isDuplicate(ctx, sub); err != nil {
		// The guard is best-effort: an unreachable Redis must not block
		// evaluations, it only risks a double run.
		s.logger.Sugar().Warnw("dedup guard unavailable", "error", err)
	} else if dup {
		s.metrics.RecordDuplicate()
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("submission from %s was already processed", sub.Email))
	}

	student, err := s.store.LookupRecord(ctx, sub.Email)
	if err != nil {
		return nil, err
	}
	var partner *roster.Record
	if sub.HasPartner() {
		partner, err = s.store.LookupRecord(ctx, sub.PartnerEmail)
		if err != nil {
			return nil, err
		}
	}

	notifier := s.newNotifier()
	notifier.SetContext(sub, student, cat)

	engine := policy.NewEngine(sub, student, partner, cat, s.thresholds, notifier, s.reporter, s.logger)

	start := time.Now()
	outcome, evalErr := engine.Apply(ctx, silent)
	duration := time.Since(start)

	if outcome != nil {
		s.metrics.ObserveEvaluation(outcome.Kind, duration)
		s.recordDecision(ctx, sub, outcome, duration)
	}
	return outcome, evalErr
}

// ListDecisions returns the audit trail, newest first.
func (s *ApprovalService) ListDecisions(ctx context.Context, filter models.DecisionLogFilter) ([]models.DecisionLog, error) {
	return s.decisions.List(ctx, filter)
}

// Export formats for decision listings.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportDecisions renders the audit trail as CSV or PDF and returns the
// payload with its content type.
func (s *ApprovalService) ExportDecisions(ctx context.Context, filter models.DecisionLogFilter, format string) ([]byte, string, error) {
	logs, err := s.decisions.List(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	table := export.Table{
		Title:   "Extension Decisions",
		Headers: []string{"Student", "Partner", "Outcome", "Reason", "Warnings", "Decided At"},
		Rows:    make([][]string, 0, len(logs)),
	}
	for _, entry := range logs {
		partner := ""
		if entry.PartnerEmail != nil {
			partner = *entry.PartnerEmail
		}
		table.Rows = append(table.Rows, []string{
			entry.StudentEmail,
			partner,
			string(entry.Outcome),
			entry.Reason,
			strconv.Itoa(entry.WarningCount),
			entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	switch format {
	case ExportFormatCSV:
		payload, err := export.CSV(table)
		return payload, "text/csv", err
	case ExportFormatPDF:
		payload, err := export.PDF(table)
		return payload, "application/pdf", err
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *ApprovalService) isDuplicate(ctx context.Context, sub *models.Submission) (bool, error) {
	if s.dedup == nil {
		return false, nil
	}
	ok, err := s.dedup.Acquire(ctx, Fingerprint(sub))
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// recordDecision writes the audit row. Failures are logged and swallowed:
// the audit trail is an observability aid, the roster is the system of
// record.
func (s *ApprovalService) recordDecision(ctx context.Context, sub *models.Submission, outcome *models.Outcome, duration time.Duration) {
	if s.decisions == nil {
		return
	}
	entry := &models.DecisionLog{
		StudentEmail: sub.Email,
		Outcome:      outcome.Kind,
		Reason:       outcome.Reason,
		WarningCount: len(outcome.Warnings),
		DurationMs:   duration.Milliseconds(),
	}
	if sub.HasPartner() {
		partner := sub.PartnerEmail
		entry.PartnerEmail = &partner
	}
	if err := s.decisions.Create(ctx, entry); err != nil {
		s.logger.Sugar().Errorw("failed to record decision", "student", sub.Email, "error", err)
	}
}
