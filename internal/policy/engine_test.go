package policy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/extension-approver/internal/catalog"
	"github.com/noah-isme/extension-approver/internal/models"
	"github.com/noah-isme/extension-approver/internal/roster"
	appErrors "github.com/noah-isme/extension-approver/pkg/errors"
)

var submittedAt = time.Date(2024, 9, 10, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	headers []string
	writes  []string // "row/key=value" in commit order
}

func (s *fakeStore) LookupRecord(ctx context.Context, email string) (*roster.Record, error) {
	return nil, appErrors.ErrNotFound
}

func (s *fakeStore) ColumnIndex(ctx context.Context, key string) (int, error) {
	for i, h := range s.headers {
		if h == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown column %s", key)
}

func (s *fakeStore) WriteCell(ctx context.Context, row, col int, value interface{}) error {
	s.writes = append(s.writes, fmt.Sprintf("%d/%s=%v", row, s.headers[col], value))
	return nil
}

type fakeNotifier struct {
	messages   []string
	autoFlags  []bool
	warnings   []string
	suppressed bool
}

func (n *fakeNotifier) Notify(message string, autoApprove bool) {
	n.messages = append(n.messages, message)
	n.autoFlags = append(n.autoFlags, autoApprove)
}

func (n *fakeNotifier) AddWarning(message string) {
	n.warnings = append(n.warnings, message)
}

func (n *fakeNotifier) Suppress() { n.suppressed = true }

type fakeReporter struct {
	sentTo []string
	err    error
}

func (r *fakeReporter) SendConfirmation(ctx context.Context, target *roster.Record, cat *catalog.Catalog) error {
	if r.err != nil {
		return r.err
	}
	r.sentTo = append(r.sentTo, target.Email())
	return nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{headers: []string{
		models.ColName, models.ColEmail, models.ColSID, models.ColIsDSP,
		models.ColApprovalStatus, models.ColEmailStatus, "hw1", "proj1",
	}}
}

func testAssignments(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([][]string{
		{"id", "name", "due_date", "partner"},
		{"hw1", "Homework 1", "2024-09-20T23:59:00Z", "no"},
		{"proj1", "Project 1", "2024-10-05T23:59:00Z", "yes"},
	})
	require.NoError(t, err)
	return c
}

func studentRecord(store *fakeStore, extra map[string]string) *roster.Record {
	columns := map[string]string{
		models.ColName:  "Alex Doe",
		models.ColEmail: "alex@example.edu",
	}
	for k, v := range extra {
		columns[k] = v
	}
	return roster.NewRecord(store, 2, columns)
}

func partnerRecord(store *fakeStore, extra map[string]string) *roster.Record {
	columns := map[string]string{
		models.ColName:  "Sam Roe",
		models.ColEmail: "sam@example.edu",
	}
	for k, v := range extra {
		columns[k] = v
	}
	return roster.NewRecord(store, 3, columns)
}

func defaultThresholds() Thresholds {
	return Thresholds{AutoApproveDays: 5, DSPAutoApproveDays: 7, MaxRequestsPerSubmission: 3}
}

func TestApplyMeetingRequest(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)
	notify := &fakeNotifier{}
	report := &fakeReporter{}

	engine := NewEngine(&models.Submission{Email: "alex@example.edu", Timestamp: submittedAt},
		student, nil, testAssignments(t), defaultThresholds(), notify, report, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRequestedMeeting, outcome.Kind)
	assert.Zero(t, student.PendingCount())
	assert.Empty(t, store.writes)
	assert.Empty(t, report.sentTo)
	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "support meeting")
}

func TestApplyAutoApprovesUnderThreshold(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)
	notify := &fakeNotifier{}
	report := &fakeReporter{}

	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 4}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), notify, report, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAutoApproved, outcome.Kind)
	assert.Empty(t, outcome.Warnings)

	assert.Equal(t, models.ApprovalStatusAutoApproved, student.Status())
	assert.Equal(t, models.EmailStatusAutoSent, student.EmailStatus())
	days, ok, err := student.ExistingDays("hw1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, days)

	assert.Equal(t, []string{"alex@example.edu"}, report.sentTo)
	require.Len(t, notify.messages, 1)
	assert.True(t, notify.autoFlags[0])
}

func TestApplyThresholdBoundary(t *testing.T) {
	// Exactly the threshold never escalates; threshold+1 always does.
	for _, tc := range []struct {
		days    int
		approve bool
	}{
		{days: 5, approve: true},
		{days: 6, approve: false},
	} {
		store := newFakeStore()
		student := studentRecord(store, nil)
		notify := &fakeNotifier{}
		report := &fakeReporter{}
		sub := &models.Submission{
			Email:     "alex@example.edu",
			Timestamp: submittedAt,
			Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: tc.days}},
		}
		engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), notify, report, nil)

		outcome, err := engine.Apply(context.Background(), false)
		require.NoError(t, err)

		if tc.approve {
			assert.Equal(t, models.OutcomeAutoApproved, outcome.Kind)
			continue
		}
		assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
		assert.Contains(t, outcome.Reason, "greater than the auto-approve threshold of 5 days")
		assert.Equal(t, models.ApprovalStatusPending, student.Status())
		assert.Empty(t, report.sentTo)
	}
}

func TestApplyDSPThresholdBoundary(t *testing.T) {
	for _, tc := range []struct {
		days    int
		approve bool
	}{
		{days: 7, approve: true},
		{days: 8, approve: false},
	} {
		store := newFakeStore()
		student := studentRecord(store, map[string]string{models.ColIsDSP: "Yes"})
		notify := &fakeNotifier{}
		sub := &models.Submission{
			Email:     "alex@example.edu",
			ClaimsDSP: true,
			DSPAnswer: "Yes",
			Timestamp: submittedAt,
			Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: tc.days}},
		}
		engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), notify, &fakeReporter{}, nil)

		outcome, err := engine.Apply(context.Background(), false)
		require.NoError(t, err)

		if tc.approve {
			assert.Equal(t, models.OutcomeAutoApproved, outcome.Kind)
		} else {
			assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
			assert.Contains(t, outcome.Reason, "DSP auto-approve threshold")
		}
	}
}

func TestApplyAutoApproveDisabled(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)
	thresholds := defaultThresholds()
	thresholds.AutoApproveDays = 0

	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 1}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), thresholds, &fakeNotifier{}, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
	assert.Equal(t, "auto-approve is disabled", outcome.Reason)
}

func TestApplyRetroactiveRequest(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)

	// Under threshold, but the due date already passed.
	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: time.Date(2024, 9, 25, 9, 0, 0, 0, time.UTC),
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 2}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), &fakeNotifier{}, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
	assert.Contains(t, outcome.Reason, "retroactive")
}

func TestApplyMonotonicNonDecrease(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, map[string]string{"hw1": "4"})
	notify := &fakeNotifier{}

	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 2}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), notify, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAutoApproved, outcome.Kind)

	// The existing, longer grant stays in place and the reviewer hears
	// about it.
	days, ok, err := student.ExistingDays("hw1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, days)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "existing request was kept in place")
	assert.Equal(t, outcome.Warnings, notify.warnings)
}

func TestApplyTooManyRequestsReasonIsOverwritten(t *testing.T) {
	thresholds := defaultThresholds()
	thresholds.MaxRequestsPerSubmission = 1

	// Only the batch rule fires: its reason is retained.
	store := newFakeStore()
	student := studentRecord(store, nil)
	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests: []models.ExtensionRequest{
			{AssignmentID: "hw1", Days: 1},
			{AssignmentID: "proj1", Days: 1},
		},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), thresholds, &fakeNotifier{}, &fakeReporter{}, nil)
	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
	assert.Contains(t, outcome.Reason, "more assignment extensions (2)")

	// A per-assignment rule firing later overwrites the batch reason.
	store = newFakeStore()
	student = studentRecord(store, nil)
	sub = &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests: []models.ExtensionRequest{
			{AssignmentID: "hw1", Days: 1},
			{AssignmentID: "proj1", Days: 9},
		},
	}
	engine = NewEngine(sub, student, nil, testAssignments(t), thresholds, &fakeNotifier{}, &fakeReporter{}, nil)
	outcome, err = engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
	assert.Contains(t, outcome.Reason, "a request of 9 days")
}

func TestApplyLastEscalationReasonWins(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)

	// Both pairs escalate independently; the later pair's reason is kept
	// and both day counts are still queued and committed.
	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: time.Date(2024, 9, 25, 9, 0, 0, 0, time.UTC),
		Requests: []models.ExtensionRequest{
			{AssignmentID: "hw1", Days: 9},
			{AssignmentID: "proj1", Days: 8},
		},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), &fakeNotifier{}, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
	assert.Contains(t, outcome.Reason, "a request of 8 days")

	hw1, _, err := student.ExistingDays("hw1")
	require.NoError(t, err)
	assert.Equal(t, 9, hw1)
	proj1, _, err := student.ExistingDays("proj1")
	require.NoError(t, err)
	assert.Equal(t, 8, proj1)
}

func TestApplyPartnerSharedAssignment(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)
	partner := partnerRecord(store, nil)
	report := &fakeReporter{}

	sub := &models.Submission{
		Email:        "alex@example.edu",
		PartnerEmail: "sam@example.edu",
		Timestamp:    submittedAt,
		Requests:     []models.ExtensionRequest{{AssignmentID: "proj1", Days: 3}},
	}
	engine := NewEngine(sub, student, partner, testAssignments(t), defaultThresholds(), &fakeNotifier{}, report, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAutoApproved, outcome.Kind)

	for _, rec := range []*roster.Record{student, partner} {
		days, ok, err := rec.ExistingDays("proj1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, days)
		assert.Equal(t, models.ApprovalStatusAutoApproved, rec.Status())
	}
	assert.Equal(t, []string{"alex@example.edu", "sam@example.edu"}, report.sentTo)
}

func TestApplySoloAssignmentDoesNotTouchPartner(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)
	partner := partnerRecord(store, nil)

	sub := &models.Submission{
		Email:        "alex@example.edu",
		PartnerEmail: "sam@example.edu",
		Timestamp:    submittedAt,
		Requests:     []models.ExtensionRequest{{AssignmentID: "hw1", Days: 2}},
	}
	engine := NewEngine(sub, student, partner, testAssignments(t), defaultThresholds(), &fakeNotifier{}, &fakeReporter{}, nil)

	_, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)

	// hw1 is not a partner assignment, so only the status writes reach
	// the partner's row.
	_, ok, err := partner.ExistingDays("hw1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.ApprovalStatusAutoApproved, partner.Status())
}

func TestApplyBlockedOnStudentWorkInProgress(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, map[string]string{models.ColApprovalStatus: "Pending"})
	partner := partnerRecord(store, nil)
	notify := &fakeNotifier{}

	sub := &models.Submission{
		Email:        "alex@example.edu",
		PartnerEmail: "sam@example.edu",
		Timestamp:    submittedAt,
		Requests:     []models.ExtensionRequest{{AssignmentID: "proj1", Days: 3}},
	}
	engine := NewEngine(sub, student, partner, testAssignments(t), defaultThresholds(), notify, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
	assert.Contains(t, outcome.Reason, "blocked on work in progress for this student)")

	// The day count landed, the student status stayed Pending, and the
	// partner was parked as Pending too.
	days, _, err := student.ExistingDays("proj1")
	require.NoError(t, err)
	assert.Equal(t, 3, days)
	assert.Equal(t, models.ApprovalStatusPending, student.Status())
	assert.Equal(t, models.ApprovalStatusPending, partner.Status())
}

func TestApplyBlockedOnPartnerWorkInProgress(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)
	partner := partnerRecord(store, map[string]string{models.ColApprovalStatus: "Requested Meeting"})

	sub := &models.Submission{
		Email:        "alex@example.edu",
		PartnerEmail: "sam@example.edu",
		Timestamp:    submittedAt,
		Requests:     []models.ExtensionRequest{{AssignmentID: "proj1", Days: 3}},
	}
	engine := NewEngine(sub, student, partner, testAssignments(t), defaultThresholds(), &fakeNotifier{}, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
	assert.Contains(t, outcome.Reason, "this student's partner")

	// The partner keeps their Requested Meeting marker; the student is
	// parked as Pending.
	assert.Equal(t, models.ApprovalStatusRequestedMeeting, partner.Status())
	assert.Equal(t, models.ApprovalStatusPending, student.Status())
}

func TestApplySoloWorkInProgressLeavesStatusUntouched(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, map[string]string{models.ColApprovalStatus: "Requested Meeting"})

	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 2}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), &fakeNotifier{}, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, outcome.Kind)
	assert.Contains(t, outcome.Reason, "this student's record")

	// A Requested Meeting marker must never be silently overwritten, but
	// the requested day count still lands on the roster.
	assert.Equal(t, models.ApprovalStatusRequestedMeeting, student.Status())
	days, _, err := student.ExistingDays("hw1")
	require.NoError(t, err)
	assert.Equal(t, 2, days)
}

func TestApplyDSPMismatchWarnsWithoutBlocking(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, map[string]string{models.ColIsDSP: "No"})
	notify := &fakeNotifier{}

	sub := &models.Submission{
		Email:     "alex@example.edu",
		ClaimsDSP: true,
		DSPAnswer: "Yes",
		Timestamp: submittedAt,
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 2}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), notify, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAutoApproved, outcome.Kind)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "not marked for DSP approval")
}

func TestApplyMalformedCellAbortsEvaluation(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, map[string]string{"hw1": "banana"})

	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 2}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), &fakeNotifier{}, &fakeReporter{}, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, appErrors.Is(err, appErrors.ErrDataIntegrity))
	assert.Empty(t, store.writes)
}

func TestApplyConfirmationFailureDoesNotRollBack(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)
	report := &fakeReporter{err: fmt.Errorf("smtp timeout")}

	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 2}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), &fakeNotifier{}, report, nil)

	outcome, err := engine.Apply(context.Background(), false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotificationFailed))
	assert.Contains(t, err.Error(), "follow up manually")

	// Writes stay committed and the outcome still reports approval.
	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeAutoApproved, outcome.Kind)
	assert.Equal(t, models.ApprovalStatusAutoApproved, student.Status())
}

func TestApplySilentModeSkipsEmailAndSuppressesNotifier(t *testing.T) {
	store := newFakeStore()
	student := studentRecord(store, nil)
	notify := &fakeNotifier{}
	report := &fakeReporter{}

	sub := &models.Submission{
		Email:     "alex@example.edu",
		Timestamp: submittedAt,
		Requests:  []models.ExtensionRequest{{AssignmentID: "hw1", Days: 2}},
	}
	engine := NewEngine(sub, student, nil, testAssignments(t), defaultThresholds(), notify, report, nil)

	outcome, err := engine.Apply(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAutoApproved, outcome.Kind)
	assert.True(t, notify.suppressed)
	assert.Empty(t, report.sentTo)
	assert.Equal(t, models.EmailStatusInQueue, student.EmailStatus())
}
