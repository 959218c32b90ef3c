package notify

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/noah-isme/extension-approver/internal/catalog"
	"github.com/noah-isme/extension-approver/internal/models"
	"github.com/noah-isme/extension-approver/internal/roster"
	"github.com/noah-isme/extension-approver/pkg/config"
)

// Slack streams human-readable evaluation updates to a staff channel via an
// incoming webhook. One Slack value serves one evaluation: warnings and
// student context accumulate until the next Notify call flushes them.
type Slack struct {
	webhookURL string
	username   string
	iconEmoji  string
	logger     *zap.Logger

	suppressed bool
	context    string
	warnings   []string
}

// NewSlack constructs the sink. An empty webhook URL turns it into a
// log-only sink, which keeps local development quiet.
func NewSlack(cfg config.SlackConfig, logger *zap.Logger) *Slack {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slack{
		webhookURL: cfg.WebhookURL,
		username:   cfg.Username,
		iconEmoji:  cfg.IconEmoji,
		logger:     logger,
	}
}

// SetContext pins the student being evaluated so every update identifies
// them without repeating the details in each message.
func (s *Slack) SetContext(sub *models.Submission, student *roster.Record, cat *catalog.Catalog) {
	parts := []string{fmt.Sprintf("*%s* <%s>", student.Name(), student.Email())}
	if sub.HasPartner() {
		parts = append(parts, fmt.Sprintf("partner <%s>", sub.PartnerEmail))
	}
	if len(sub.Requests) > 0 {
		names := make([]string, 0, len(sub.Requests))
		for _, req := range sub.Requests {
			label := req.AssignmentID
			if a, ok := cat.Get(req.AssignmentID); ok {
				label = a.Name
			}
			names = append(names, fmt.Sprintf("%s (%dd)", label, req.Days))
		}
		parts = append(parts, strings.Join(names, ", "))
	}
	s.context = strings.Join(parts, " · ")
}

// Suppress disables outbound posts. Bookkeeping (warnings, context) keeps
// working so silent evaluations still produce a full outcome.
func (s *Slack) Suppress() {
	s.suppressed = true
}

// AddWarning queues a warning to be appended below the next update.
func (s *Slack) AddWarning(message string) {
	s.warnings = append(s.warnings, message)
}

// Warnings returns the accumulated warnings.
func (s *Slack) Warnings() []string {
	return s.warnings
}

// Notify posts an update. Warnings accumulated so far are appended below
// the message. Delivery failures are logged, never propagated: a missing
// status ping must not fail an evaluation.
func (s *Slack) Notify(message string, autoApprove bool) {
	text := s.compose(message, autoApprove)
	if s.suppressed || s.webhookURL == "" {
		s.logger.Sugar().Infow("slack update (not sent)", "text", text, "suppressed", s.suppressed)
		return
	}

	err := slack.PostWebhook(s.webhookURL, &slack.WebhookMessage{
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Text:      text,
	})
	if err != nil {
		s.logger.Sugar().Errorw("failed to post slack update", "error", err)
	}
}

func (s *Slack) compose(message string, autoApprove bool) string {
	var b strings.Builder
	if autoApprove {
		b.WriteString(":white_check_mark: ")
	}
	b.WriteString(message)
	if s.context != "" {
		b.WriteString("\n> ")
		b.WriteString(s.context)
	}
	for _, w := range s.warnings {
		b.WriteString("\n:warning: ")
		b.WriteString(w)
	}
	return b.String()
}
