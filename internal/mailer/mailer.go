package mailer

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/extension-approver/internal/catalog"
	"github.com/noah-isme/extension-approver/internal/roster"
	"github.com/noah-isme/extension-approver/pkg/config"
)

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>Hi {{.Name}},</p>
<p>Your extension request has been approved. Your updated deadlines:</p>
<ul>
{{- range .Grants}}
<li><b>{{.Assignment}}</b>: {{.Days}} day extension, now due {{.NewDueDate}}</li>
{{- end}}
</ul>
<p>These deadlines are reflected on the course roster. Reply to this email if anything looks wrong.</p>`))

type grant struct {
	Assignment string
	Days       int
	NewDueDate string
}

// Mailer sends approval confirmations over SMTP.
type Mailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
	send   func(...*gomail.Message) error
}

// New constructs a Mailer backed by the configured SMTP server.
func New(cfg config.SMTPConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{cfg: cfg, logger: logger, send: dialer.DialAndSend}
}

// SendConfirmation emails the approved deadlines to one roster record. The
// record must already reflect its committed state: the email is built from
// the same values the roster now holds.
func (m *Mailer) SendConfirmation(ctx context.Context, target *roster.Record, cat *catalog.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := m.buildBody(target, cat)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.FromAddress, m.cfg.FromName)
	msg.SetHeader("To", target.Email())
	if m.cfg.ReplyTo != "" {
		msg.SetHeader("Reply-To", m.cfg.ReplyTo)
	}
	msg.SetHeader("Subject", m.cfg.Subject)
	msg.SetBody("text/html", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send confirmation to %s: %w", target.Email(), err)
	}
	m.logger.Sugar().Infow("confirmation sent", "to", target.Email())
	return nil
}

func (m *Mailer) buildBody(target *roster.Record, cat *catalog.Catalog) (string, error) {
	var grants []grant
	for _, a := range cat.All() {
		days, ok, err := target.ExistingDays(a.ID)
		if err != nil {
			return "", err
		}
		if !ok || days <= 0 {
			continue
		}
		newDue := a.DueDate.Add(time.Duration(days) * 24 * time.Hour)
		grants = append(grants, grant{
			Assignment: a.Name,
			Days:       days,
			NewDueDate: newDue.Format("Monday, January 2 at 3:04 PM MST"),
		})
	}
	if len(grants) == 0 {
		return "", fmt.Errorf("record for %s holds no granted extensions", target.Email())
	}

	data := struct {
		Name   string
		Grants []grant
	}{Name: firstName(target.Name()), Grants: grants}

	var b strings.Builder
	if err := confirmationTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return b.String(), nil
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return "there"
	}
	return strings.Fields(full)[0]
}
