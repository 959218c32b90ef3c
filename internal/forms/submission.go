package forms

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/extension-approver/internal/catalog"
	"github.com/noah-isme/extension-approver/internal/models"
	appErrors "github.com/noah-isme/extension-approver/pkg/errors"
)

// SubmissionPayload is the raw extension-request form payload as delivered
// by the form webhook.
type SubmissionPayload struct {
	Email        string           `json:"email" validate:"required,email"`
	PartnerEmail string           `json:"partner_email" validate:"omitempty,email"`
	DSP          string           `json:"dsp"`
	Timestamp    time.Time        `json:"timestamp"`
	Requests     []RequestPayload `json:"requests" validate:"dive"`
}

// RequestPayload is one requested extension within the form payload.
type RequestPayload struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	Days         int    `json:"days" validate:"min=1"`
}

// Parser validates raw form payloads into Submission models.
type Parser struct {
	validator *validator.Validate
}

// NewParser constructs a Parser.
func NewParser(validate *validator.Validate) *Parser {
	if validate == nil {
		validate = validator.New()
	}
	return &Parser{validator: validate}
}

// Parse validates the payload against the assignment catalog. An empty
// request list is valid: it means the student wants a support meeting
// instead of naming assignments.
func (p *Parser) Parse(payload SubmissionPayload, cat *catalog.Catalog) (*models.Submission, error) {
	if err := p.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	sub := &models.Submission{
		Email:        strings.ToLower(strings.TrimSpace(payload.Email)),
		PartnerEmail: strings.ToLower(strings.TrimSpace(payload.PartnerEmail)),
		DSPAnswer:    strings.TrimSpace(payload.DSP),
		ClaimsDSP:    claimsDSP(payload.DSP),
		Timestamp:    payload.Timestamp,
	}
	if sub.Timestamp.IsZero() {
		sub.Timestamp = time.Now().UTC()
	}
	if sub.PartnerEmail == sub.Email {
		sub.PartnerEmail = ""
	}

	seen := make(map[string]struct{}, len(payload.Requests))
	for _, req := range payload.Requests {
		id := strings.TrimSpace(req.AssignmentID)
		if _, ok := cat.Get(id); !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("submission names unknown assignment %q", id))
		}
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("submission names assignment %q twice", id))
		}
		seen[id] = struct{}{}
		sub.Requests = append(sub.Requests, models.ExtensionRequest{AssignmentID: id, Days: req.Days})
	}

	return sub, nil
}

func claimsDSP(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y", "true":
		return true
	default:
		return false
	}
}
