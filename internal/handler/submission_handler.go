package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/extension-approver/internal/forms"
	appErrors "github.com/noah-isme/extension-approver/pkg/errors"
	"github.com/noah-isme/extension-approver/pkg/jobs"
	"github.com/noah-isme/extension-approver/pkg/response"
)

// JobTypeEvaluate identifies queued evaluation jobs.
const JobTypeEvaluate = "evaluate_submission"

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "X-Signature"

// EvaluationJob is the payload handed to the evaluation queue.
type EvaluationJob struct {
	Payload forms.SubmissionPayload
	Silent  bool
}

type evaluationQueue interface {
	Enqueue(job jobs.Job) error
}

// SubmissionHandler accepts form-webhook submissions and queues them for
// evaluation. Evaluations never run on the request path: the queue's single
// worker serializes roster access.
type SubmissionHandler struct {
	queue         evaluationQueue
	signingSecret string
}

// NewSubmissionHandler builds a new handler.
func NewSubmissionHandler(queue evaluationQueue, signingSecret string) *SubmissionHandler {
	return &SubmissionHandler{queue: queue, signingSecret: signingSecret}
}

// Create godoc
// @Summary Accept an extension-request submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param X-Signature header string false "Hex HMAC-SHA256 of the request body"
// @Param payload body forms.SubmissionPayload true "Form submission payload"
// @Success 202 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable request body"))
		return
	}

	if !h.verifySignature(body, c.GetHeader(SignatureHeader)) {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid webhook signature"))
		return
	}

	var payload forms.SubmissionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: JobTypeEvaluate,
		Payload: EvaluationJob{
			Payload: payload,
			Silent:  c.Query("silent") == "true",
		},
	}
	if err := h.queue.Enqueue(job); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusServiceUnavailable, "evaluation queue unavailable"))
		return
	}

	response.Accepted(c, gin.H{"submission_id": job.ID, "status": "queued"})
}

// verifySignature checks the hex HMAC-SHA256 of the body. An empty signing
// secret disables verification for local development.
func (h *SubmissionHandler) verifySignature(body []byte, signature string) bool {
	if h.signingSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
