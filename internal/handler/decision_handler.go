package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/extension-approver/internal/models"
	"github.com/noah-isme/extension-approver/pkg/response"
)

type decisionService interface {
	ListDecisions(ctx context.Context, filter models.DecisionLogFilter) ([]models.DecisionLog, error)
	ExportDecisions(ctx context.Context, filter models.DecisionLogFilter, format string) ([]byte, string, error)
}

// DecisionHandler exposes the evaluation audit trail.
type DecisionHandler struct {
	service decisionService
}

// NewDecisionHandler builds a new handler.
func NewDecisionHandler(service decisionService) *DecisionHandler {
	return &DecisionHandler{service: service}
}

// List godoc
// @Summary List evaluation decisions
// @Tags Decisions
// @Produce json
// @Param email query string false "Filter by student or partner email"
// @Param outcome query string false "Filter by outcome"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /decisions [get]
func (h *DecisionHandler) List(c *gin.Context) {
	logs, err := h.service.ListDecisions(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, map[string]interface{}{"count": len(logs)})
}

// Export godoc
// @Summary Export evaluation decisions
// @Tags Decisions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /decisions/export [get]
func (h *DecisionHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.ExportDecisions(c.Request.Context(), filterFromQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("decisions_%s.%s", time.Now().UTC().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

func filterFromQuery(c *gin.Context) models.DecisionLogFilter {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return models.DecisionLogFilter{
		Email:   c.Query("email"),
		Outcome: models.OutcomeKind(c.Query("outcome")),
		Limit:   limit,
	}
}
