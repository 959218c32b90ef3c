package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/extension-approver/internal/models"
	"github.com/noah-isme/extension-approver/pkg/response"
)

type decisionServiceMock struct {
	lastFilter models.DecisionLogFilter
	lastFormat string
	logs       []models.DecisionLog
	payload    []byte
	err        error
}

func (m *decisionServiceMock) ListDecisions(ctx context.Context, filter models.DecisionLogFilter) ([]models.DecisionLog, error) {
	m.lastFilter = filter
	return m.logs, m.err
}

func (m *decisionServiceMock) ExportDecisions(ctx context.Context, filter models.DecisionLogFilter, format string) ([]byte, string, error) {
	m.lastFilter = filter
	m.lastFormat = format
	if m.err != nil {
		return nil, "", m.err
	}
	return m.payload, "text/csv", nil
}

func getDecisions(handler *DecisionHandler, target string, export bool) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, target, nil)
	c.Request = req
	if export {
		handler.Export(c)
	} else {
		handler.List(c)
	}
	return w
}

func TestDecisionHandlerList(t *testing.T) {
	svc := &decisionServiceMock{logs: []models.DecisionLog{
		{ID: "d1", StudentEmail: "alex@example.edu", Outcome: models.OutcomeAutoApproved},
	}}
	handler := NewDecisionHandler(svc)

	w := getDecisions(handler, "/decisions?email=alex@example.edu&outcome=auto_approved&limit=25", false)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "alex@example.edu", svc.lastFilter.Email)
	assert.Equal(t, models.OutcomeAutoApproved, svc.lastFilter.Outcome)
	assert.Equal(t, 25, svc.lastFilter.Limit)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.EqualValues(t, 1, envelope.Meta["count"])
}

func TestDecisionHandlerExport(t *testing.T) {
	svc := &decisionServiceMock{payload: []byte("Student,Outcome\n")}
	handler := NewDecisionHandler(svc)

	w := getDecisions(handler, "/decisions/export?format=csv", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", svc.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "Student,Outcome\n", w.Body.String())
}

func TestDecisionHandlerExportDefaultsToCSV(t *testing.T) {
	svc := &decisionServiceMock{payload: []byte("x")}
	handler := NewDecisionHandler(svc)

	w := getDecisions(handler, "/decisions/export", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", svc.lastFormat)
}
