package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/extension-approver/internal/models"
)

// DecisionLogRepository persists the audit trail of policy evaluations.
type DecisionLogRepository struct {
	db *sqlx.DB
}

// NewDecisionLogRepository constructs a DecisionLogRepository.
func NewDecisionLogRepository(db *sqlx.DB) *DecisionLogRepository {
	return &DecisionLogRepository{db: db}
}

// Create inserts one evaluation outcome.
func (r *DecisionLogRepository) Create(ctx context.Context, entry *models.DecisionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO decision_logs (id, student_email, partner_email, outcome, reason, warning_count, duration_ms, created_at)
        VALUES (:id, :student_email, :partner_email, :outcome, :reason, :warning_count, :duration_ms, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create decision log: %w", err)
	}
	return nil
}

// List returns recent decisions matching the filter, newest first.
func (r *DecisionLogRepository) List(ctx context.Context, filter models.DecisionLogFilter) ([]models.DecisionLog, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Email != "" {
		conditions = append(conditions, fmt.Sprintf("(student_email = $%d OR partner_email = $%d)", len(args)+1, len(args)+1))
		args = append(args, strings.ToLower(filter.Email))
	}
	if filter.Outcome != "" {
		conditions = append(conditions, fmt.Sprintf("outcome = $%d", len(args)+1))
		args = append(args, filter.Outcome)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT id, student_email, partner_email, outcome, reason, warning_count, duration_ms, created_at
        FROM decision_logs WHERE %s ORDER BY created_at DESC LIMIT %d`, strings.Join(conditions, " AND "), limit)

	var logs []models.DecisionLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("list decision logs: %w", err)
	}
	return logs, nil
}
