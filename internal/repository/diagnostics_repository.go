package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/assessment-client/internal/model"
)

// DiagnosticsRepository persists finished or failed attempts for support.
type DiagnosticsRepository struct {
	pool *pgxpool.Pool
}

// NewDiagnosticsRepository creates a new DiagnosticsRepository.
func NewDiagnosticsRepository(pool *pgxpool.Pool) *DiagnosticsRepository {
	return &DiagnosticsRepository{pool: pool}
}

// Save upserts the attempt row and appends its error log entries.
// Entries already stored for the attempt are skipped.
func (r *DiagnosticsRepository) Save(ctx context.Context, d *model.Diagnostics) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var attemptID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO assessment_attempts
		   (user_id, test_id, assessment_id, thread_id, status, completed,
		    final_score, correct_answers, answered, total, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (user_id, test_id, thread_id) DO UPDATE
		 SET assessment_id = EXCLUDED.assessment_id,
		     status = EXCLUDED.status,
		     completed = EXCLUDED.completed,
		     final_score = EXCLUDED.final_score,
		     correct_answers = EXCLUDED.correct_answers,
		     answered = EXCLUDED.answered,
		     total = EXCLUDED.total,
		     started_at = COALESCE(assessment_attempts.started_at, EXCLUDED.started_at),
		     finished_at = EXCLUDED.finished_at,
		     updated_at = NOW()
		 RETURNING id`,
		d.UserID, d.TestID, d.AssessmentID, d.ThreadID, string(d.Status), d.Completed,
		d.FinalScore, d.CorrectAnswers, d.Answered, d.Total, d.StartedAt, d.FinishedAt,
	).Scan(&attemptID)
	if err != nil {
		return fmt.Errorf("upsert attempt: %w", err)
	}

	if len(d.ErrorLogs) > 0 {
		batch := &pgx.Batch{}
		for _, e := range d.ErrorLogs {
			id, err := uuid.Parse(e.ID)
			if err != nil {
				id = uuid.New()
			}
			batch.Queue(
				`INSERT INTO assessment_error_logs
				   (id, attempt_id, type, message, code, details, recoverable, logged_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT (id) DO NOTHING`,
				id, attemptID, string(e.Type), e.Message, e.Code, e.Details, e.Recoverable, e.Timestamp,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert error logs: %w", err)
		}
	}

	return tx.Commit(ctx)
}
