package activitylog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pace-quizz/backend/internal/models"
)

// Repository is the append-only activity log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an activity log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append records action for a session. details is stored as JSON.
func (r *Repository) Append(ctx context.Context, sessionID uuid.UUID, action models.ActivityAction, details any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO activity_logs (session_id, action, details) VALUES ($1, $2, $3)`, sessionID, action, raw)
	return err
}

// ListRecent returns up to limit entries of a session, newest first.
func (r *Repository) ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	const q = `SELECT id, session_id, action, details, created_at FROM activity_logs
		WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ActivityLog
	for rows.Next() {
		var l models.ActivityLog
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Action, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
