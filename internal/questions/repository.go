package questions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/pkg/database"
)

const (
	questionColumns = `id, session_id, title, "order", type, options, time_limit, created_at, updated_at`
	orderConstraint = "questions_session_order_key"
)

// Repository handles question persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a questions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var q models.Question
	err := row.Scan(&q.ID, &q.SessionID, &q.Title, &q.Order, &q.Type, &q.Options, &q.TimeLimit, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Create inserts q. A negative Order appends it after the session's last question.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO questions (session_id, title, "order", type, options, time_limit)
		VALUES ($1, $2,
			CASE WHEN $3 >= 0 THEN $3
			ELSE COALESCE((SELECT MAX("order") + 1 FROM questions WHERE session_id = $1), 0) END,
			$4, $5, $6)
		RETURNING id, "order", created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, q.SessionID, q.Title, q.Order, q.Type, nullJSON(q.Options), q.TimeLimit).
		Scan(&q.ID, &q.Order, &q.CreatedAt, &q.UpdatedAt)
	if database.IsUniqueViolation(err, orderConstraint) {
		return fmt.Errorf("question order %d: %w", q.Order, models.ErrConflict)
	}
	return err
}

// GetByID returns a question by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, err := scanQuestion(r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("question %s: %w", id, models.ErrNotFound)
	}
	return q, err
}

// ListBySession returns a session's questions in presentation order.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE session_id = $1 ORDER BY "order"`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *q)
	}
	return list, rows.Err()
}

// Update writes every editable field of q.
func (r *Repository) Update(ctx context.Context, q *models.Question) error {
	const query = `UPDATE questions
		SET title = $2, "order" = $3, type = $4, options = $5, time_limit = $6, updated_at = now()
		WHERE id = $1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query, q.ID, q.Title, q.Order, q.Type, nullJSON(q.Options), q.TimeLimit).Scan(&q.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("question %s: %w", q.ID, models.ErrNotFound)
	case database.IsUniqueViolation(err, orderConstraint):
		return fmt.Errorf("question order %d: %w", q.Order, models.ErrConflict)
	}
	return err
}

// Delete removes a question and its responses.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("question %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
