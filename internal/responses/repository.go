package responses

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pace-quizz/backend/internal/models"
)

const responseColumns = `id, participant_id, question_id, answer, time_taken, created_at, updated_at`

// Repository handles response persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a response repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanResponse(row pgx.Row) (*models.Response, error) {
	var r models.Response
	if err := row.Scan(&r.ID, &r.ParticipantID, &r.QuestionID, &r.Answer, &r.TimeTaken, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// Upsert stores the participant's answer to a question, replacing any earlier one.
func (r *Repository) Upsert(ctx context.Context, participantID, questionID uuid.UUID, answer json.RawMessage, timeTaken int) (*models.Response, error) {
	const q = `INSERT INTO responses (participant_id, question_id, answer, time_taken)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT responses_participant_question_key
		DO UPDATE SET answer = EXCLUDED.answer, time_taken = EXCLUDED.time_taken, updated_at = now()
		RETURNING ` + responseColumns
	return scanResponse(r.pool.QueryRow(ctx, q, participantID, questionID, answer, timeTaken))
}

// DeleteAllForQuestions removes every response to the given questions.
func (r *Repository) DeleteAllForQuestions(ctx context.Context, questionIDs []uuid.UUID) (int64, error) {
	if len(questionIDs) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM responses WHERE question_id = ANY($1)`, questionIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByQuestions returns every response to the given questions, oldest first.
func (r *Repository) ListByQuestions(ctx context.Context, questionIDs []uuid.UUID) ([]models.Response, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+responseColumns+` FROM responses WHERE question_id = ANY($1) ORDER BY created_at`, questionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *resp)
	}
	return list, rows.Err()
}

// CountByOption counts the stored answers of a question by tally key.
// Answers that cannot be decoded are skipped.
func (r *Repository) CountByOption(ctx context.Context, questionID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT answer FROM responses WHERE question_id = $1`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var raw json.RawMessage
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		a, err := models.ParseAnswer(raw)
		if err != nil {
			continue
		}
		if key := a.TallyKey(); key != "" {
			counts[key]++
		}
	}
	return counts, rows.Err()
}
