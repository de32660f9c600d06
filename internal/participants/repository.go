package participants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pace-quizz/backend/internal/models"
)

const participantColumns = `id, session_id, nickname, avatar, created_at`

// Repository handles participant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	if err := row.Scan(&p.ID, &p.SessionID, &p.Nickname, &p.Avatar, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertByNickname returns the session's participant with nickname, creating
// it if needed and refreshing its avatar. A nil or blank nickname always
// creates an anonymous participant.
func (r *Repository) UpsertByNickname(ctx context.Context, sessionID uuid.UUID, nickname *string, avatar string) (*models.Participant, error) {
	if nickname == nil || strings.TrimSpace(*nickname) == "" {
		const q = `INSERT INTO participants (session_id, avatar) VALUES ($1, $2) RETURNING ` + participantColumns
		return scanParticipant(r.pool.QueryRow(ctx, q, sessionID, avatar))
	}
	const q = `INSERT INTO participants (session_id, nickname, avatar) VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT participants_session_nickname_key
		DO UPDATE SET avatar = EXCLUDED.avatar
		RETURNING ` + participantColumns
	return scanParticipant(r.pool.QueryRow(ctx, q, sessionID, *nickname, avatar))
}

// GetByID returns a participant by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("participant %s: %w", id, models.ErrNotFound)
	}
	return p, err
}

// ListBySession returns a session's participants in join order.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+participantColumns+` FROM participants WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// DeleteBySession removes a session's participants and, by cascade, their responses.
func (r *Repository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM participants WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
