package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/pkg/database"
)

const sessionColumns = `id, name, pin, kind, status, host_id, banner_url, thank_you_message, created_at, updated_at`

// Repository handles session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Name, &s.PIN, &s.Kind, &s.Status, &s.HostID, &s.BannerURL, &s.ThankYouMessage, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}

// Create inserts s. A PIN already held by a live session yields models.ErrConflict.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions (name, pin, kind, status, host_id, banner_url, thank_you_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, s.Name, s.PIN, s.Kind, s.Status, s.HostID, s.BannerURL, s.ThankYouMessage).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if database.IsUniqueViolation(err, "sessions_live_pin_key") {
		return fmt.Errorf("pin %s: %w", s.PIN, models.ErrConflict)
	}
	return err
}

// GetByID returns a session by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "session "+id.String())
	}
	return s, nil
}

// GetByPin prefers the live session holding pin, then the most recent finished one.
func (r *Repository) GetByPin(ctx context.Context, pin string) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE pin = $1
		ORDER BY (status = 'FINISHED'), created_at DESC LIMIT 1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, pin))
	if err != nil {
		return nil, notFound(err, "session pin "+pin)
	}
	return s, nil
}

// UpdateStatus sets the status when it currently is one of from, or unconditionally when from is empty.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, to models.SessionStatus, from ...models.SessionStatus) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if len(from) == 0 {
		tag, err = r.pool.Exec(ctx, `UPDATE sessions SET status = $2, updated_at = NOW() WHERE id = $1`, id, to)
	} else {
		allowed := make([]string, len(from))
		for i, f := range from {
			allowed[i] = string(f)
		}
		tag, err = r.pool.Exec(ctx,
			`UPDATE sessions SET status = $2, updated_at = NOW() WHERE id = $1 AND status = ANY($3)`,
			id, to, allowed)
	}
	if database.IsUniqueViolation(err, "sessions_live_pin_key") {
		return false, fmt.Errorf("session %s: %w", id, models.ErrConflict)
	}
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 && len(from) == 0 {
		return false, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdatePin assigns a new PIN.
func (r *Repository) UpdatePin(ctx context.Context, id uuid.UUID, pin string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET pin = $2, updated_at = NOW() WHERE id = $1`, id, pin)
	if database.IsUniqueViolation(err, "sessions_live_pin_key") {
		return fmt.Errorf("pin %s: %w", pin, models.ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// PinInUse reports whether a live session other than exclude holds pin.
func (r *Repository) PinInUse(ctx context.Context, pin string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE pin = $1 AND status <> 'FINISHED' AND id <> $2)`,
		pin, exclude).Scan(&exists)
	return exists, err
}

// ListByHost returns a presenter's sessions, newest first.
func (r *Repository) ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE host_id = $1 ORDER BY created_at DESC`, hostID)
}

// ListAll returns every session, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]models.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`)
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// Update applies the non-nil fields of p.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p models.SessionPatch) (*models.Session, error) {
	const q = `UPDATE sessions SET
			name = COALESCE($2, name),
			banner_url = COALESCE($3, banner_url),
			thank_you_message = COALESCE($4, thank_you_message),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, q, id, p.Name, p.BannerURL, p.ThankYouMessage))
	if err != nil {
		return nil, notFound(err, "session "+id.String())
	}
	return s, nil
}

// Delete removes a session. Questions, participants, responses and logs cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// IsHost reports whether userID presents sessionID.
func (r *Repository) IsHost(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	var hostID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT host_id FROM sessions WHERE id = $1`, sessionID).Scan(&hostID)
	if err != nil {
		return false, notFound(err, "session "+sessionID.String())
	}
	return hostID == userID, nil
}
