package auth

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

const userColumns = `id, email, password, name, role, created_at, updated_at`

// Repository handles presenter accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a user repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return u, err
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
	}
	return u, err
}

// Create inserts a user. A taken email yields models.ErrConflict.
func (r *Repository) Create(ctx context.Context, email, passwordHash, name string, role models.Role) (*models.User, error) {
	const q = `INSERT INTO users (email, password, name, role) VALUES ($1, $2, $3, $4) RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, email, passwordHash, name, role))
	if database.IsUniqueViolation(err, "") {
		return nil, fmt.Errorf("email %s: %w", email, models.ErrConflict)
	}
	return u, err
}

// List returns every account, oldest first.
func (r *Repository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}

// Update applies the non-nil fields of p.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p models.UserPatch) (*models.User, error) {
	const q = `UPDATE users SET
			email = COALESCE($2, email),
			name = COALESCE($3, name),
			password = COALESCE($4, password),
			role = COALESCE($5, role),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, id, p.Email, p.Name, p.PasswordHash, p.Role))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	case database.IsUniqueViolation(err, ""):
		return nil, fmt.Errorf("user %s email: %w", id, models.ErrConflict)
	}
	return u, err
}

// Delete removes an account. Its sessions cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}
