package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a presenter account role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePresenter Role = "presenter"
)

// User is a presenter account. Participants never have one.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPublic is User without the password hash.
type UserPublic struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RolePresenter
}

// UserPatch carries the account fields an admin may change. PasswordHash is
// already hashed.
type UserPatch struct {
	Email        *string
	Name         *string
	PasswordHash *string
	Role         *Role
}
