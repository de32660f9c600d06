package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pace-quizz/backend/internal/auth"
	"github.com/pace-quizz/backend/pkg/response"
)

const (
	// ContextUserID holds the presenter's uuid.UUID.
	ContextUserID = "user_id"
	// ContextUserRole holds the presenter's role as a string.
	ContextUserRole = "user_role"
	// ContextUserEmail holds the presenter's email.
	ContextUserEmail = "user_email"
)

// TokenValidator parses presenter tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWT requires a valid "Authorization: Bearer <token>" header and stores its claims in the context.
func JWT(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			response.Unauthorized(c, "invalid authorization header")
			return
		}
		claims, err := v.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// User returns the authenticated presenter's id and role.
func User(c *gin.Context) (uuid.UUID, string, bool) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, "", false
	}
	uid, ok := id.(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	return uid, c.GetString(ContextUserRole), true
}
