package sessions

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pace-quizz/backend/internal/middleware"
	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/pkg/response"
)

// HostChecker reports whether a user hosts a session.
type HostChecker interface {
	IsHost(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
}

// RequireSessionHost lets through the host of the :id session and admins.
// Call after middleware.JWT.
func RequireSessionHost(hosts HostChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid session id")
			return
		}
		if !AuthorizeHost(c, hosts, id) {
			return
		}
		c.Next()
	}
}

// AuthorizeHost writes an error response and returns false unless the caller
// may manage sessionID.
func AuthorizeHost(c *gin.Context, hosts HostChecker, sessionID uuid.UUID) bool {
	userID, role, ok := middleware.User(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return false
	}
	isHost, err := hosts.IsHost(c.Request.Context(), sessionID, userID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "session not found")
		return false
	case err != nil:
		response.Internal(c, "failed to check session host")
		return false
	case !isHost && role != string(models.RoleAdmin):
		response.Forbidden(c, "not the host of this session")
		return false
	}
	return true
}
