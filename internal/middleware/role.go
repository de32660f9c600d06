package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pace-quizz/backend/pkg/response"
)

// RequireRole lets through only the given roles. It must run after JWT.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		_, role, ok := User(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			return
		}
		c.Next()
	}
}
