package users

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/middleware"
	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/pkg/response"
	"github.com/pace-quizz/backend/pkg/utils"
)

// Store manages accounts.
type Store interface {
	List(ctx context.Context) ([]models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, email, passwordHash, name string, role models.Role) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, p models.UserPatch) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateRequest is the body for POST /admin/users. Role defaults to presenter.
type CreateRequest struct {
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
}

// UpdateRequest is the body for PATCH /admin/users/:id.
type UpdateRequest struct {
	Email    *string      `json:"email" binding:"omitempty,email"`
	Password *string      `json:"password"`
	Name     *string      `json:"name"`
	Role     *models.Role `json:"role"`
}

// Handler serves admin account management.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// List handles GET /admin/users.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]models.UserPublic, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToPublic())
	}
	response.OK(c, gin.H{"users": out})
}

// Get handles GET /admin/users/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	u, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, u.ToPublic())
}

// Create handles POST /admin/users.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Role == "" {
		req.Role = models.RolePresenter
	}
	if !req.Role.Valid() {
		response.BadRequest(c, "unknown role")
		return
	}
	hash, ok := h.hash(c, req.Password)
	if !ok {
		return
	}
	u, err := h.store.Create(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)), hash, strings.TrimSpace(req.Name), req.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, u.ToPublic())
}

// Update handles PATCH /admin/users/:id. A new password is rehashed.
func (h *Handler) Update(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	var p models.UserPatch
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		p.Email = &email
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		p.Name = &name
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			response.BadRequest(c, "unknown role")
			return
		}
		p.Role = req.Role
	}
	if req.Password != nil {
		hash, ok := h.hash(c, *req.Password)
		if !ok {
			return
		}
		p.PasswordHash = &hash
	}

	u, err := h.store.Update(c.Request.Context(), id, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, u.ToPublic())
}

// Delete handles DELETE /admin/users/:id. Admins cannot delete themselves.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	if self, _, _ := middleware.User(c); self == id {
		response.BadRequest(c, "cannot delete your own account")
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) hash(c *gin.Context, password string) (string, bool) {
	hash, err := utils.HashPassword(password)
	if errors.Is(err, utils.ErrPasswordTooShort) {
		response.BadRequest(c, "password must be at least 8 characters")
		return "", false
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return "", false
	}
	return hash, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, models.ErrConflict):
		response.Conflict(c, "email already registered")
	default:
		h.logger.Error("user admin failed", zap.Error(err))
		response.Internal(c, "failed to manage users")
	}
}

func userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
