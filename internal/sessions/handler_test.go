package sessions

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pace-quizz/backend/internal/auth"
	"github.com/pace-quizz/backend/internal/middleware"
	"github.com/pace-quizz/backend/internal/models"
)

type api struct {
	t      *testing.T
	router *gin.Engine
	jwt    *auth.JWTService
	f      *fixture
}

func newAPI(t *testing.T) *api {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, nil)
	jwtSvc := auth.NewJWTService("test-secret", 1)
	h := NewHandler(f.ctrl, zaptest.NewLogger(t))

	r := gin.New()
	r.GET("/sessions/pin/:pin", h.GetByPin)
	authed := r.Group("", middleware.JWT(jwtSvc))
	authed.POST("/sessions", h.Create)
	authed.GET("/sessions/my", h.ListMine)
	authed.GET("/sessions", middleware.RequireRole(string(models.RoleAdmin)), h.ListAll)
	host := authed.Group("/sessions/:id", RequireSessionHost(f.stores.Sessions))
	host.GET("", h.Get)
	host.PATCH("", h.Update)
	host.DELETE("", h.Delete)
	host.POST("/start", h.Start)
	host.POST("/end", h.End)
	host.POST("/reset", h.Reset)
	host.POST("/questions/:questionId/activate", h.ActivateQuestion)
	return &api{t: t, router: r, jwt: jwtSvc, f: f}
}

func (a *api) token(userID uuid.UUID, role models.Role) string {
	tok, err := a.jwt.Generate(userID, "u@example.com", string(role))
	require.NoError(a.t, err)
	return tok
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) models.Session {
	t.Helper()
	var body struct {
		Data models.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	host := a.token(a.f.host, models.RolePresenter)

	w := a.do(http.MethodPost, "/sessions", host, CreateRequest{Name: "Quiz night"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	s := decodeSession(t, w)
	assert.Equal(t, models.SessionStatusCreated, s.Status)

	w = a.do(http.MethodGet, "/sessions/pin/"+s.PIN, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, s.ID, decodeSession(t, w).ID)

	base := "/sessions/" + s.ID.String()
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, base+"/end", host, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/start", host, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/start", host, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/end", host, nil).Code)

	w = a.do(http.MethodPost, base+"/reset", host, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(http.MethodGet, base, host, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SessionStatusCreated, decodeSession(t, w).Status)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, base, host, nil).Code)
}

func TestSessionRoutesRequireHost(t *testing.T) {
	a := newAPI(t)
	host := a.token(a.f.host, models.RolePresenter)
	stranger := a.token(uuid.New(), models.RolePresenter)
	admin := a.token(uuid.New(), models.RoleAdmin)

	s := decodeSession(t, a.do(http.MethodPost, "/sessions", host, CreateRequest{Name: "Quiz"}))
	base := "/sessions/" + s.ID.String()

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, base+"/start", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, base+"/start", stranger, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/start", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/sessions/"+uuid.NewString(), host, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/sessions/not-a-uuid", host, nil).Code)
}

func TestCreateSessionValidation(t *testing.T) {
	a := newAPI(t)
	host := a.token(a.f.host, models.RolePresenter)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/sessions", host, map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/sessions", host, CreateRequest{Name: "x", Type: "PODCAST"}).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/sessions/pin/000000", "", nil).Code)
}

func TestListMine(t *testing.T) {
	a := newAPI(t)
	host := a.token(a.f.host, models.RolePresenter)
	other := a.token(uuid.New(), models.RolePresenter)
	a.do(http.MethodPost, "/sessions", host, CreateRequest{Name: "one"})
	a.do(http.MethodPost, "/sessions", host, CreateRequest{Name: "two"})
	a.do(http.MethodPost, "/sessions", other, CreateRequest{Name: "theirs"})

	w := a.do(http.MethodGet, "/sessions/my", host, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Sessions []models.Session `json:"sessions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data.Sessions, 2)
}

func TestListAllIsAdminOnly(t *testing.T) {
	a := newAPI(t)
	host := a.token(a.f.host, models.RolePresenter)
	a.do(http.MethodPost, "/sessions", host, CreateRequest{Name: "one"})
	a.do(http.MethodPost, "/sessions", a.token(uuid.New(), models.RolePresenter), CreateRequest{Name: "theirs"})

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/sessions", host, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/sessions", "", nil).Code)

	w := a.do(http.MethodGet, "/sessions", a.token(uuid.New(), models.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Sessions []models.Session `json:"sessions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data.Sessions, 2)
}

func TestActivateQuestionOverHTTP(t *testing.T) {
	a := newAPI(t)
	host := a.token(a.f.host, models.RolePresenter)
	s := decodeSession(t, a.do(http.MethodPost, "/sessions", host, CreateRequest{Name: "Quiz"}))
	q := a.f.addQuestion(t, s.ID, "first")
	base := "/sessions/" + s.ID.String()

	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, base+"/questions/"+q.ID.String()+"/activate", host, nil).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/start", host, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/questions/"+q.ID.String()+"/activate", host, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, base+"/questions/"+uuid.NewString()+"/activate", host, nil).Code)
}
