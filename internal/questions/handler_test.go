package questions

import (
	"bytes"
	"context"
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
	"github.com/pace-quizz/backend/internal/sessions"
	"github.com/pace-quizz/backend/internal/testutil"
	"github.com/pace-quizz/backend/internal/votes"
)

type env struct {
	t       *testing.T
	router  *gin.Engine
	stores  *testutil.Stores
	session models.Session
	token   string
	agg     *votes.Aggregator
}

func newEnv(t *testing.T) *env {
	gin.SetMode(gin.TestMode)
	stores := testutil.NewStores()
	agg := votes.NewAggregator(stores.Responses, votes.NewTally(), nil, zaptest.NewLogger(t))
	h := NewHandler(stores.Questions, stores.Sessions, agg, zaptest.NewLogger(t))
	jwtSvc := auth.NewJWTService("test-secret", 1)

	hostID := uuid.New()
	s := models.Session{ID: uuid.New(), Name: "quiz", PIN: "123456", Status: models.SessionStatusCreated, HostID: hostID}
	stores.Sessions.Put(s)
	token, err := jwtSvc.Generate(hostID, "host@example.com", string(models.RolePresenter))
	require.NoError(t, err)

	r := gin.New()
	authed := r.Group("", middleware.JWT(jwtSvc))
	owned := authed.Group("/sessions/:id", sessions.RequireSessionHost(stores.Sessions))
	owned.POST("/questions", h.Create)
	owned.GET("/questions", h.ListBySession)
	authed.PATCH("/questions/:id", h.Update)
	authed.DELETE("/questions/:id", h.Delete)
	authed.GET("/questions/:id/tally", h.Tally)
	return &env{t: t, router: r, stores: stores, session: s, token: token, agg: agg}
}

func (e *env) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) create(body any) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, "/sessions/"+e.session.ID.String()+"/questions", body)
}

func decodeQuestion(t *testing.T, w *httptest.ResponseRecorder) models.Question {
	t.Helper()
	var body struct {
		Data models.Question `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

var choice = json.RawMessage(`[{"id":"a","text":"Paris","isCorrect":true},{"id":"b","text":"Lyon"}]`)

func TestCreateAppendsInOrder(t *testing.T) {
	e := newEnv(t)

	w := e.create(CreateRequest{Title: "Capital?", Type: models.QuestionTypeMultipleChoice, Options: choice})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decodeQuestion(t, w)
	w = e.create(CreateRequest{Title: "One word", Type: models.QuestionTypeWordCloud})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decodeQuestion(t, w)

	assert.Equal(t, 0, first.Order)
	assert.Equal(t, 1, second.Order)

	w = e.do(http.MethodGet, "/sessions/"+e.session.ID.String()+"/questions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Questions []models.Question `json:"questions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Questions, 2)
	assert.Equal(t, first.ID, body.Data.Questions[0].ID)
}

func TestCreateValidatesOptions(t *testing.T) {
	e := newEnv(t)

	cases := []CreateRequest{
		{Title: "no options", Type: models.QuestionTypeMultipleChoice},
		{Title: "one option", Type: models.QuestionTypeMultipleChoice, Options: json.RawMessage(`[{"id":"a","text":"A"}]`)},
		{Title: "bad scale", Type: models.QuestionTypeRatingScale, Options: json.RawMessage(`{"min":5,"max":1,"step":1}`)},
		{Title: "bad type", Type: "ESSAY"},
		{Title: "   ", Type: models.QuestionTypeWordCloud},
	}
	for _, tc := range cases {
		assert.Equal(t, http.StatusBadRequest, e.create(tc).Code, tc.Title)
	}

	ok := e.create(CreateRequest{Title: "Rate it", Type: models.QuestionTypeRatingScale, Options: json.RawMessage(`{"min":1,"max":5,"step":1}`)})
	assert.Equal(t, http.StatusCreated, ok.Code)
}

func TestEditsLockedOnceLive(t *testing.T) {
	e := newEnv(t)
	q := decodeQuestion(t, e.create(CreateRequest{Title: "Capital?", Type: models.QuestionTypeMultipleChoice, Options: choice}))

	title := "Capital of France?"
	w := e.do(http.MethodPatch, "/questions/"+q.ID.String(), models.QuestionPatch{Title: &title})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, title, decodeQuestion(t, w).Title)

	_, err := e.stores.Sessions.UpdateStatus(context.Background(), e.session.ID, models.SessionStatusActive)
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict, e.do(http.MethodPatch, "/questions/"+q.ID.String(), models.QuestionPatch{Title: &title}).Code)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodDelete, "/questions/"+q.ID.String(), nil).Code)
	assert.Equal(t, http.StatusConflict, e.create(CreateRequest{Title: "late", Type: models.QuestionTypeWordCloud}).Code)
}

func TestDeleteQuestion(t *testing.T) {
	e := newEnv(t)
	q := decodeQuestion(t, e.create(CreateRequest{Title: "Word?", Type: models.QuestionTypeWordCloud}))

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/questions/"+q.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/questions/"+q.ID.String(), nil).Code)
}

func TestQuestionRoutesRequireHost(t *testing.T) {
	e := newEnv(t)
	q := decodeQuestion(t, e.create(CreateRequest{Title: "Word?", Type: models.QuestionTypeWordCloud}))

	stranger, err := auth.NewJWTService("test-secret", 1).Generate(uuid.New(), "x@example.com", string(models.RolePresenter))
	require.NoError(t, err)
	e.token = stranger

	title := "hijack"
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPatch, "/questions/"+q.ID.String(), models.QuestionPatch{Title: &title}).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/questions/"+q.ID.String()+"/tally", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.create(CreateRequest{Title: "x", Type: models.QuestionTypeWordCloud}).Code)
}

func TestTallyRebuildsFromResponses(t *testing.T) {
	e := newEnv(t)
	q := decodeQuestion(t, e.create(CreateRequest{Title: "Capital?", Type: models.QuestionTypeMultipleChoice, Options: choice}))
	ctx := context.Background()
	for _, opt := range []string{"a", "a", "b"} {
		_, err := e.stores.Responses.Upsert(ctx, uuid.New(), q.ID, json.RawMessage(`{"optionId":"`+opt+`"}`), 0)
		require.NoError(t, err)
	}

	w := e.do(http.MethodGet, "/questions/"+q.ID.String()+"/tally", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data TallyResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]int64{"a": 2, "b": 1}, body.Data.Counts)
	assert.True(t, e.agg.Tally().Has(q.ID))
}
