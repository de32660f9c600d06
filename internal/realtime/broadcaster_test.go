package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/votes"
)

func newTestBroadcaster(t *testing.T) (*Hub, *Broadcaster) {
	t.Helper()
	hub := NewHub(NewLocalTransport(), zaptest.NewLogger(t))
	return hub, NewBroadcaster(hub, zaptest.NewLogger(t))
}

func activeSession() *models.Session {
	return &models.Session{ID: uuid.New(), PIN: "123456", Status: models.SessionStatusActive}
}

func TestPublishQuestionRequiresActiveSession(t *testing.T) {
	_, b := newTestBroadcaster(t)
	sess := activeSession()
	sess.Status = models.SessionStatusCreated

	err := b.PublishQuestion(context.Background(), sess, &models.Question{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestPublishQuestionReachesWholeRoom(t *testing.T) {
	hub, b := newTestBroadcaster(t)
	sess := activeSession()
	limit := 30
	q := &models.Question{
		ID:        uuid.New(),
		Title:     "Favourite gopher?",
		Type:      models.QuestionTypeMultipleChoice,
		Options:   json.RawMessage(`[{"id":"a","text":"Go"},{"id":"b","text":"Gopher"}]`),
		TimeLimit: &limit,
	}
	host, p := newRecorder("host"), newRecorder("p")
	hub.Join(sess.Room(), RoleHost, host)
	hub.Join(sess.Room(), RoleParticipant, p)

	require.NoError(t, b.PublishQuestion(context.Background(), sess, q))

	for _, ep := range []*recorder{host, p} {
		msg, ok := ep.last(EventStateSync)
		require.True(t, ok)
		st := decodeState(t, msg)
		assert.Equal(t, StatusActive, st.Status)
		assert.Equal(t, q.ID.String(), st.QuestionID)
		assert.Equal(t, sess.ID.String(), st.SessionID)
		require.NotNil(t, st.TimeLimit)
		assert.Equal(t, 30, *st.TimeLimit)
	}
}

func TestPublishStateRejectsUnknownStatus(t *testing.T) {
	hub, b := newTestBroadcaster(t)
	ep := newRecorder("p")
	hub.Join("room", RoleParticipant, ep)

	err := b.PublishState(context.Background(), "room", State{Status: "PAUSED"})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Empty(t, ep.events())
}

// A participant joining after the host moved on must see the current question.
func TestLateJoinerIsSyncedToCurrentState(t *testing.T) {
	hub, b := newTestBroadcaster(t)
	ctx := context.Background()
	sess := activeSession()
	q2 := &models.Question{ID: uuid.New(), Title: "Q2", Type: models.QuestionTypeWordCloud}

	require.NoError(t, b.PublishQuestion(ctx, sess, &models.Question{ID: uuid.New(), Title: "Q1"}))
	require.NoError(t, b.PublishQuestion(ctx, sess, q2))

	late := newRecorder("late")
	hub.Join(sess.Room(), RoleParticipant, late)
	sent, err := b.Sync(ctx, sess.Room(), late)
	require.NoError(t, err)
	require.True(t, sent)

	msg, ok := late.last(EventStateSync)
	require.True(t, ok)
	assert.Equal(t, q2.ID.String(), decodeState(t, msg).QuestionID)

	active, ok, err := b.ActiveQuestion(ctx, sess.Room())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, q2.ID, active)
}

func TestForgetClearsRetainedState(t *testing.T) {
	_, b := newTestBroadcaster(t)
	ctx := context.Background()
	sess := activeSession()
	require.NoError(t, b.PublishQuestion(ctx, sess, &models.Question{ID: uuid.New()}))

	require.NoError(t, b.Forget(ctx, sess.Room()))

	sent, err := b.Sync(ctx, sess.Room(), newRecorder("x"))
	require.NoError(t, err)
	assert.False(t, sent)
	_, ok, err := b.ActiveQuestion(ctx, sess.Room())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaitingHasNoActiveQuestion(t *testing.T) {
	_, b := newTestBroadcaster(t)
	require.NoError(t, b.PublishWaiting(context.Background(), "room"))

	_, ok, err := b.ActiveQuestion(context.Background(), "room")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotificationsOnlyReachHosts(t *testing.T) {
	hub, b := newTestBroadcaster(t)
	ctx := context.Background()
	host, p := newRecorder("host"), newRecorder("p")
	hub.Join("room", RoleHost, host)
	hub.Join("room", RoleParticipant, p)

	require.NoError(t, b.NotifyJoin(ctx, "room", JoinNotice{ClientID: "p", Nickname: "ann"}))
	require.NoError(t, b.NotifyVote(ctx, "room", votes.VoteNotice{ParticipantID: uuid.New(), QuestionID: uuid.New(), Count: 1}))

	assert.Equal(t, []string{EventParticipantJoined, EventNewVote}, host.events())
	assert.Empty(t, p.events())
}
