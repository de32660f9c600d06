package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/results"
	"github.com/pace-quizz/backend/internal/testutil"
	"github.com/pace-quizz/backend/pkg/queue"
)

type memObjects struct {
	mu    sync.Mutex
	docs  map[string][]byte
	err   error
	calls int
}

func (m *memObjects) UploadJSON(_ context.Context, key string, v any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if m.docs == nil {
		m.docs = make(map[string][]byte)
	}
	m.docs[key] = raw
	return "https://bucket/" + key, nil
}

func (m *memObjects) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type exportEnv struct {
	stores  *testutil.Stores
	session models.Session
	objects *memObjects
	exp     *ResultsExporter
	queue   *queue.Queue
	mr      *miniredis.Miniredis
}

func newExportEnv(t *testing.T) *exportEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zaptest.NewLogger(t)

	stores := testutil.NewStores()
	s := models.Session{ID: uuid.New(), Name: "Final", PIN: "246810", Status: models.SessionStatusFinished, HostID: uuid.New()}
	stores.Sessions.Put(s)
	src := results.Source{Sessions: stores.Sessions, Questions: stores.Questions, Participants: stores.Participants, Responses: stores.Responses}

	q := queue.NewQueue(client, logger)
	objects := &memObjects{}
	exp := NewResultsExporter(q, src, objects, stores.Logs, logger)
	exp.Backoff = 0
	exp.PollTimeout = 50 * time.Millisecond
	return &exportEnv{stores: stores, session: s, objects: objects, exp: exp, queue: q, mr: mr}
}

func (e *exportEnv) run(t *testing.T) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.exp.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("exporter did not stop")
		}
	}
}

func TestProcessUploadsResultsAndLogs(t *testing.T) {
	e := newExportEnv(t)
	payload, err := json.Marshal(queue.ResultsExportPayload{SessionID: e.session.ID})
	require.NoError(t, err)

	key, err := e.exp.Process(context.Background(), &queue.Job{ID: "1", Type: queue.JobTypeResultsExport, Payload: payload})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "exports/"+e.session.ID.String()+"/results-"))
	assert.True(t, strings.HasSuffix(key, ".json"))
	var doc results.Results
	require.NoError(t, json.Unmarshal(e.objects.docs[key], &doc))
	assert.Equal(t, "Final", doc.SessionName)
	assert.Equal(t, []models.ActivityAction{models.ActionResultsExported}, e.stores.Logs.Actions(e.session.ID))
}

func TestProcessRejectsUnknownJobs(t *testing.T) {
	e := newExportEnv(t)
	_, err := e.exp.Process(context.Background(), &queue.Job{ID: "1", Type: "recording_upload"})
	assert.Error(t, err)
	_, err = e.exp.Process(context.Background(), &queue.Job{ID: "2", Type: queue.JobTypeResultsExport, Payload: json.RawMessage(`{`)})
	assert.Error(t, err)
	assert.Zero(t, e.objects.callCount())
}

func TestRunExportsQueuedSessions(t *testing.T) {
	e := newExportEnv(t)
	require.NoError(t, e.queue.EnqueueResultsExport(context.Background(), e.session.ID))

	stop := e.run(t)
	require.Eventually(t, func() bool { return e.objects.callCount() == 1 }, 3*time.Second, 20*time.Millisecond)
	stop()

	assert.Equal(t, []models.ActivityAction{models.ActionResultsExported}, e.stores.Logs.Actions(e.session.ID))
}

func TestRunDeadLettersFailingJobs(t *testing.T) {
	e := newExportEnv(t)
	e.objects.err = errors.New("bucket unavailable")
	require.NoError(t, e.queue.EnqueueResultsExport(context.Background(), e.session.ID))

	stop := e.run(t)
	require.Eventually(t, func() bool {
		dlq, _ := e.mr.List(queue.QueueDLQ)
		return len(dlq) == 1
	}, 3*time.Second, 20*time.Millisecond)
	stop()

	assert.Equal(t, queue.MaxRetries, e.objects.callCount())
	assert.Empty(t, e.stores.Logs.Actions(e.session.ID))
}

func TestRunDropsJobsForDeletedSessions(t *testing.T) {
	e := newExportEnv(t)
	require.NoError(t, e.queue.EnqueueResultsExport(context.Background(), uuid.New()))
	require.NoError(t, e.queue.EnqueueResultsExport(context.Background(), e.session.ID))

	stop := e.run(t)
	require.Eventually(t, func() bool { return e.objects.callCount() == 1 }, 3*time.Second, 20*time.Millisecond)
	stop()

	dlq, _ := e.mr.List(queue.QueueDLQ)
	assert.Empty(t, dlq)
}
