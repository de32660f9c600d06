// Package worker runs background jobs taken from the Redis queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/results"
	"github.com/pace-quizz/backend/pkg/queue"
	"github.com/pace-quizz/backend/pkg/storage"
)

const dequeueTimeout = 5 * time.Second

// JobQueue is the part of queue.Queue the exporter consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ResultsSource computes a session's results.
type ResultsSource interface {
	ForSession(ctx context.Context, sessionID uuid.UUID) (*results.Results, error)
}

// ObjectStore uploads a JSON document.
type ObjectStore interface {
	UploadJSON(ctx context.Context, key string, v any) (string, error)
}

// ActivityLog records the finished export.
type ActivityLog interface {
	Append(ctx context.Context, sessionID uuid.UUID, action models.ActivityAction, details any) error
}

// ResultsExporter writes the results of finished sessions to object storage.
type ResultsExporter struct {
	queue   JobQueue
	results ResultsSource
	store   ObjectStore
	logs    ActivityLog
	logger  *zap.Logger

	// Backoff is the pause after a failed job.
	Backoff time.Duration
	// PollTimeout bounds each blocking dequeue.
	PollTimeout time.Duration
}

// NewResultsExporter creates an exporter.
func NewResultsExporter(q JobQueue, src ResultsSource, store ObjectStore, logs ActivityLog, logger *zap.Logger) *ResultsExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsExporter{
		queue:       q,
		results:     src,
		store:       store,
		logs:        logs,
		logger:      logger,
		Backoff:     queue.RetryBackoff,
		PollTimeout: dequeueTimeout,
	}
}

// Process runs one export job. It returns the uploaded key.
func (e *ResultsExporter) Process(ctx context.Context, job *queue.Job) (string, error) {
	if job.Type != queue.JobTypeResultsExport {
		return "", fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ResultsExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}

	res, err := e.results.ForSession(ctx, payload.SessionID)
	if err != nil {
		return "", fmt.Errorf("compute results: %w", err)
	}
	key := storage.ExportKey(payload.SessionID.String(), time.Now().Unix())
	if _, err := e.store.UploadJSON(ctx, key, res); err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}

	if err := e.logs.Append(ctx, payload.SessionID, models.ActionResultsExported, map[string]string{"key": key}); err != nil {
		e.logger.Error("activity log append failed", zap.String("session_id", payload.SessionID.String()), zap.Error(err))
	}
	e.logger.Info("results exported", zap.String("session_id", payload.SessionID.String()), zap.String("key", key))
	return key, nil
}

// Run dequeues and processes jobs until ctx is cancelled. Failed jobs are
// retried and dead-lettered by the queue. Jobs for deleted sessions are dropped.
func (e *ResultsExporter) Run(ctx context.Context) {
	e.logger.Info("results exporter started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("results exporter stopping")
			return
		default:
		}

		job, err := e.queue.Dequeue(ctx, e.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			e.logger.Warn("dequeue error", zap.Error(err))
			e.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		e.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		_, err = e.Process(ctx, job)
		if err == nil {
			continue
		}
		if errors.Is(err, models.ErrNotFound) {
			e.logger.Warn("dropping export of missing session", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		e.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if reErr := e.queue.Retry(ctx, job); reErr != nil {
			e.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		e.sleep(ctx)
	}
}

func (e *ResultsExporter) sleep(ctx context.Context) {
	if e.Backoff <= 0 {
		return
	}
	t := time.NewTimer(e.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
