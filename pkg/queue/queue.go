package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueExports is the Redis list of results-export jobs.
	QueueExports = "pace:jobs:exports"
	// QueueDLQ holds jobs that failed MaxRetries times.
	QueueDLQ = "pace:jobs:dlq"
	// MaxRetries is the number of attempts before a job goes to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the pause the worker takes before re-running a failed job.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const JobTypeResultsExport JobType = "results_export"

// ResultsExportPayload asks the worker to export a finished session.
type ResultsExportPayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

// Job is the envelope stored in the list.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue is a Redis list job queue with retry and dead-lettering.
type Queue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewQueue creates a queue on QueueExports.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, key: QueueExports, logger: logger}
}

func (q *Queue) enqueue(ctx context.Context, typ JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return nil, fmt.Errorf("rpush: %w", err)
	}
	return job, nil
}

// EnqueueResultsExport enqueues an export of sessionID.
func (q *Queue) EnqueueResultsExport(ctx context.Context, sessionID uuid.UUID) error {
	job, err := q.enqueue(ctx, JobTypeResultsExport, ResultsExportPayload{SessionID: sessionID})
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued results export", zap.String("job_id", job.ID), zap.String("session_id", sessionID.String()))
	return nil
}

// Dequeue blocks up to timeout for a job. It returns nil, nil on timeout or
// when the stored entry is not a valid job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues job with its attempt incremented, or moves it to the DLQ
// once it has been tried MaxRetries times.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
