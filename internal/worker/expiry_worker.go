package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/ttsstream/internal/artifact"
)

const (
	TaskTypeArtifactExpire = "artifact:expire"
	QueueMaintenance       = "maintenance"
)

type expirePayload struct {
	JobID string `json:"jobId"`
}

func newExpireTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(expirePayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeArtifactExpire, data), nil
}

// Enqueuer is the part of *asynq.Client the scheduler needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExpiryScheduler enqueues a delayed removal of a completed job's artifact.
type ExpiryScheduler struct {
	client    Enqueuer
	retention time.Duration
}

func NewExpiryScheduler(client Enqueuer, retention time.Duration) *ExpiryScheduler {
	return &ExpiryScheduler{client: client, retention: retention}
}

// ScheduleExpiry is idempotent per job: a second call for the same job is a
// no-op while the first task is pending.
func (s *ExpiryScheduler) ScheduleExpiry(ctx context.Context, jobID string) error {
	task, err := newExpireTask(jobID)
	if err != nil {
		return err
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueMaintenance),
		asynq.ProcessIn(s.retention),
		asynq.MaxRetry(3),
		asynq.TaskID("expire:"+jobID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue expiry for job %s: %w", jobID, err)
	}
	return nil
}

// ExpiryWorker removes expired job directories.
type ExpiryWorker struct {
	artifacts *artifact.Store
}

func NewExpiryWorker(artifacts *artifact.Store) *ExpiryWorker {
	return &ExpiryWorker{artifacts: artifacts}
}

// ProcessTask handles artifact expiry
func (w *ExpiryWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload expirePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if payload.JobID == "" {
		return fmt.Errorf("expiry task without job id: %w", asynq.SkipRetry)
	}

	if !w.artifacts.Exists(payload.JobID) {
		log.Printf("Job %s: artifact already gone", payload.JobID)
		return nil
	}
	if err := w.artifacts.Remove(payload.JobID); err != nil {
		return err
	}
	log.Printf("Job %s: artifact expired and removed", payload.JobID)
	return nil
}
