// Package store keeps job status records in Redis for lookups by id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/makeasinger/ttsstream/internal/model"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("job not found")

const recordTTL = 24 * time.Hour

type JobStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewJobStore(redisClient *redis.Client) *JobStore {
	return &JobStore{redis: redisClient, ttl: recordTTL}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// Save overwrites the job's record and refreshes its TTL.
func (s *JobStore) Save(ctx context.Context, rec *model.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(rec.ID), data, s.ttl).Err()
}

func (s *JobStore) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rec model.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
