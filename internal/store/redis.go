package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreamforge/api/internal/model"
)

// RedisStore persists job records as JSON at job:<id> with a retention TTL
// and publishes snapshots on jobs:events:<id> for subscribers.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string     { return fmt.Sprintf("job:%s", id) }
func eventChannel(id string) string { return fmt.Sprintf("jobs:events:%s", id) }

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Put(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.rdb.Set(ctx, jobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	snap, err := json.Marshal(model.SnapshotOf(job))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	// Publish failures leave the record intact; observers catch up on the
	// next write.
	if err := s.rdb.Publish(ctx, eventChannel(job.ID), snap).Err(); err != nil {
		log.Printf("Failed to publish snapshot for job %s: %v", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, jobKey(id)).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, id string) (<-chan model.JobSnapshot, func(), error) {
	pubsub := s.rdb.Subscribe(ctx, eventChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to job events: %w", err)
	}

	out := make(chan model.JobSnapshot, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var snap model.JobSnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				log.Printf("Dropping malformed snapshot for job %s: %v", id, err)
				continue
			}
			select {
			case out <- snap:
			default:
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}
