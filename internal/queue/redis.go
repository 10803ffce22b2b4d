package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists tasks in redis so enqueueing processes and
// workers can be deployed separately. Task bodies live in plain keys;
// a sorted set scored by availability time orders the pending work.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on top of an existing redis client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func taskKey(queue, id string) string   { return fmt.Sprintf("queue:%s:task:%s", queue, id) }
func pendingKey(queue string) string    { return fmt.Sprintf("queue:%s:pending", queue) }
func activeKey(queue string) string     { return fmt.Sprintf("queue:%s:active", queue) }
func completedKey(queue string) string  { return fmt.Sprintf("queue:%s:completed", queue) }
func failedKey(queue string) string     { return fmt.Sprintf("queue:%s:failed", queue) }
func dedupKey(queue, key string) string { return fmt.Sprintf("queue:%s:dedup:%s", queue, key) }

func (s *RedisStore) Enqueue(ctx context.Context, t *Task) error {
	if err := s.saveTask(ctx, t); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, pendingKey(t.Queue), &redis.Z{
		Score:  float64(t.AvailableAt.UnixMilli()),
		Member: t.ID,
	}).Err()
}

func (s *RedisStore) EnqueueUnique(ctx context.Context, t *Task) (*Task, bool, error) {
	key := dedupKey(t.Queue, t.DedupKey)

	// Bounded loop: a stale dedup key pointing at a finished task is
	// cleared and the claim retried.
	for i := 0; i < 3; i++ {
		ok, err := s.client.SetNX(ctx, key, t.ID, 0).Result()
		if err != nil {
			return nil, false, err
		}
		if ok {
			if err := s.Enqueue(ctx, t); err != nil {
				return nil, false, err
			}
			return nil, true, nil
		}

		existingID, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // released between SetNX and Get
		}
		if err != nil {
			return nil, false, err
		}

		existing, err := s.Get(ctx, t.Queue, existingID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil && (existing.State == StatePending || existing.State == StateActive) {
			return existing, false, nil
		}

		if err := s.client.Del(ctx, key).Err(); err != nil {
			return nil, false, err
		}
	}

	return nil, false, fmt.Errorf("could not settle dedup key %s", t.DedupKey)
}

func (s *RedisStore) Claim(ctx context.Context, queue string, now time.Time) (*Task, error) {
	for {
		ids, err := s.client.ZRangeByScore(ctx, pendingKey(queue), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now.UnixMilli(), 10),
			Count: 1,
		}).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}

		// ZRem doubles as the claim: only the remover owns the task.
		removed, err := s.client.ZRem(ctx, pendingKey(queue), ids[0]).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			continue
		}

		t, err := s.Get(ctx, queue, ids[0])
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue // body expired out from under the index
		}

		t.State = StateActive
		t.Attempts++
		if err := s.saveTask(ctx, t); err != nil {
			return nil, err
		}
		if err := s.client.SAdd(ctx, activeKey(queue), t.ID).Err(); err != nil {
			return nil, err
		}
		return t, nil
	}
}

func (s *RedisStore) Update(ctx context.Context, t *Task) error {
	return s.saveTask(ctx, t)
}

func (s *RedisStore) Retry(ctx context.Context, t *Task) error {
	if err := s.saveTask(ctx, t); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, activeKey(t.Queue), t.ID).Err(); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, pendingKey(t.Queue), &redis.Z{
		Score:  float64(t.AvailableAt.UnixMilli()),
		Member: t.ID,
	}).Err()
}

func (s *RedisStore) Complete(ctx context.Context, t *Task, keep int) error {
	if err := s.saveTask(ctx, t); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, activeKey(t.Queue), t.ID).Err(); err != nil {
		return err
	}
	if err := s.releaseDedup(ctx, t); err != nil {
		return err
	}

	key := completedKey(t.Queue)
	if err := s.client.LPush(ctx, key, t.ID).Err(); err != nil {
		return err
	}
	if keep <= 0 {
		return nil
	}

	// Drop bodies of entries about to be trimmed, then trim the index.
	trimmed, err := s.client.LRange(ctx, key, int64(keep), -1).Result()
	if err != nil {
		return err
	}
	for _, id := range trimmed {
		if err := s.client.Del(ctx, taskKey(t.Queue, id)).Err(); err != nil {
			return err
		}
	}
	return s.client.LTrim(ctx, key, 0, int64(keep)-1).Err()
}

func (s *RedisStore) Fail(ctx context.Context, t *Task) error {
	if err := s.saveTask(ctx, t); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, activeKey(t.Queue), t.ID).Err(); err != nil {
		return err
	}
	if err := s.releaseDedup(ctx, t); err != nil {
		return err
	}
	return s.client.LPush(ctx, failedKey(t.Queue), t.ID).Err()
}

func (s *RedisStore) Get(ctx context.Context, queue, id string) (*Task, error) {
	body, err := s.client.Get(ctx, taskKey(queue, id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var t Task
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

func (s *RedisStore) Counts(ctx context.Context, queue string) (Counts, error) {
	var c Counts
	var err error

	if c.Pending, err = s.client.ZCard(ctx, pendingKey(queue)).Result(); err != nil {
		return c, err
	}
	if c.Active, err = s.client.SCard(ctx, activeKey(queue)).Result(); err != nil {
		return c, err
	}
	if c.Completed, err = s.client.LLen(ctx, completedKey(queue)).Result(); err != nil {
		return c, err
	}
	if c.Failed, err = s.client.LLen(ctx, failedKey(queue)).Result(); err != nil {
		return c, err
	}
	return c, nil
}

func (s *RedisStore) saveTask(ctx context.Context, t *Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return s.client.Set(ctx, taskKey(t.Queue, t.ID), body, 0).Err()
}

func (s *RedisStore) releaseDedup(ctx context.Context, t *Task) error {
	if t.DedupKey == "" {
		return nil
	}
	return s.client.Del(ctx, dedupKey(t.Queue, t.DedupKey)).Err()
}
