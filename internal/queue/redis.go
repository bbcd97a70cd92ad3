package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// blocking pop window; short enough that Dequeue notices ctx
// cancellation promptly even on an idle queue.
const popTimeout = 2 * time.Second

// RedisQueue is a Redis-list-backed Queue: LPUSH to enqueue, BRPOP to
// consume, JSON payloads. Safe for concurrent consumers; Redis hands
// each popped item to exactly one of them.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue connects to the broker at url (redis://host:port/db)
// and binds to the named list.
func NewRedisQueue(ctx context.Context, url, name string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("broker ping: %w", err)
	}
	return &RedisQueue{client: client, name: name}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, item WorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("enqueue work item: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (WorkItem, error) {
	for {
		res, err := q.client.BRPop(ctx, popTimeout, q.name).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return WorkItem{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return WorkItem{}, ctx.Err()
			}
			return WorkItem{}, fmt.Errorf("dequeue work item: %w", err)
		}

		// BRPOP returns [key, value].
		var item WorkItem
		if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
			return WorkItem{}, fmt.Errorf("unmarshal work item: %w", err)
		}
		return item, nil
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
