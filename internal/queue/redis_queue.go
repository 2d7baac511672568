// Package queue hands generation request ids from the intake API to workers.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when nothing arrived within the wait.
var ErrEmpty = errors.New("queue: empty")

// RedisQueue is a FIFO list: producers LPUSH, consumers BRPOP.
type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

// Push enqueues a request id.
func (q *RedisQueue) Push(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("queue: empty id")
	}
	return q.rdb.LPush(ctx, q.queueName, id).Err()
}

// Pop blocks for up to wait. A zero wait would block forever, so callers pass a
// bounded value and loop, which lets them notice shutdown.
func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmpty
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	if len(res) < 2 {
		return "", ErrEmpty
	}
	return res[1], nil
}

// Depth reports the number of waiting ids.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}
