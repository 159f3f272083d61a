package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/usageline/usageline/internal/config"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
)

// NewRedisClient creates the shared Redis connection used by the
// queue, cache, and rate limiter.
func NewRedisClient(cfg *config.Configuration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// redisQueue implements Queue on Redis lists. Producers LPUSH and
// consumers BRPOP, so the list behaves as a FIFO; RPUSH puts an item
// back at the consumer end.
type redisQueue struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisQueue(client *redis.Client, logger *logger.Logger) Queue {
	return &redisQueue{client: client, logger: logger}
}

func (q *redisQueue) Push(ctx context.Context, queue string, payload []byte) error {
	if err := q.client.LPush(ctx, queue, payload).Err(); err != nil {
		return ierr.WithError(err).
			WithHint("Queue is unavailable").
			WithReportableDetails(map[string]any{"queue": queue}).
			Mark(ierr.ErrServiceUnavailable)
	}
	return nil
}

func (q *redisQueue) PushBatch(ctx context.Context, queue string, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	for _, payload := range payloads {
		pipe.LPush(ctx, queue, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return ierr.WithError(err).
			WithHint("Queue is unavailable").
			WithReportableDetails(map[string]any{"queue": queue, "count": len(payloads)}).
			Mark(ierr.ErrServiceUnavailable)
	}
	return nil
}

func (q *redisQueue) PopBlocking(ctx context.Context, queues []string, timeout time.Duration) (*Message, error) {
	result, err := q.client.BRPop(ctx, timeout, queues...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Queue is unavailable").
			Mark(ierr.ErrServiceUnavailable)
	}
	// BRPop returns [queue, payload]
	return &Message{Queue: result[0], Payload: []byte(result[1])}, nil
}

func (q *redisQueue) PopNoWait(ctx context.Context, queue string) ([]byte, error) {
	payload, err := q.client.RPop(ctx, queue).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Queue is unavailable").
			WithReportableDetails(map[string]any{"queue": queue}).
			Mark(ierr.ErrServiceUnavailable)
	}
	return payload, nil
}

func (q *redisQueue) RequeueFront(ctx context.Context, queue string, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}

	// RPUSH in reverse so the first payload is popped first again.
	pipe := q.client.Pipeline()
	for i := len(payloads) - 1; i >= 0; i-- {
		pipe.RPush(ctx, queue, payloads[i])
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return ierr.WithError(err).
			WithHint("Queue is unavailable").
			WithReportableDetails(map[string]any{"queue": queue, "count": len(payloads)}).
			Mark(ierr.ErrServiceUnavailable)
	}
	return nil
}

func (q *redisQueue) Len(ctx context.Context, queue string) (int64, error) {
	n, err := q.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Queue is unavailable").
			WithReportableDetails(map[string]any{"queue": queue}).
			Mark(ierr.ErrServiceUnavailable)
	}
	return n, nil
}

func (q *redisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return ierr.WithError(err).
			WithHint("Queue is unavailable").
			Mark(ierr.ErrServiceUnavailable)
	}
	return nil
}
