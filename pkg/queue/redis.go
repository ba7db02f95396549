package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-boxblur/pkg/common"
)

const (
	jobQueueKey    = "%s:job:queue"
	resultQueueKey = "%s:result:queue"
	processedKey   = "%s:processed"
)

// RedisQueue carries jobs and results between processes through two Redis
// lists. Jobs are LPUSHed and BRPOPed, which keeps FIFO order per list.
type RedisQueue struct {
	client      *redis.Client
	prefix      string
	pollTimeout time.Duration
}

func NewRedisQueue(ctx context.Context, addr, prefix string, pollTimeout time.Duration) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}

	return &RedisQueue{
		client:      client,
		prefix:      prefix,
		pollTimeout: pollTimeout,
	}, nil
}

func (q *RedisQueue) jobKey() string       { return fmt.Sprintf(jobQueueKey, q.prefix) }
func (q *RedisQueue) resultKey() string    { return fmt.Sprintf(resultQueueKey, q.prefix) }
func (q *RedisQueue) processedKey() string { return fmt.Sprintf(processedKey, q.prefix) }

// Reset drops anything left over from an earlier run.
func (q *RedisQueue) Reset(ctx context.Context) error {
	return q.client.Del(ctx, q.jobKey(), q.resultKey(), q.processedKey()).Err()
}

// PushJob adds a job to the queue
func (q *RedisQueue) PushJob(ctx context.Context, job *common.JobMessage) error {
	data, err := marshalJob(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.jobKey(), data).Err()
}

// PopJob blocks until a job is available or ctx is done.
func (q *RedisQueue) PopJob(ctx context.Context) (*common.JobMessage, error) {
	data, err := q.blockingPop(ctx, q.jobKey())
	if err != nil {
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}
	return unmarshalJob(data)
}

// PushResult adds a result to the result queue. Successful results also
// bump the processed counter.
func (q *RedisQueue) PushResult(ctx context.Context, res *common.ResultTask) error {
	data, err := marshalResult(res)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.resultKey(), data)
	if !res.Failed() {
		pipe.Incr(ctx, q.processedKey())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push result: %w", err)
	}
	return nil
}

// PopResult blocks until a result is available or ctx is done.
func (q *RedisQueue) PopResult(ctx context.Context) (*common.ResultTask, error) {
	data, err := q.blockingPop(ctx, q.resultKey())
	if err != nil {
		return nil, fmt.Errorf("failed to pop result: %w", err)
	}
	return unmarshalResult(data)
}

// Processed is the number of results pushed since the last Reset.
func (q *RedisQueue) Processed(ctx context.Context) (int64, error) {
	n, err := q.client.Get(ctx, q.processedKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (q *RedisQueue) PendingJobs(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.jobKey()).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// blockingPop polls BRPOP in pollTimeout slices so ctx cancellation is
// noticed even while the list stays empty.
func (q *RedisQueue) blockingPop(ctx context.Context, key string) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := q.client.BRPop(ctx, q.pollTimeout, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if len(result) < 2 {
			return nil, fmt.Errorf("unexpected result format")
		}
		return []byte(result[1]), nil
	}
}
