// Package redis provides a Redis-backed execution queue for deployments
// where ingestion and the worker run in separate processes. A single BLPOP
// consumer preserves the one-run-at-a-time contract.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/queue"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultQueueKey = "atomaton:executions"
	popTimeout      = 1 * time.Second
	pingTimeout     = 5 * time.Second
)

// Queue implements queue.ExecutionQueue on a Redis list.
type Queue struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger

	mu        sync.Mutex
	processor queue.Processor
	started   bool
	closed    bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewQueue connects to Redis using a redis:// URL.
func NewQueue(ctx context.Context, redisURL string, logger *slog.Logger) (*Queue, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Queue{
		client: client,
		key:    defaultQueueKey,
		logger: logger.With("module", "execution_queue", "provider", "redis"),
		stopCh: make(chan struct{}),
	}, nil
}

// Enqueue pushes the JSON-encoded context onto the list tail.
func (q *Queue) Enqueue(ctx context.Context, workflowCtx *models.WorkflowContext) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()

	if closed {
		return queue.ErrQueueClosed
	}

	payload, err := json.Marshal(workflowCtx)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow context: %w", err)
	}

	err = q.client.RPush(ctx, q.key, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to push execution onto queue: %w", err)
	}

	return nil
}

// SetProcessor installs the consumer and starts the single drain goroutine.
// Items already on the list are picked up immediately.
func (q *Queue) SetProcessor(processor queue.Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.processor = processor

	if q.started || q.closed {
		return
	}

	q.started = true
	q.wg.Add(1)

	go q.consume()
}

// Size reports the list length.
func (q *Queue) Size(ctx context.Context) (int, error) {
	size, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue size: %w", err)
	}

	return int(size), nil
}

// Clear drops all pending items.
func (q *Queue) Clear(ctx context.Context) error {
	err := q.client.Del(ctx, q.key).Err()
	if err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	return nil
}

// Close stops the consumer and closes the Redis connection.
func (q *Queue) Close() error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	started := q.started

	q.mu.Unlock()

	if started {
		close(q.stopCh)
		q.wg.Wait()
	}

	return q.client.Close()
}

// consume is the single drain loop: one BLPOP, one processor call, repeat.
// Processor failures are logged and consumption continues.
func (q *Queue) consume() {
	defer q.wg.Done()

	ctx := context.Background()

	q.logger.Info("Starting queue consumer", "key", q.key)

	for {
		select {
		case <-q.stopCh:
			q.logger.Info("Queue consumer stopped")

			return
		default:
			err := q.processNext(ctx)
			if err != nil {
				q.logger.Error("Error consuming queue item", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (q *Queue) processNext(ctx context.Context) error {
	result, err := q.client.BLPop(ctx, popTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop execution from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var workflowCtx models.WorkflowContext

	err = json.Unmarshal([]byte(result[1]), &workflowCtx)
	if err != nil {
		return fmt.Errorf("failed to unmarshal workflow context: %w", err)
	}

	q.mu.Lock()
	processor := q.processor
	q.mu.Unlock()

	if processor == nil {
		return nil
	}

	q.logger.Info("Processing workflow execution", "execution_id", workflowCtx.ExecutionID)

	err = processor(ctx, &workflowCtx)
	if err != nil {
		q.logger.Error("Error processing workflow execution",
			"execution_id", workflowCtx.ExecutionID,
			"error", err)
	}

	return nil
}
