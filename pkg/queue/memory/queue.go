// Package memory provides the in-process execution queue implementation.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/queue"
)

// Queue is a mutex-guarded FIFO with a non-re-entrant drain loop. While an
// item is being processed, Enqueue only appends; the drain picks the next
// item up after the current one completes.
type Queue struct {
	mu         sync.Mutex
	items      []*models.WorkflowContext
	processor  queue.Processor
	processing bool
	closed     bool
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewQueue creates an empty in-process queue.
func NewQueue(logger *slog.Logger) *Queue {
	return &Queue{
		logger: logger.With("module", "execution_queue"),
	}
}

// Enqueue appends an execution request and kicks the drain loop.
func (q *Queue) Enqueue(_ context.Context, workflowCtx *models.WorkflowContext) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return queue.ErrQueueClosed
	}

	q.items = append(q.items, workflowCtx)
	q.mu.Unlock()

	q.startDrain()

	return nil
}

// SetProcessor installs the consumer and drains any already-queued items.
func (q *Queue) SetProcessor(processor queue.Processor) {
	q.mu.Lock()
	q.processor = processor
	q.mu.Unlock()

	q.startDrain()
}

// Size reports the number of pending items.
func (q *Queue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items), nil
}

// Clear drops all pending items. The item currently being processed, if
// any, is unaffected.
func (q *Queue) Clear(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil

	return nil
}

// Close rejects further enqueues and waits for the in-flight drain to finish.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	q.wg.Wait()

	return nil
}

func (q *Queue) startDrain() {
	q.wg.Add(1)

	go func() {
		defer q.wg.Done()
		q.drain()
	}()
}

// drain processes exactly one item at a time, re-checking for more after
// each. The processing latch makes concurrent drain attempts no-ops, so a
// slow processor never runs alongside another.
func (q *Queue) drain() {
	for {
		q.mu.Lock()

		if q.processing || q.processor == nil || len(q.items) == 0 {
			q.mu.Unlock()

			return
		}

		item := q.items[0]
		q.items = q.items[1:]
		q.processing = true
		processor := q.processor

		q.mu.Unlock()

		q.logger.Info("Processing workflow execution", "execution_id", item.ExecutionID, "workflow_id", item.WorkflowID)

		err := processor(context.Background(), item)
		if err != nil {
			q.logger.Error("Error processing workflow execution",
				"execution_id", item.ExecutionID,
				"workflow_id", item.WorkflowID,
				"error", err)
		} else {
			q.logger.Info("Finished processing workflow execution", "execution_id", item.ExecutionID)
		}

		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}
}
