// Package queue provides the execution queue that serializes workflow runs:
// event adapters append contexts, a single consumer drains them one at a time.
package queue

import (
	"context"
	"errors"

	"github.com/atomaton/atomaton/pkg/models"
)

// Processor consumes one queued workflow context. A processor error is
// reported by the queue but never stops consumption of subsequent items.
type Processor func(ctx context.Context, workflowCtx *models.WorkflowContext) error

// ExecutionQueue is a single-consumer FIFO. Exactly one queued item is
// processed at a time system-wide; items enqueued while one is being
// processed wait until the current item finishes.
type ExecutionQueue interface {
	// Enqueue appends an execution request.
	Enqueue(ctx context.Context, workflowCtx *models.WorkflowContext) error

	// SetProcessor installs the consumer and triggers draining of any
	// already-queued items.
	SetProcessor(processor Processor)

	// Size reports the number of pending items (excluding the one currently
	// being processed, if any).
	Size(ctx context.Context) (int, error)

	// Clear drops all pending items.
	Clear(ctx context.Context) error

	// Close stops the consumer and releases resources.
	Close() error
}

// ErrQueueClosed is returned by Enqueue after the queue has been closed.
var ErrQueueClosed = errors.New("execution queue is closed")
