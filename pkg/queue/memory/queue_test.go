package memory

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	q := NewQueue(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	t.Cleanup(func() { _ = q.Close() })

	return q
}

func workflowCtx(id string) *models.WorkflowContext {
	return &models.WorkflowContext{
		ExecutionID: id,
		WorkflowID:  "w1",
		TriggerID:   "t1",
		Data:        map[string]any{},
		Results:     map[string]any{},
	}
}

func TestSetProcessorDrainsPreQueuedItems(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, workflowCtx("e1")))
	require.NoError(t, q.Enqueue(ctx, workflowCtx("e2")))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	done := make(chan string, 2)
	q.SetProcessor(func(_ context.Context, wctx *models.WorkflowContext) error {
		done <- wctx.ExecutionID

		return nil
	})

	assert.Equal(t, "e1", <-done)
	assert.Equal(t, "e2", <-done)
}

func TestFIFOOrderWhileMidProcessing(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []string
		times []time.Time
	)

	firstStarted := make(chan struct{})
	release := make(chan struct{})
	processed := make(chan struct{}, 4)

	q.SetProcessor(func(_ context.Context, wctx *models.WorkflowContext) error {
		mu.Lock()
		order = append(order, wctx.ExecutionID)
		times = append(times, time.Now())
		mu.Unlock()

		if wctx.ExecutionID == "e1" {
			close(firstStarted)
			<-release
		}

		processed <- struct{}{}

		return nil
	})

	require.NoError(t, q.Enqueue(ctx, workflowCtx("e1")))
	<-firstStarted

	// Three more land while e1 is mid-processing.
	require.NoError(t, q.Enqueue(ctx, workflowCtx("e2")))
	require.NoError(t, q.Enqueue(ctx, workflowCtx("e3")))
	require.NoError(t, q.Enqueue(ctx, workflowCtx("e4")))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	close(release)

	for range 4 {
		select {
		case <-processed:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for queue to drain")
		}
	}

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []string{"e1", "e2", "e3", "e4"}, order)

	for i := 1; i < len(times); i++ {
		assert.False(t, times[i].Before(times[i-1]), "items must be processed one at a time, in order")
	}
}

func TestProcessorFailureDoesNotStopDrain(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	done := make(chan string, 3)
	q.SetProcessor(func(_ context.Context, wctx *models.WorkflowContext) error {
		done <- wctx.ExecutionID

		if wctx.ExecutionID == "e1" {
			return errors.New("boom")
		}

		return nil
	})

	require.NoError(t, q.Enqueue(ctx, workflowCtx("e1")))
	require.NoError(t, q.Enqueue(ctx, workflowCtx("e2")))
	require.NoError(t, q.Enqueue(ctx, workflowCtx("e3")))

	assert.Equal(t, "e1", <-done)
	assert.Equal(t, "e2", <-done)
	assert.Equal(t, "e3", <-done)
}

func TestClearDropsPendingItems(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, workflowCtx("e1")))
	require.NoError(t, q.Enqueue(ctx, workflowCtx("e2")))

	require.NoError(t, q.Clear(ctx))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	t.Parallel()

	q := NewQueue(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), workflowCtx("e1"))
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}
