package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPersistence()

	workflow := &models.Workflow{Name: "Mail alerts", Owner: "user-1", IsActive: true}
	require.NoError(t, p.SaveWorkflow(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	fetched, err := p.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mail alerts", fetched.Name)

	_, err = p.WorkflowByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestTriggersByType(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPersistence()

	require.NoError(t, p.SaveTrigger(ctx, &models.Trigger{ID: "t1", WorkflowID: "w1", Type: models.TriggerTypeWebhook}))
	require.NoError(t, p.SaveTrigger(ctx, &models.Trigger{ID: "t2", WorkflowID: "w2", Type: models.TriggerTypeMailboxPolling}))
	require.NoError(t, p.SaveTrigger(ctx, &models.Trigger{ID: "t3", WorkflowID: "w3", Type: models.TriggerTypeMailboxPolling}))

	triggers, err := p.TriggersByType(ctx, models.TriggerTypeMailboxPolling)
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, "t2", triggers[0].ID)
	assert.Equal(t, "t3", triggers[1].ID)
}

func TestAppendLogConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPersistence()

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			err := p.AppendLog(ctx, &models.LogRecord{
				WorkflowID:  "w1",
				ExecutionID: fmt.Sprintf("exec-%d", n),
				Status:      models.LogStatusSuccess,
			})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	records, err := p.LogsByWorkflowID(ctx, "w1", 0)
	require.NoError(t, err)
	assert.Len(t, records, 50)
}

func TestFindLogBySourceMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPersistence()

	require.NoError(t, p.AppendLog(ctx, &models.LogRecord{
		WorkflowID: "w1",
		Source:     models.LogSourceMailbox,
		Message:    "<msg-1@example.com>",
		Status:     models.LogStatusEnqueued,
	}))

	found, err := p.FindLogBySourceMessage(ctx, models.LogSourceMailbox, "<msg-1@example.com>")
	require.NoError(t, err)
	assert.Equal(t, models.LogStatusEnqueued, found.Status)

	_, err = p.FindLogBySourceMessage(ctx, models.LogSourceWebhook, "<msg-1@example.com>")
	assert.True(t, persistence.IsLogNotFound(err))
}

func TestDeleteLogsOlderThan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPersistence()
	now := time.Now().UTC()

	require.NoError(t, p.AppendLog(ctx, &models.LogRecord{WorkflowID: "w1", CreatedAt: now.Add(-96 * time.Hour)}))
	require.NoError(t, p.AppendLog(ctx, &models.LogRecord{WorkflowID: "w1", CreatedAt: now.Add(-1 * time.Hour)}))

	deleted, err := p.DeleteLogsOlderThan(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := p.LogsByWorkflowID(ctx, "w1", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTrimWorkflowLogs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewPersistence()
	base := time.Now().UTC().Add(-time.Hour)

	for i := range 10 {
		require.NoError(t, p.AppendLog(ctx, &models.LogRecord{
			WorkflowID: "w1",
			Message:    fmt.Sprintf("record-%d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	trimmed, err := p.TrimWorkflowLogs(ctx, "w1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), trimmed)

	records, err := p.LogsByWorkflowID(ctx, "w1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// The newest records survive.
	assert.Equal(t, "record-9", records[0].Message)
	assert.Equal(t, "record-8", records[1].Message)
	assert.Equal(t, "record-7", records[2].Message)

	trimmed, err = p.TrimWorkflowLogs(ctx, "w1", 3)
	require.NoError(t, err)
	assert.Zero(t, trimmed)
}
