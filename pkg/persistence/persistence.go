// Package persistence provides the data storage abstraction consumed by the
// execution engine: workflows, triggers, connected accounts, and the
// append-only execution log.
package persistence

import (
	"context"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
)

// WorkflowRepository reads and writes workflow graphs.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// TriggerRepository reads and writes trigger records.
type TriggerRepository interface {
	TriggerByID(ctx context.Context, id string) (*models.Trigger, error)
	TriggersByType(ctx context.Context, triggerType string) ([]*models.Trigger, error)
	SaveTrigger(ctx context.Context, trigger *models.Trigger) error
	DeleteTrigger(ctx context.Context, id string) error
}

// AccountRepository reads and writes connected external accounts.
type AccountRepository interface {
	AccountByID(ctx context.Context, id string) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, id string) error
}

// LogRepository stores the append-only execution log. Records are immutable
// once appended and are removed only by the retention sweeper. Append must
// be safe for concurrent writers.
type LogRepository interface {
	AppendLog(ctx context.Context, record *models.LogRecord) error
	LogsByExecutionID(ctx context.Context, executionID string) ([]*models.LogRecord, error)
	LogsByWorkflowID(ctx context.Context, workflowID string, limit int) ([]*models.LogRecord, error)
	// FindLogBySourceMessage locates an earlier record written for the same
	// source event, keyed by (source, message). The mailbox poller uses it to
	// deduplicate re-polled messages. Returns ErrLogNotFound when absent.
	FindLogBySourceMessage(ctx context.Context, source, message string) (*models.LogRecord, error)
	DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	TrimWorkflowLogs(ctx context.Context, workflowID string, keep int) (int64, error)
}

// Persistence aggregates the repositories behind one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TriggerRepository() TriggerRepository
	AccountRepository() AccountRepository
	LogRepository() LogRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
