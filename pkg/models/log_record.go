package models

import "time"

// LogStatus is the terminal state a log record describes.
type LogStatus string

const (
	LogStatusEnqueued LogStatus = "ENQUEUED"
	LogStatusSuccess  LogStatus = "SUCCESS"
	LogStatusFailure  LogStatus = "FAILURE"
	LogStatusSkipped  LogStatus = "SKIPPED"
)

// Event sources recorded on log records. The mailbox poller uses the source
// together with the message id to deduplicate re-polled messages.
const (
	LogSourceWebhook  = "WEBHOOK"
	LogSourceMailbox  = "MAILBOX"
	LogSourceExecutor = "EXECUTOR"
)

// LogRecord is an immutable audit entry for one node's outcome or one run's
// terminal status. Records are append-only and are destroyed only by the
// retention sweeper.
type LogRecord struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	TriggerID   string         `json:"trigger_id"`
	ActionID    string         `json:"action_id,omitempty"`
	Status      LogStatus      `json:"status"`
	Message     string         `json:"message"`
	Context     map[string]any `json:"context,omitempty"`
	Source      string         `json:"source,omitempty"`
	ExecutionID string         `json:"execution_id"`
	CreatedAt   time.Time      `json:"created_at"`
}
