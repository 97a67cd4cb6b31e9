package models

// WorkflowContext is the per-run state threaded through graph traversal. It
// is created at enqueue time, owned exclusively by one execution, and
// discarded when the run reaches a terminal state; only the log records it
// produces persist.
type WorkflowContext struct {
	TriggerID   string         `json:"trigger_id"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Data        map[string]any `json:"data,omitempty"`
	Results     map[string]any `json:"results,omitempty"`
}
