package workflow

import "fmt"

// ConfigurationError reports a workflow graph that cannot be executed at all:
// a missing trigger node, an edge pointing at a node that does not exist, or
// a workflow that cannot be loaded. It aborts the run before any dispatch.
type ConfigurationError struct {
	WorkflowID string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("workflow %s configuration error: %s", e.WorkflowID, e.Reason)
}

// NodeExecutionError reports a dispatcher that returned failure. It aborts
// the remainder of the run but never crashes the drain loop.
type NodeExecutionError struct {
	NodeID  string
	Message string
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed: %s", e.NodeID, e.Message)
}

// NotificationError reports a failed outbound failure notification. It is
// logged and swallowed, never propagated into the run's terminal status.
type NotificationError struct {
	URL string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("failure notification to %s failed: %v", e.URL, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
