package persistence

import "errors"

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTriggerNotFound indicates a trigger was not found by the given identifier.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrAccountNotFound indicates an account was not found by the given identifier.
	ErrAccountNotFound = errors.New("account not found")

	// ErrLogNotFound indicates no log record matched the lookup.
	ErrLogNotFound = errors.New("log record not found")
)

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsTriggerNotFound checks if an error indicates a missing trigger.
func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}

// IsAccountNotFound checks if an error indicates a missing account.
func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsLogNotFound checks if an error indicates a missing log record.
func IsLogNotFound(err error) bool {
	return errors.Is(err, ErrLogNotFound)
}
