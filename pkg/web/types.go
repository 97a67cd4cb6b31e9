package web

import "github.com/atomaton/atomaton/pkg/models"

// TestWorkflowRequest is the dry-run payload: an unsaved graph plus the
// trigger data to feed it.
type TestWorkflowRequest struct {
	Nodes []*models.Node `json:"nodes" validate:"required,min=1,dive"`
	Edges []*models.Edge `json:"edges" validate:"dive"`
	Data  map[string]any `json:"data"`
}

// TestWorkflowResponse carries the run's collected log records. Success
// reflects the run's terminal state, not the HTTP outcome.
type TestWorkflowResponse struct {
	ExecutionID string              `json:"execution_id"`
	Success     bool                `json:"success"`
	Logs        []*models.LogRecord `json:"logs"`
}
