// Package actions defines the dispatcher contract implemented by workflow
// node packages. The executor resolves a node's type to a dispatcher and
// hands it the node config plus the run's context.
package actions

import (
	"context"
	"log/slog"

	"github.com/atomaton/atomaton/pkg/models"
)

// Dispatcher executes a single workflow node. Implementations report node
// failure through ActionResult.Success rather than an error return; the
// executor turns the result into a log record either way.
type Dispatcher interface {
	Execute(
		ctx context.Context,
		config map[string]any,
		workflowCtx *models.WorkflowContext,
		logger *slog.Logger,
	) models.ActionResult
}
