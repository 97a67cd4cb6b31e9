// Package notionpage acknowledges a Notion page-creation request. The Notion
// API integration is not wired up yet; the action succeeds unconditionally so
// workflows using it run end to end.
package notionpage

import (
	"context"
	"log/slog"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/template"
)

// Action is the placeholder Notion dispatcher.
type Action struct{}

// NewAction creates the action.
func NewAction() *Action {
	return &Action{}
}

// Execute templates the optional title against the run's event data, logs the
// request, and reports success.
func (a *Action) Execute(
	ctx context.Context,
	config map[string]any,
	workflowCtx *models.WorkflowContext,
	logger *slog.Logger,
) models.ActionResult {
	logger = logger.With("module", "notion_page_action")

	result := models.ActionResult{
		Success: true,
		Message: "notion page request recorded",
	}

	if title, ok := config["title"].(string); ok && title != "" {
		rendered := template.Apply(title, workflowCtx.Data)
		result.Data = map[string]any{"title": rendered}

		logger.InfoContext(ctx, "Recorded notion page request",
			"execution_id", workflowCtx.ExecutionID,
			"title", rendered)

		return result
	}

	logger.InfoContext(ctx, "Recorded notion page request", "execution_id", workflowCtx.ExecutionID)

	return result
}
