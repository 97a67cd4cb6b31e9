// Package web provides the HTTP API: health, execution log reads, and the
// workflow dry-run endpoint.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/atomaton/atomaton/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const defaultLogLimit = 100

type APIHandlers struct {
	persist   persistence.Persistence
	executor  *workflow.Executor
	validator *validator.Validate
}

func NewAPIHandlers(persist persistence.Persistence, executor *workflow.Executor, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		persist:   persist,
		executor:  executor,
		validator: validator,
	}
}

// Register mounts the API routes.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/workflows/:id/logs", h.GetWorkflowLogs)
	app.Post("/workflows/:id/test", h.TestWorkflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	err := h.persist.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// GetWorkflowLogs returns a workflow's newest records, newest first.
func (h *APIHandlers) GetWorkflowLogs(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit := defaultLogLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}

		limit = parsed
	}

	_, err := h.persist.WorkflowRepository().WorkflowByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	logs, err := h.persist.LogRepository().LogsByWorkflowID(c.Context(), id, limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"count": len(logs),
	})
}

// TestWorkflow dry-runs a caller-supplied graph and returns the log records
// it produced. Nothing is persisted and no notifications fire; a failed run
// still answers 200 with Success=false so the caller sees the records.
func (h *APIHandlers) TestWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TestWorkflowRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	workflowCtx := &models.WorkflowContext{
		WorkflowID:  id,
		ExecutionID: uuid.New().String(),
		Data:        req.Data,
	}

	records, runErr := h.executor.ExecuteGraph(c.Context(), req.Nodes, req.Edges, workflowCtx)

	return c.JSON(TestWorkflowResponse{
		ExecutionID: workflowCtx.ExecutionID,
		Success:     runErr == nil,
		Logs:        records,
	})
}
