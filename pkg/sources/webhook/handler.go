// Package webhook implements the HTTP intake adapter: an authenticated
// webhook call becomes a queued workflow execution with a synchronous
// ENQUEUED log record.
package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/atomaton/atomaton/pkg/queue"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// Handler serves POST /webhook/:accountId/:triggerId.
type Handler struct {
	persist persistence.Persistence
	queue   queue.ExecutionQueue
	logger  *slog.Logger
}

// NewHandler creates the intake handler.
func NewHandler(persist persistence.Persistence, executionQueue queue.ExecutionQueue, logger *slog.Logger) *Handler {
	return &Handler{
		persist: persist,
		queue:   executionQueue,
		logger:  logger.With("module", "webhook_intake"),
	}
}

// Register mounts the intake route.
func (h *Handler) Register(app *fiber.App) {
	app.Post("/webhook/:accountId/:triggerId", h.Handle)
}

// Handle authenticates the caller against the trigger's stored key and
// enqueues a run. Unknown triggers and owner mismatches both answer 404 so
// probing cannot distinguish them.
func (h *Handler) Handle(c fiber.Ctx) error {
	accountID := c.Params("accountId")
	triggerID := c.Params("triggerId")

	key, ok := bearerKey(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return unauthorized(c, "Missing or malformed Authorization header")
	}

	trigger, err := h.persist.TriggerRepository().TriggerByID(c.Context(), triggerID)
	if err != nil {
		if persistence.IsTriggerNotFound(err) {
			return notFound(c, "Trigger not found")
		}

		return internalError(c, err)
	}

	workflow, err := h.persist.WorkflowRepository().WorkflowByID(c.Context(), trigger.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Trigger not found")
		}

		return internalError(c, err)
	}

	if workflow.Owner != accountID {
		h.logger.Warn("Webhook call with mismatched owner",
			"trigger_id", triggerID,
			"account_id", accountID)

		return notFound(c, "Trigger not found")
	}

	storedKey, _ := trigger.Config["apiKey"].(string)
	if storedKey == "" || subtle.ConstantTimeCompare([]byte(storedKey), []byte(key)) != 1 {
		h.logger.Warn("Webhook call with invalid key", "trigger_id", triggerID)

		return forbidden(c, "Invalid webhook key")
	}

	data, err := parseBody(c.Body())
	if err != nil {
		return badRequest(c, "Invalid JSON in request body")
	}

	if schema, ok := trigger.Config["payloadSchema"].(map[string]any); ok {
		err = validatePayload(schema, data)
		if err != nil {
			return badRequest(c, fmt.Sprintf("Payload schema validation failed: %v", err))
		}
	}

	workflowCtx := &models.WorkflowContext{
		TriggerID:   trigger.ID,
		WorkflowID:  trigger.WorkflowID,
		ExecutionID: uuid.New().String(),
		Data:        data,
	}

	// The ENQUEUED record is written before responding so the caller's ack
	// implies the run is visible in the log stream.
	record := &models.LogRecord{
		ID:          uuid.New().String(),
		WorkflowID:  trigger.WorkflowID,
		TriggerID:   trigger.ID,
		Status:      models.LogStatusEnqueued,
		Message:     "webhook event accepted",
		Context:     data,
		Source:      models.LogSourceWebhook,
		ExecutionID: workflowCtx.ExecutionID,
		CreatedAt:   time.Now().UTC(),
	}

	err = h.persist.LogRepository().AppendLog(c.Context(), record)
	if err != nil {
		return internalError(c, err)
	}

	err = h.queue.Enqueue(c.Context(), workflowCtx)
	if err != nil {
		return internalError(c, err)
	}

	h.logger.Info("Webhook event enqueued",
		"trigger_id", trigger.ID,
		"workflow_id", trigger.WorkflowID,
		"execution_id", workflowCtx.ExecutionID)

	return c.JSON(fiber.Map{
		"status":       "accepted",
		"execution_id": workflowCtx.ExecutionID,
	})
}

// bearerKey extracts the credential from "Bearer <key>".
func bearerKey(header string) (string, bool) {
	const prefix = "Bearer "

	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	key := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if key == "" {
		return "", false
	}

	return key, true
}

func parseBody(body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var data map[string]any

	err := json.Unmarshal(body, &data)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func validatePayload(schema, data map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var violations []string
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}

		return fmt.Errorf("%s", strings.Join(violations, "; "))
	}

	return nil
}
