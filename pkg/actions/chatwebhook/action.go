// Package chatwebhook delivers a templated message to a chat service webhook
// URL, retrying transient failures on a fixed backoff schedule.
package chatwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/template"
)

const (
	requestTimeout   = 30 * time.Second
	maxResponseBytes = 1 << 20
)

// maxRateLimitWaits caps retries of a single attempt slot so an endpoint
// that rate limits forever cannot hold the execution queue indefinitely.
const maxRateLimitWaits = 5

// SleepFunc pauses between delivery attempts. Tests inject a recorder.
type SleepFunc func(time.Duration)

// Action posts a JSON {"content": ...} payload to the configured webhook.
type Action struct {
	client *http.Client
	sleep  SleepFunc
}

// NewAction creates an action with a real HTTP client and clock.
func NewAction() *Action {
	return &Action{
		client: &http.Client{Timeout: requestTimeout},
		sleep:  time.Sleep,
	}
}

// NewActionWithClient injects the transport and sleep function.
func NewActionWithClient(client *http.Client, sleep SleepFunc) *Action {
	return &Action{client: client, sleep: sleep}
}

// Execute templates the configured content against the run's event data and
// delivers it. The node config must carry webhookUrl and content.
func (a *Action) Execute(
	ctx context.Context,
	config map[string]any,
	workflowCtx *models.WorkflowContext,
	logger *slog.Logger,
) models.ActionResult {
	logger = logger.With("module", "chat_webhook_action")

	webhookURL, _ := config["webhookUrl"].(string)
	content, _ := config["content"].(string)

	if webhookURL == "" || content == "" {
		return models.ActionResult{
			Success: false,
			Message: "chat webhook action requires webhookUrl and content in its config",
		}
	}

	message := template.Apply(content, workflowCtx.Data)

	attempt := 0
	rateLimitWaits := 0

	for {
		out := a.deliver(ctx, webhookURL, message)

		next := transition(attempt, out)
		switch next.kind {
		case stepSucceeded:
			logger.InfoContext(ctx, "Chat webhook message delivered",
				"execution_id", workflowCtx.ExecutionID,
				"attempt", attempt+1)

			return models.ActionResult{
				Success: true,
				Message: "message delivered to chat webhook",
				Data:    responseData(out.body),
			}
		case stepFailed:
			logger.WarnContext(ctx, "Chat webhook delivery failed",
				"execution_id", workflowCtx.ExecutionID,
				"status", out.statusCode,
				"error", out.err,
				"reason", next.message)

			return models.ActionResult{Success: false, Message: next.message}
		case stepRateLimited:
			rateLimitWaits++
			if rateLimitWaits > maxRateLimitWaits {
				return models.ActionResult{
					Success: false,
					Message: "chat webhook delivery failed after multiple retries",
				}
			}

			logger.InfoContext(ctx, "Chat webhook rate limited, waiting before retry",
				"execution_id", workflowCtx.ExecutionID,
				"wait", next.wait)
			a.sleep(next.wait)
		case stepBackoff:
			logger.InfoContext(ctx, "Retrying chat webhook delivery",
				"execution_id", workflowCtx.ExecutionID,
				"wait", next.wait,
				"attempt", attempt+1)
			a.sleep(next.wait)

			attempt++
		}
	}
}

func (a *Action) deliver(ctx context.Context, webhookURL, content string) outcome {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return outcome{err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return outcome{err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return outcome{err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	return outcome{
		statusCode: resp.StatusCode,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		body:       body,
	}
}

// responseData surfaces the webhook's response body on success. JSON objects
// come back as-is, anything else non-empty is wrapped under "body".
func responseData(body []byte) map[string]any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}

	return map[string]any{"body": string(body)}
}

// parseRetryAfter reads the delay-seconds form of Retry-After. The HTTP-date
// form and garbage both fall back to zero, which the state machine replaces
// with defaultRetryAfter.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
