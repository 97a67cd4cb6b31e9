package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const notifyTimeout = 10 * time.Second

// Notifier posts a human-readable failure summary to a workflow's configured
// alert webhook. Delivery is fire-and-forget: one request, no retries.
type Notifier struct {
	client *http.Client
	logger *slog.Logger
}

// NewNotifier creates a notifier with a real HTTP client.
func NewNotifier(logger *slog.Logger) *Notifier {
	return NewNotifierWithClient(&http.Client{Timeout: notifyTimeout}, logger)
}

// NewNotifierWithClient injects the transport.
func NewNotifierWithClient(client *http.Client, logger *slog.Logger) *Notifier {
	return &Notifier{
		client: client,
		logger: logger.With("module", "failure_notifier"),
	}
}

// NotifyFailure sends the summary. A non-2xx response counts as failure.
func (n *Notifier) NotifyFailure(ctx context.Context, url, workflowName, executionID string, cause error) error {
	summary := fmt.Sprintf("Workflow %q failed (execution %s): %v", workflowName, executionID, cause)

	payload, err := json.Marshal(map[string]string{"content": summary})
	if err != nil {
		return &NotificationError{URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &NotificationError{URL: url, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &NotificationError{URL: url, Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NotificationError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	n.logger.InfoContext(ctx, "Failure notification delivered", "execution_id", executionID)

	return nil
}
