package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atomaton/atomaton/pkg/queue"
	queuememory "github.com/atomaton/atomaton/pkg/queue/memory"
	queueredis "github.com/atomaton/atomaton/pkg/queue/redis"
)

// NewQueue selects the execution queue backend by URL scheme. redis:// (or
// rediss://) uses a Redis list; anything else, including the memory://
// default, is the in-process queue.
func NewQueue(ctx context.Context, logger *slog.Logger, queueURL string) (queue.ExecutionQueue, error) {
	switch parseScheme(queueURL) {
	case "redis", "rediss":
		q, err := queueredis.NewQueue(ctx, queueURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis queue: %w", err)
		}

		return q, nil
	default:
		return queuememory.NewQueue(logger), nil
	}
}
