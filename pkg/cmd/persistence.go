// Package cmd holds shared wiring helpers for the command binaries: URL-based
// factories selecting the persistence and queue backends.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/atomaton/atomaton/pkg/persistence/memory"
	"github.com/atomaton/atomaton/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend by URL scheme. postgres:// (or
// postgresql://) connects to PostgreSQL; anything else, including the
// memory:// default, is the in-memory store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseScheme(databaseURL) {
	case "postgres", "postgresql":
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL persistence: %w", err)
		}

		return persist, nil
	default:
		return memory.NewPersistence(), nil
	}
}

func parseScheme(url string) string {
	scheme, _, found := strings.Cut(url, "://")
	if !found {
		return ""
	}

	return scheme
}
