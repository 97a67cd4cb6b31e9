package cmd

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/atomaton/atomaton/pkg/persistence/memory"
	queuememory "github.com/atomaton/atomaton/pkg/queue/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistenceDefaultsToMemory(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	persist, err := NewPersistence(context.Background(), logger, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &memory.Persistence{}, persist)

	persist, err = NewPersistence(context.Background(), logger, "")
	require.NoError(t, err)
	assert.IsType(t, &memory.Persistence{}, persist)
}

func TestNewQueueDefaultsToMemory(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	q, err := NewQueue(context.Background(), logger, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &queuememory.Queue{}, q)

	require.NoError(t, q.Close())
}

func TestParseScheme(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "postgres", parseScheme("postgres://localhost/db"))
	assert.Equal(t, "redis", parseScheme("redis://localhost:6379"))
	assert.Empty(t, parseScheme("no scheme here"))
}
