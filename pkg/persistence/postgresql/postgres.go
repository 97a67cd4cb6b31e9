// Package postgresql provides PostgreSQL persistence for workflows,
// triggers, accounts, and the execution log.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/atomaton/atomaton/pkg/persistence"

	_ "github.com/lib/pq" // postgres driver
)

const currentSchemaVersion = 1

var migrations = map[int]string{
	1: `
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			nodes JSONB NOT NULL DEFAULT '[]',
			edges JSONB NOT NULL DEFAULT '[]',
			settings JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS triggers (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			type TEXT NOT NULL,
			config JSONB NOT NULL DEFAULT '{}',
			rules JSONB NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_triggers_type ON triggers (type);

		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			credentials JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS logs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			trigger_id TEXT NOT NULL DEFAULT '',
			action_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			context JSONB,
			source TEXT NOT NULL DEFAULT '',
			execution_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_logs_workflow_created ON logs (workflow_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_logs_execution ON logs (execution_id);
		CREATE INDEX IF NOT EXISTS idx_logs_source_message ON logs (source, message);
	`,
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects to PostgreSQL and applies pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Persistence{
		db:     database,
		logger: logger.With("module", "postgresql_persistence"),
	}

	err = p.runMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return p, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{db: p.db}
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return &triggerRepository{db: p.db}
}

func (p *Persistence) AccountRepository() persistence.AccountRepository {
	return &accountRepository{db: p.db}
}

func (p *Persistence) LogRepository() persistence.LogRepository {
	return &logRepository{db: p.db}
}

// HealthCheck verifies the database connection is alive.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}

func (p *Persistence) runMigrations(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Starting database migrations")

	createMigrationsSQL := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`

	_, err := p.db.ExecContext(ctx, createMigrationsSQL)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var currentVersion int

	err = p.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to query current schema version: %w", err)
	}

	for version := currentVersion + 1; version <= currentSchemaVersion; version++ {
		statement, ok := migrations[version]
		if !ok {
			return fmt.Errorf("missing migration for version %d", version)
		}

		_, err = p.db.ExecContext(ctx, statement)
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		_, err = p.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
	}

	p.logger.InfoContext(ctx, "Database migrations completed", "version", currentSchemaVersion)

	return nil
}
