package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/google/uuid"
)

type workflowRepository struct {
	db *sql.DB
}

func (r *workflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, owner, is_active, nodes, edges, settings, created_at, updated_at
		 FROM workflows ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, rows.Err()
}

func (r *workflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, owner, is_active, nodes, edges, settings, created_at, updated_at
		 FROM workflows WHERE id = $1`, id)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, err
}

func (r *workflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	nodes, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edges, err := json.Marshal(workflow.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	var settings []byte
	if workflow.Settings != nil {
		settings, err = json.Marshal(workflow.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, owner, is_active, nodes, edges, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			is_active = EXCLUDED.is_active,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			settings = EXCLUDED.settings,
			updated_at = NOW()`,
		workflow.ID, workflow.Name, workflow.Owner, workflow.IsActive, nodes, edges, nullableJSON(settings))
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (r *workflowRepository) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		nodes    []byte
		edges    []byte
		settings sql.NullString
	)

	err := row.Scan(&workflow.ID, &workflow.Name, &workflow.Owner, &workflow.IsActive,
		&nodes, &edges, &settings, &workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodes, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edges, &workflow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if settings.Valid {
		workflow.Settings = &models.WorkflowSettings{}
		if err := json.Unmarshal([]byte(settings.String), workflow.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}

	return &workflow, nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}

	return data
}

type triggerRepository struct {
	db *sql.DB
}

func (r *triggerRepository) TriggerByID(ctx context.Context, id string) (*models.Trigger, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, workflow_id, type, config, rules FROM triggers WHERE id = $1", id)

	trigger, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTriggerNotFound
	}

	return trigger, err
}

func (r *triggerRepository) TriggersByType(ctx context.Context, triggerType string) ([]*models.Trigger, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, workflow_id, type, config, rules FROM triggers WHERE type = $1 ORDER BY id", triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var triggers []*models.Trigger

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}

		triggers = append(triggers, trigger)
	}

	return triggers, rows.Err()
}

func (r *triggerRepository) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	config, err := json.Marshal(trigger.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	rules, err := json.Marshal(trigger.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger rules: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO triggers (id, workflow_id, type, config, rules)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			type = EXCLUDED.type,
			config = EXCLUDED.config,
			rules = EXCLUDED.rules`,
		trigger.ID, trigger.WorkflowID, trigger.Type, config, rules)
	if err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}

	return nil
}

func (r *triggerRepository) DeleteTrigger(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	return nil
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var (
		trigger models.Trigger
		config  []byte
		rules   []byte
	)

	err := row.Scan(&trigger.ID, &trigger.WorkflowID, &trigger.Type, &config, &rules)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(config, &trigger.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	if err := json.Unmarshal(rules, &trigger.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger rules: %w", err)
	}

	return &trigger, nil
}

type accountRepository struct {
	db *sql.DB
}

func (r *accountRepository) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	var (
		account     models.Account
		credentials []byte
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT id, type, credentials, created_at FROM accounts WHERE id = $1", id).
		Scan(&account.ID, &account.Type, &credentials, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrAccountNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query account %s: %w", id, err)
	}

	if err := json.Unmarshal(credentials, &account.Credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account credentials: %w", err)
	}

	return &account, nil
}

func (r *accountRepository) SaveAccount(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	credentials, err := json.Marshal(account.Credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal account credentials: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, type, credentials, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			credentials = EXCLUDED.credentials`,
		account.ID, account.Type, credentials)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.ID, err)
	}

	return nil
}

func (r *accountRepository) DeleteAccount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, err)
	}

	return nil
}

type logRepository struct {
	db *sql.DB
}

func (r *logRepository) AppendLog(ctx context.Context, record *models.LogRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	logContext, err := json.Marshal(record.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal log context: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO logs (id, workflow_id, trigger_id, action_id, status, message, context, source, execution_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.WorkflowID, record.TriggerID, record.ActionID, record.Status,
		record.Message, logContext, record.Source, record.ExecutionID, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log record: %w", err)
	}

	return nil
}

func (r *logRepository) LogsByExecutionID(ctx context.Context, executionID string) ([]*models.LogRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectLogs+" WHERE execution_id = $1 ORDER BY created_at", executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs by execution: %w", err)
	}

	return collectLogs(rows)
}

func (r *logRepository) LogsByWorkflowID(ctx context.Context, workflowID string, limit int) ([]*models.LogRecord, error) {
	query := selectLogs + " WHERE workflow_id = $1 ORDER BY created_at DESC"
	args := []any{workflowID}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs by workflow: %w", err)
	}

	return collectLogs(rows)
}

func (r *logRepository) FindLogBySourceMessage(ctx context.Context, source, message string) (*models.LogRecord, error) {
	row := r.db.QueryRowContext(ctx,
		selectLogs+" WHERE source = $1 AND message = $2 LIMIT 1", source, message)

	record, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrLogNotFound
	}

	return record, err
}

func (r *logRepository) DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM logs WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old logs: %w", err)
	}

	return result.RowsAffected()
}

func (r *logRepository) TrimWorkflowLogs(ctx context.Context, workflowID string, keep int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM logs WHERE workflow_id = $1 AND id NOT IN (
			SELECT id FROM logs WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2
		)`, workflowID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim logs for workflow %s: %w", workflowID, err)
	}

	return result.RowsAffected()
}

const selectLogs = `SELECT id, workflow_id, trigger_id, action_id, status, message, context, source, execution_id, created_at FROM logs`

func collectLogs(rows *sql.Rows) ([]*models.LogRecord, error) {
	defer func() { _ = rows.Close() }()

	var records []*models.LogRecord

	for rows.Next() {
		record, err := scanLog(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func scanLog(row rowScanner) (*models.LogRecord, error) {
	var (
		record     models.LogRecord
		logContext []byte
	)

	err := row.Scan(&record.ID, &record.WorkflowID, &record.TriggerID, &record.ActionID,
		&record.Status, &record.Message, &logContext, &record.Source, &record.ExecutionID, &record.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(logContext) > 0 {
		if err := json.Unmarshal(logContext, &record.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log context: %w", err)
		}
	}

	return &record, nil
}
