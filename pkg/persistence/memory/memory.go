// Package memory provides an in-memory persistence implementation, used for
// development runs and as the test backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/google/uuid"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
// The log store is append-only and safe for concurrent writers.
type Persistence struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	triggers  map[string]*models.Trigger
	accounts  map[string]*models.Account
	logs      []*models.LogRecord
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows: make(map[string]*models.Workflow),
		triggers:  make(map[string]*models.Trigger),
		accounts:  make(map[string]*models.Account),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository { return p }
func (p *Persistence) TriggerRepository() persistence.TriggerRepository   { return p }
func (p *Persistence) AccountRepository() persistence.AccountRepository   { return p }
func (p *Persistence) LogRepository() persistence.LogRepository           { return p }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

// Workflows returns all stored workflows.
func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))
	for _, w := range p.workflows {
		workflows = append(workflows, w)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	p.workflows[workflow.ID] = workflow

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.workflows, id)

	return nil
}

func (p *Persistence) TriggerByID(_ context.Context, id string) (*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	trigger, ok := p.triggers[id]
	if !ok {
		return nil, persistence.ErrTriggerNotFound
	}

	return trigger, nil
}

func (p *Persistence) TriggersByType(_ context.Context, triggerType string) ([]*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var triggers []*models.Trigger

	for _, t := range p.triggers {
		if t.Type == triggerType {
			triggers = append(triggers, t)
		}
	}

	sort.Slice(triggers, func(i, j int) bool { return triggers[i].ID < triggers[j].ID })

	return triggers, nil
}

func (p *Persistence) SaveTrigger(_ context.Context, trigger *models.Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	p.triggers[trigger.ID] = trigger

	return nil
}

func (p *Persistence) DeleteTrigger(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.triggers, id)

	return nil
}

func (p *Persistence) AccountByID(_ context.Context, id string) (*models.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	account, ok := p.accounts[id]
	if !ok {
		return nil, persistence.ErrAccountNotFound
	}

	return account, nil
}

func (p *Persistence) SaveAccount(_ context.Context, account *models.Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	p.accounts[account.ID] = account

	return nil
}

func (p *Persistence) DeleteAccount(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.accounts, id)

	return nil
}

func (p *Persistence) AppendLog(_ context.Context, record *models.LogRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	p.logs = append(p.logs, record)

	return nil
}

func (p *Persistence) LogsByExecutionID(_ context.Context, executionID string) ([]*models.LogRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var records []*models.LogRecord

	for _, r := range p.logs {
		if r.ExecutionID == executionID {
			records = append(records, r)
		}
	}

	return records, nil
}

func (p *Persistence) LogsByWorkflowID(_ context.Context, workflowID string, limit int) ([]*models.LogRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var records []*models.LogRecord

	for i := len(p.logs) - 1; i >= 0; i-- {
		if p.logs[i].WorkflowID != workflowID {
			continue
		}

		records = append(records, p.logs[i])
		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

func (p *Persistence) FindLogBySourceMessage(_ context.Context, source, message string) (*models.LogRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, r := range p.logs {
		if r.Source == source && r.Message == message {
			return r, nil
		}
	}

	return nil, persistence.ErrLogNotFound
}

func (p *Persistence) DeleteLogsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.logs[:0]

	var deleted int64

	for _, r := range p.logs {
		if r.CreatedAt.Before(cutoff) {
			deleted++

			continue
		}

		kept = append(kept, r)
	}

	p.logs = kept

	return deleted, nil
}

func (p *Persistence) TrimWorkflowLogs(_ context.Context, workflowID string, keep int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var forWorkflow []*models.LogRecord

	for _, r := range p.logs {
		if r.WorkflowID == workflowID {
			forWorkflow = append(forWorkflow, r)
		}
	}

	if len(forWorkflow) <= keep {
		return 0, nil
	}

	// Newest first, then drop everything past the keep window.
	sort.SliceStable(forWorkflow, func(i, j int) bool {
		return forWorkflow[i].CreatedAt.After(forWorkflow[j].CreatedAt)
	})

	doomed := make(map[string]struct{}, len(forWorkflow)-keep)
	for _, r := range forWorkflow[keep:] {
		doomed[r.ID] = struct{}{}
	}

	kept := p.logs[:0]

	for _, r := range p.logs {
		if _, ok := doomed[r.ID]; ok {
			continue
		}

		kept = append(kept, r)
	}

	p.logs = kept

	return int64(len(doomed)), nil
}
