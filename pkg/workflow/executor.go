// Package workflow implements the graph executor behind the execution queue:
// it resolves a run's workflow, walks the node graph breadth-first, dispatches
// each node, and records every outcome in the execution log.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atomaton/atomaton/pkg/actions"
	"github.com/atomaton/atomaton/pkg/actions/chatwebhook"
	"github.com/atomaton/atomaton/pkg/actions/condition"
	"github.com/atomaton/atomaton/pkg/actions/notionpage"
	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/otelhelper"
	"github.com/atomaton/atomaton/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// recordSink receives log records as the traversal produces them. Live runs
// persist; test-mode runs collect.
type recordSink func(ctx context.Context, record *models.LogRecord)

// Executor runs workflow graphs. Execute is installed as the queue processor,
// so at most one run is in flight at a time.
type Executor struct {
	persist     persistence.Persistence
	dispatchers map[string]actions.Dispatcher
	notifier    *Notifier
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewExecutor creates an executor with the default dispatcher set.
func NewExecutor(persist persistence.Persistence, logger *slog.Logger) *Executor {
	return &Executor{
		persist: persist,
		dispatchers: map[string]actions.Dispatcher{
			models.NodeTypeAction:       chatwebhook.NewAction(),
			models.NodeTypeActionNotion: notionpage.NewAction(),
			models.NodeTypeCondition:    condition.NewAction(),
		},
		notifier: NewNotifier(logger),
		logger:   logger.With("module", "workflow_executor"),
		tracer:   otel.Tracer("github.com/atomaton/atomaton/pkg/workflow"),
	}
}

// RegisterDispatcher replaces the dispatcher for a node type.
func (e *Executor) RegisterDispatcher(nodeType string, dispatcher actions.Dispatcher) {
	e.dispatchers[nodeType] = dispatcher
}

// SetNotifier replaces the failure notifier.
func (e *Executor) SetNotifier(notifier *Notifier) {
	e.notifier = notifier
}

// Execute runs one live execution. Inactive workflows are skipped without a
// record; mailbox-sourced runs pass a trigger-rule gate before any dispatch.
// A failed run produces a terminal failure record and, when the workflow opts
// in, a best-effort failure notification.
func (e *Executor) Execute(ctx context.Context, workflowCtx *models.WorkflowContext) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflowCtx.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, workflowCtx.ExecutionID),
	)
	defer span.End()

	wf, err := e.persist.WorkflowRepository().WorkflowByID(ctx, workflowCtx.WorkflowID)
	if err != nil {
		cfgErr := &ConfigurationError{
			WorkflowID: workflowCtx.WorkflowID,
			Reason:     fmt.Sprintf("failed to load workflow: %v", err),
		}

		e.finishFailure(ctx, nil, workflowCtx, cfgErr, e.persistRecord, true)
		otelhelper.SetError(span, cfgErr)

		return cfgErr
	}

	if !wf.IsActive {
		e.logger.DebugContext(ctx, "Workflow inactive, skipping run",
			"workflow_id", wf.ID,
			"execution_id", workflowCtx.ExecutionID)

		return nil
	}

	if e.triggerRulesReject(ctx, workflowCtx) {
		record := e.newRecord(workflowCtx, "", models.LogStatusSkipped, "trigger rules not met, workflow run skipped")
		record.Context = workflowCtx.Data
		e.persistRecord(ctx, record)

		e.logger.InfoContext(ctx, "Trigger rules not met, run skipped",
			"workflow_id", wf.ID,
			"execution_id", workflowCtx.ExecutionID)

		return nil
	}

	e.logger.InfoContext(ctx, "Starting workflow run",
		"workflow_id", wf.ID,
		"execution_id", workflowCtx.ExecutionID)

	runErr := e.traverse(ctx, wf.Nodes, wf.Edges, workflowCtx, e.persistRecord)
	if runErr != nil {
		e.finishFailure(ctx, wf, workflowCtx, runErr, e.persistRecord, true)
		otelhelper.SetError(span, runErr)

		return runErr
	}

	e.logger.InfoContext(ctx, "Workflow run completed",
		"workflow_id", wf.ID,
		"execution_id", workflowCtx.ExecutionID)

	return nil
}

// ExecuteGraph runs a caller-supplied graph once and returns the log records
// it produced instead of persisting them. The trigger-rule gate, the active
// check, and the failure notification do not apply; the test endpoint uses
// this to dry-run unsaved graphs.
func (e *Executor) ExecuteGraph(
	ctx context.Context,
	nodes []*models.Node,
	edges []*models.Edge,
	workflowCtx *models.WorkflowContext,
) ([]*models.LogRecord, error) {
	var records []*models.LogRecord

	sink := func(_ context.Context, record *models.LogRecord) {
		records = append(records, record)
	}

	runErr := e.traverse(ctx, nodes, edges, workflowCtx, sink)
	if runErr != nil {
		e.finishFailure(ctx, nil, workflowCtx, runErr, sink, false)

		return records, runErr
	}

	return records, nil
}

// traverse is the breadth-first walk. The visited set is seeded with the
// trigger's id so the trigger itself is never dispatched, and a node
// reachable via converging edges executes at most once. Node records are
// sunk as produced; a node failure aborts the walk with the records written
// so far, and a completed walk ends with a terminal success record.
func (e *Executor) traverse(
	ctx context.Context,
	nodes []*models.Node,
	edges []*models.Edge,
	workflowCtx *models.WorkflowContext,
	sink recordSink,
) error {
	trigger := models.FindTriggerNode(nodes)
	if trigger == nil {
		return &ConfigurationError{WorkflowID: workflowCtx.WorkflowID, Reason: "graph has no trigger node"}
	}

	if workflowCtx.Results == nil {
		workflowCtx.Results = make(map[string]any)
	}

	visited := map[string]bool{trigger.ID: true}

	var queue []string
	for _, edge := range models.OutgoingEdges(edges, trigger.ID) {
		queue = append(queue, edge.Target)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}

		visited[id] = true

		node := models.NodeByID(nodes, id)
		if node == nil {
			return &ConfigurationError{
				WorkflowID: workflowCtx.WorkflowID,
				Reason:     fmt.Sprintf("edge references unknown node %q", id),
			}
		}

		next, err := e.executeNode(ctx, node, edges, workflowCtx, sink)
		if err != nil {
			return err
		}

		queue = append(queue, next...)
	}

	sink(ctx, e.newRecord(workflowCtx, "", models.LogStatusSuccess, "workflow run completed"))

	return nil
}

// executeNode dispatches one node and returns the ids to enqueue next. The
// outcome record is sunk before success is evaluated. Unknown node types are
// recorded as SKIPPED and traversal continues through their outgoing edges.
func (e *Executor) executeNode(
	ctx context.Context,
	node *models.Node,
	edges []*models.Edge,
	workflowCtx *models.WorkflowContext,
	sink recordSink,
) ([]string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	)
	defer span.End()

	dispatcher, ok := e.dispatchers[node.Type]
	if !ok {
		e.logger.WarnContext(ctx, "No dispatcher for node type, skipping node",
			"node_id", node.ID,
			"node_type", node.Type,
			"execution_id", workflowCtx.ExecutionID)

		record := e.newRecord(workflowCtx, node.ID, models.LogStatusSkipped,
			fmt.Sprintf("no dispatcher registered for node type %q", node.Type))
		sink(ctx, record)

		return edgeTargets(models.OutgoingEdges(edges, node.ID)), nil
	}

	result := dispatcher.Execute(ctx, node.Config, workflowCtx, e.logger)

	status := models.LogStatusSuccess
	if !result.Success {
		status = models.LogStatusFailure
	}

	record := e.newRecord(workflowCtx, node.ID, status, result.Message)
	record.Context = result.Data
	sink(ctx, record)

	if !result.Success {
		err := &NodeExecutionError{NodeID: node.ID, Message: result.Message}
		otelhelper.SetError(span, err)

		return nil, err
	}

	if result.Data != nil {
		workflowCtx.Results[node.ID] = result.Data
	}

	if node.IsCondition() {
		edge := models.EdgeByHandle(edges, node.ID, result.NextBranch)
		if edge == nil {
			// Branch without a continuation, the path simply ends here.
			return nil, nil
		}

		return []string{edge.Target}, nil
	}

	return edgeTargets(models.OutgoingEdges(edges, node.ID)), nil
}

// triggerRulesReject applies the pre-dispatch filter gate. Only
// mailbox-sourced triggers with configured rules can reject a run.
func (e *Executor) triggerRulesReject(ctx context.Context, workflowCtx *models.WorkflowContext) bool {
	if workflowCtx.TriggerID == "" {
		return false
	}

	trigger, err := e.persist.TriggerRepository().TriggerByID(ctx, workflowCtx.TriggerID)
	if err != nil {
		if !persistence.IsTriggerNotFound(err) {
			e.logger.WarnContext(ctx, "Failed to load trigger for rule gate",
				"trigger_id", workflowCtx.TriggerID,
				"error", err)
		}

		return false
	}

	if trigger.Type != models.TriggerTypeMailboxPolling || len(trigger.Rules) == 0 {
		return false
	}

	logicType, _ := trigger.Config["logicType"].(string)

	return !models.EvaluateRules(logicType, trigger.Rules, workflowCtx.Data)
}

// finishFailure emits the terminal failure record carrying the trigger's
// event data and, for live runs of workflows that opted in, a one-shot
// failure notification. Notification errors are logged and swallowed.
func (e *Executor) finishFailure(
	ctx context.Context,
	wf *models.Workflow,
	workflowCtx *models.WorkflowContext,
	cause error,
	sink recordSink,
	notify bool,
) {
	record := e.newRecord(workflowCtx, "", models.LogStatusFailure, fmt.Sprintf("workflow run failed: %v", cause))
	record.Context = workflowCtx.Data
	sink(ctx, record)

	if !notify || wf == nil || wf.Settings == nil {
		return
	}

	settings := wf.Settings
	if !settings.EnableFailureAlert || settings.FailureWebhookURL == "" {
		return
	}

	err := e.notifier.NotifyFailure(ctx, settings.FailureWebhookURL, wf.Name, workflowCtx.ExecutionID, cause)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to deliver failure notification",
			"workflow_id", workflowCtx.WorkflowID,
			"execution_id", workflowCtx.ExecutionID,
			"error", err)
	}
}

func (e *Executor) persistRecord(ctx context.Context, record *models.LogRecord) {
	err := e.persist.LogRepository().AppendLog(ctx, record)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to append log record",
			"execution_id", record.ExecutionID,
			"error", err)
	}
}

func (e *Executor) newRecord(
	workflowCtx *models.WorkflowContext,
	actionID string,
	status models.LogStatus,
	message string,
) *models.LogRecord {
	return &models.LogRecord{
		ID:          uuid.New().String(),
		WorkflowID:  workflowCtx.WorkflowID,
		TriggerID:   workflowCtx.TriggerID,
		ActionID:    actionID,
		Status:      status,
		Message:     message,
		Source:      models.LogSourceExecutor,
		ExecutionID: workflowCtx.ExecutionID,
		CreatedAt:   time.Now().UTC(),
	}
}

func edgeTargets(edges []*models.Edge) []string {
	out := make([]string, 0, len(edges))
	for _, edge := range edges {
		out = append(out, edge.Target)
	}

	return out
}
