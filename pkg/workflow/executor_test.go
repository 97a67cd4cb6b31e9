package workflow

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/atomaton/atomaton/pkg/actions"
	"github.com/atomaton/atomaton/pkg/models"
	"github.com/atomaton/atomaton/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDispatcher records the configs it executed and answers with a
// per-call scripted result.
type scriptedDispatcher struct {
	mu      sync.Mutex
	calls   []string
	results func(name string) models.ActionResult
}

func (d *scriptedDispatcher) Execute(
	_ context.Context,
	config map[string]any,
	_ *models.WorkflowContext,
	_ *slog.Logger,
) models.ActionResult {
	name, _ := config["name"].(string)

	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()

	return d.results(name)
}

func (d *scriptedDispatcher) executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.calls...)
}

func alwaysSucceed(string) models.ActionResult {
	return models.ActionResult{Success: true, Message: "ok"}
}

var _ actions.Dispatcher = (*scriptedDispatcher)(nil)

func newTestExecutor(t *testing.T) (*Executor, *memory.Persistence) {
	t.Helper()

	persist := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return NewExecutor(persist, logger), persist
}

func actionNode(id, name string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeAction, Config: map[string]any{"name": name}}
}

func saveWorkflow(t *testing.T, persist *memory.Persistence, nodes []*models.Node, edges []*models.Edge) *models.Workflow {
	t.Helper()

	wf := &models.Workflow{
		ID:       "w1",
		Name:     "test workflow",
		Owner:    "acct1",
		IsActive: true,
		Nodes:    nodes,
		Edges:    edges,
	}
	require.NoError(t, persist.SaveWorkflow(context.Background(), wf))

	return wf
}

func runContext() *models.WorkflowContext {
	return &models.WorkflowContext{
		TriggerID:   "t1",
		WorkflowID:  "w1",
		ExecutionID: "e1",
		Data:        map[string]any{"subject": "Test"},
	}
}

func TestExecuteEndToEnd(t *testing.T) {
	t.Parallel()

	var delivered int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		var payload map[string]string

		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "got Test", payload["content"])

		delivered++

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor, persist := newTestExecutor(t)

	saveWorkflow(t, persist,
		[]*models.Node{
			{ID: "n1", Type: models.NodeTypeTriggerWebhook},
			{ID: "n2", Type: models.NodeTypeCondition, Config: map[string]any{
				"logicType":  models.LogicTypeAnd,
				"conditions": []any{map[string]any{"field": "subject", "operator": "equals", "value": "Test"}},
			}},
			{ID: "n3", Type: models.NodeTypeAction, Config: map[string]any{
				"webhookUrl": server.URL,
				"content":    "got {{subject}}",
			}},
		},
		[]*models.Edge{
			{Source: "n1", Target: "n2"},
			{Source: "n2", Target: "n3", SourceHandle: models.BranchTrue},
		})

	require.NoError(t, executor.Execute(context.Background(), runContext()))

	assert.Equal(t, 1, delivered)

	records, err := persist.LogsByExecutionID(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, records, 3, "two node records plus the terminal success record")

	assert.Equal(t, "n2", records[0].ActionID)
	assert.Equal(t, models.LogStatusSuccess, records[0].Status)
	assert.Equal(t, true, records[0].Context["result"])

	assert.Equal(t, "n3", records[1].ActionID)
	assert.Equal(t, models.LogStatusSuccess, records[1].Status)

	assert.Empty(t, records[2].ActionID)
	assert.Equal(t, models.LogStatusSuccess, records[2].Status)
	assert.Equal(t, "workflow run completed", records[2].Message)
}

func TestExecuteVisitsConvergingNodeOnce(t *testing.T) {
	t.Parallel()

	executor, persist := newTestExecutor(t)

	dispatcher := &scriptedDispatcher{results: alwaysSucceed}
	executor.RegisterDispatcher(models.NodeTypeAction, dispatcher)

	// Diamond: trigger fans out to a and b, both converge on c.
	saveWorkflow(t, persist,
		[]*models.Node{
			{ID: "n1", Type: models.NodeTypeTrigger},
			actionNode("a", "a"),
			actionNode("b", "b"),
			actionNode("c", "c"),
		},
		[]*models.Edge{
			{Source: "n1", Target: "a"},
			{Source: "n1", Target: "b"},
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
		})

	require.NoError(t, executor.Execute(context.Background(), runContext()))

	assert.Equal(t, []string{"a", "b", "c"}, dispatcher.executed())
}

func TestExecuteConditionBranchWithoutEdgeEndsPath(t *testing.T) {
	t.Parallel()

	executor, persist := newTestExecutor(t)

	dispatcher := &scriptedDispatcher{results: alwaysSucceed}
	executor.RegisterDispatcher(models.NodeTypeAction, dispatcher)

	// Condition evaluates false; only a true edge exists.
	saveWorkflow(t, persist,
		[]*models.Node{
			{ID: "n1", Type: models.NodeTypeTrigger},
			{ID: "n2", Type: models.NodeTypeCondition, Config: map[string]any{
				"conditions": []any{map[string]any{"field": "subject", "operator": "equals", "value": "other"}},
			}},
			actionNode("n3", "downstream"),
		},
		[]*models.Edge{
			{Source: "n1", Target: "n2"},
			{Source: "n2", Target: "n3", SourceHandle: models.BranchTrue},
		})

	require.NoError(t, executor.Execute(context.Background(), runContext()))

	assert.Empty(t, dispatcher.executed(), "the dead branch must not dispatch")

	records, err := persist.LogsByExecutionID(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "workflow run completed", records[1].Message)
}

func TestExecuteNodeFailureAbortsRun(t *testing.T) {
	t.Parallel()

	executor, persist := newTestExecutor(t)

	dispatcher := &scriptedDispatcher{results: func(name string) models.ActionResult {
		if name == "a" {
			return models.ActionResult{Success: false, Message: "delivery exploded"}
		}

		return models.ActionResult{Success: true, Message: "ok"}
	}}
	executor.RegisterDispatcher(models.NodeTypeAction, dispatcher)

	saveWorkflow(t, persist,
		[]*models.Node{
			{ID: "n1", Type: models.NodeTypeTrigger},
			actionNode("a", "a"),
			actionNode("b", "b"),
		},
		[]*models.Edge{
			{Source: "n1", Target: "a"},
			{Source: "a", Target: "b"},
		})

	err := executor.Execute(context.Background(), runContext())

	var nodeErr *NodeExecutionError

	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "a", nodeErr.NodeID)

	assert.Equal(t, []string{"a"}, dispatcher.executed(), "nodes past the failure must not run")

	records, recErr := persist.LogsByExecutionID(context.Background(), "e1")
	require.NoError(t, recErr)
	require.Len(t, records, 2, "node failure record plus terminal failure record")

	assert.Equal(t, "a", records[0].ActionID)
	assert.Equal(t, models.LogStatusFailure, records[0].Status)

	assert.Equal(t, models.LogStatusFailure, records[1].Status)
	assert.Equal(t, "Test", records[1].Context["subject"], "terminal record carries the trigger data")
}

func TestExecuteSendsFailureNotificationWhenEnabled(t *testing.T) {
	t.Parallel()

	notified := make(chan map[string]string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		var payload map[string]string

		require.NoError(t, json.Unmarshal(body, &payload))
		notified <- payload

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor, persist := newTestExecutor(t)

	dispatcher := &scriptedDispatcher{results: func(string) models.ActionResult {
		return models.ActionResult{Success: false, Message: "boom"}
	}}
	executor.RegisterDispatcher(models.NodeTypeAction, dispatcher)

	wf := saveWorkflow(t, persist,
		[]*models.Node{
			{ID: "n1", Type: models.NodeTypeTrigger},
			actionNode("a", "a"),
		},
		[]*models.Edge{{Source: "n1", Target: "a"}})
	wf.Settings = &models.WorkflowSettings{EnableFailureAlert: true, FailureWebhookURL: server.URL}

	require.Error(t, executor.Execute(context.Background(), runContext()))

	select {
	case payload := <-notified:
		assert.Contains(t, payload["content"], "test workflow")
		assert.Contains(t, payload["content"], "e1")
	default:
		t.Fatal("expected a failure notification")
	}
}

func TestExecuteSkipsInactiveWorkflow(t *testing.T) {
	t.Parallel()

	executor, persist := newTestExecutor(t)

	wf := saveWorkflow(t, persist,
		[]*models.Node{{ID: "n1", Type: models.NodeTypeTrigger}},
		nil)
	wf.IsActive = false

	require.NoError(t, executor.Execute(context.Background(), runContext()))

	records, err := persist.LogsByExecutionID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecuteTriggerRuleGate(t *testing.T) {
	t.Parallel()

	executor, persist := newTestExecutor(t)

	dispatcher := &scriptedDispatcher{results: alwaysSucceed}
	executor.RegisterDispatcher(models.NodeTypeAction, dispatcher)

	saveWorkflow(t, persist,
		[]*models.Node{
			{ID: "n1", Type: models.NodeTypeTrigger},
			actionNode("a", "a"),
		},
		[]*models.Edge{{Source: "n1", Target: "a"}})

	require.NoError(t, persist.SaveTrigger(context.Background(), &models.Trigger{
		ID:         "t1",
		WorkflowID: "w1",
		Type:       models.TriggerTypeMailboxPolling,
		Config:     map[string]any{"logicType": models.LogicTypeAnd},
		Rules: []models.TriggerRule{
			{Field: "subject", Operator: models.OperatorContains, Value: "invoice"},
		},
	}))

	require.NoError(t, executor.Execute(context.Background(), runContext()))

	assert.Empty(t, dispatcher.executed(), "rejected runs must not dispatch")

	records, err := persist.LogsByExecutionID(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.LogStatusSkipped, records[0].Status)
	assert.Equal(t, "trigger rules not met, workflow run skipped", records[0].Message)
}

func TestExecuteMissingTriggerNodeIsConfigurationError(t *testing.T) {
	t.Parallel()

	executor, persist := newTestExecutor(t)

	saveWorkflow(t, persist, []*models.Node{actionNode("a", "a")}, nil)

	err := executor.Execute(context.Background(), runContext())

	var cfgErr *ConfigurationError

	require.ErrorAs(t, err, &cfgErr)

	records, recErr := persist.LogsByExecutionID(context.Background(), "e1")
	require.NoError(t, recErr)
	require.Len(t, records, 1)
	assert.Equal(t, models.LogStatusFailure, records[0].Status)
}

func TestExecuteUnknownNodeTypeSkippedAndContinues(t *testing.T) {
	t.Parallel()

	executor, persist := newTestExecutor(t)

	dispatcher := &scriptedDispatcher{results: alwaysSucceed}
	executor.RegisterDispatcher(models.NodeTypeAction, dispatcher)

	saveWorkflow(t, persist,
		[]*models.Node{
			{ID: "n1", Type: models.NodeTypeTrigger},
			{ID: "n2", Type: "action-sms"},
			actionNode("n3", "downstream"),
		},
		[]*models.Edge{
			{Source: "n1", Target: "n2"},
			{Source: "n2", Target: "n3"},
		})

	require.NoError(t, executor.Execute(context.Background(), runContext()))

	assert.Equal(t, []string{"downstream"}, dispatcher.executed())

	records, err := persist.LogsByExecutionID(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.LogStatusSkipped, records[0].Status)
	assert.Equal(t, "n2", records[0].ActionID)
}

func TestExecuteGraphReturnsRecordsWithoutPersisting(t *testing.T) {
	t.Parallel()

	executor, persist := newTestExecutor(t)

	dispatcher := &scriptedDispatcher{results: alwaysSucceed}
	executor.RegisterDispatcher(models.NodeTypeAction, dispatcher)

	nodes := []*models.Node{
		{ID: "n1", Type: models.NodeTypeTrigger},
		actionNode("a", "a"),
	}
	edges := []*models.Edge{{Source: "n1", Target: "a"}}

	records, err := executor.ExecuteGraph(context.Background(), nodes, edges, runContext())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ActionID)
	assert.Equal(t, "workflow run completed", records[1].Message)

	persisted, err := persist.LogsByExecutionID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Empty(t, persisted, "test-mode records must not be persisted")
}

func TestExecuteGraphFailureAppendsTerminalRecord(t *testing.T) {
	t.Parallel()

	executor, _ := newTestExecutor(t)

	dispatcher := &scriptedDispatcher{results: func(string) models.ActionResult {
		return models.ActionResult{Success: false, Message: "boom"}
	}}
	executor.RegisterDispatcher(models.NodeTypeAction, dispatcher)

	nodes := []*models.Node{
		{ID: "n1", Type: models.NodeTypeTrigger},
		actionNode("a", "a"),
	}
	edges := []*models.Edge{{Source: "n1", Target: "a"}}

	records, err := executor.ExecuteGraph(context.Background(), nodes, edges, runContext())
	require.Error(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.LogStatusFailure, records[0].Status)
	assert.Equal(t, models.LogStatusFailure, records[1].Status)
}
