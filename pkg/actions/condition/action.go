// Package condition evaluates a node's rule set against the run's event data
// and selects the outgoing branch the traversal follows.
package condition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atomaton/atomaton/pkg/models"
)

// Action is the branching dispatcher. It always succeeds once its config
// parses; the evaluation outcome is reported through NextBranch.
type Action struct{}

// NewAction creates the action.
func NewAction() *Action {
	return &Action{}
}

// Execute combines the configured conditions with the node's logic type.
// The conditions list is required; an empty list follows the logic type's
// identity: AND matches, OR does not.
func (a *Action) Execute(
	ctx context.Context,
	config map[string]any,
	workflowCtx *models.WorkflowContext,
	logger *slog.Logger,
) models.ActionResult {
	logger = logger.With("module", "condition_action")

	logicType, rules, err := parseConfig(config)
	if err != nil {
		return models.ActionResult{
			Success: false,
			Message: fmt.Sprintf("invalid condition config: %v", err),
		}
	}

	matched := models.EvaluateRules(logicType, rules, workflowCtx.Data)

	branch := models.BranchFalse
	if matched {
		branch = models.BranchTrue
	}

	logger.InfoContext(ctx, "Condition evaluated",
		"execution_id", workflowCtx.ExecutionID,
		"logic_type", logicType,
		"rules", len(rules),
		"branch", branch)

	return models.ActionResult{
		Success:    true,
		Message:    "condition evaluated to " + branch,
		Data:       map[string]any{"result": matched},
		NextBranch: branch,
	}
}

func parseConfig(config map[string]any) (string, []models.TriggerRule, error) {
	logicType, _ := config["logicType"].(string)

	switch logicType {
	case "", models.LogicTypeAnd, models.LogicTypeOr:
	default:
		return "", nil, fmt.Errorf("unknown logic type %q", logicType)
	}

	raw, exists := config["conditions"]
	if !exists || raw == nil {
		return "", nil, fmt.Errorf("conditions list is required")
	}

	entries, ok := raw.([]any)
	if !ok {
		return "", nil, fmt.Errorf("conditions must be a list, got %T", raw)
	}

	rules := make([]models.TriggerRule, 0, len(entries))

	for i, entry := range entries {
		fields, ok := entry.(map[string]any)
		if !ok {
			return "", nil, fmt.Errorf("condition %d must be an object, got %T", i, entry)
		}

		field, _ := fields["field"].(string)
		operator, _ := fields["operator"].(string)

		if field == "" || operator == "" {
			return "", nil, fmt.Errorf("condition %d requires field and operator", i)
		}

		var value string
		if rawValue, exists := fields["value"]; exists && rawValue != nil {
			value = fmt.Sprintf("%v", rawValue)
		}

		rules = append(rules, models.TriggerRule{
			Field:    field,
			Operator: operator,
			Value:    value,
		})
	}

	return logicType, rules, nil
}
