package models

import (
	"fmt"
	"strings"
)

// Trigger types. Webhook triggers are fed by the HTTP intake; mailbox
// triggers are fed by the IMAP poller.
const (
	TriggerTypeWebhook        = "WEBHOOK"
	TriggerTypeMailboxPolling = "MAILBOX_POLLING"
)

// Rule operators.
const (
	OperatorContains = "contains"
	OperatorEquals   = "equals"
)

// Logic types for combining rules.
const (
	LogicTypeAnd = "AND"
	LogicTypeOr  = "OR"
)

// TriggerRule is a single filter predicate evaluated against event data.
type TriggerRule struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required,oneof=contains equals"`
	Value    string `json:"value"`
}

// Trigger binds an event source to a workflow. Config is source-specific:
// webhook triggers carry the bearer key (and an optional payload schema),
// mailbox triggers carry the account id and polling interval.
type Trigger struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id" validate:"required"`
	Type       string         `json:"type"        validate:"required,oneof=WEBHOOK MAILBOX_POLLING"`
	Config     map[string]any `json:"config"`
	Rules      []TriggerRule  `json:"rules,omitempty"`
}

// Evaluate applies the rule to the given event data. A rule whose field is
// absent from the data evaluates to false, as does an unknown operator.
func (r TriggerRule) Evaluate(data map[string]any) bool {
	raw, ok := data[r.Field]
	if !ok {
		return false
	}

	value := fmt.Sprintf("%v", raw)

	switch r.Operator {
	case OperatorContains:
		return strings.Contains(value, r.Value)
	case OperatorEquals:
		return value == r.Value
	default:
		return false
	}
}

// EvaluateRules combines rules with the given logic type, short-circuiting
// on the first decisive rule. AND over zero rules is true; OR over zero
// rules is false.
func EvaluateRules(logicType string, rules []TriggerRule, data map[string]any) bool {
	if logicType == "" {
		logicType = LogicTypeAnd
	}

	result := logicType == LogicTypeAnd

	for _, rule := range rules {
		met := rule.Evaluate(data)

		if logicType == LogicTypeAnd {
			if !met {
				return false
			}
		} else {
			if met {
				return true
			}
		}
	}

	return result
}
