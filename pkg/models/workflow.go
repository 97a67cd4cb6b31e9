// Package models defines the core domain models for node-based workflow automation.
package models

import (
	"strings"
	"time"
)

// Node types understood by the graph executor. A workflow graph contains
// exactly one node whose type carries the "trigger" prefix; it is the
// traversal root and is never dispatched as an action.
const (
	NodeTypeTrigger        = "trigger"
	NodeTypeTriggerWebhook = "trigger-webhook"
	NodeTypeAction         = "action"
	NodeTypeActionNotion   = "action-notion"
	NodeTypeCondition      = "condition"
)

// Branch handles used on the outgoing edges of a condition node.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Node is a single vertex in a workflow graph. Config carries the
// type-specific payload (webhook URL and content for chat actions,
// rules and logic type for conditions, and so on).
type Node struct {
	ID     string         `json:"id"   validate:"required"`
	Type   string         `json:"type" validate:"required"`
	Config map[string]any `json:"config"`
}

// IsTrigger reports whether the node is the traversal root of its graph.
func (n *Node) IsTrigger() bool {
	return strings.HasPrefix(n.Type, NodeTypeTrigger)
}

// IsCondition reports whether the node selects one of two outgoing branches.
func (n *Node) IsCondition() bool {
	return n.Type == NodeTypeCondition
}

// Edge is a directed connection between two nodes. SourceHandle is set only
// on edges leaving a condition node and names the branch ("true"/"false")
// the edge belongs to. At most one outgoing edge per node may carry a given
// handle label.
type Edge struct {
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// WorkflowSettings holds per-workflow execution options.
type WorkflowSettings struct {
	EnableFailureAlert bool   `json:"enableFailureAlert"`
	FailureWebhookURL  string `json:"failureWebhookUrl,omitempty"`
}

// Workflow is a user-defined automation: a node/edge graph plus settings.
type Workflow struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"  validate:"required,min=1"`
	Owner     string            `json:"owner" validate:"required"`
	IsActive  bool              `json:"is_active"`
	Nodes     []*Node           `json:"nodes"`
	Edges     []*Edge           `json:"edges"`
	Settings  *WorkflowSettings `json:"settings,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TriggerNode returns the graph's single trigger-prefixed node, or nil when
// the graph has none (a fatal configuration error for execution).
func (w *Workflow) TriggerNode() *Node {
	return FindTriggerNode(w.Nodes)
}

// FindTriggerNode locates the trigger node in a node set.
func FindTriggerNode(nodes []*Node) *Node {
	for _, n := range nodes {
		if n.IsTrigger() {
			return n
		}
	}

	return nil
}

// NodeByID locates a node in a node set by id.
func NodeByID(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// OutgoingEdges returns every edge leaving the given node, in declaration order.
func OutgoingEdges(edges []*Edge, source string) []*Edge {
	var out []*Edge

	for _, e := range edges {
		if e.Source == source {
			out = append(out, e)
		}
	}

	return out
}

// EdgeByHandle returns the single outgoing edge of source carrying the given
// handle label, or nil when the branch has no continuation.
func EdgeByHandle(edges []*Edge, source, handle string) *Edge {
	for _, e := range edges {
		if e.Source == source && e.SourceHandle == handle {
			return e
		}
	}

	return nil
}
