package models

// ActionResult is the outcome of one dispatcher invocation. It is never
// persisted standalone; the executor wraps it into a LogRecord. NextBranch
// is set only by condition nodes and names the outgoing edge handle the
// traversal follows.
type ActionResult struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	NextBranch string         `json:"next_branch,omitempty"`
}
