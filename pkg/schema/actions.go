package schema

// ActionContext carries the transport-level identity fields of a dispatch.
// These travel alongside the payload, never inside it.
type ActionContext struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	SessionID   string `json:"sessionId,omitempty"`
	TraceID     string `json:"traceId,omitempty"`
}

// ActionRequest is a named, server-validated operation dispatched by a
// client interaction. The action name must resolve to exactly one
// registered handler; unregistered names are a hard error, not a no-op.
type ActionRequest struct {
	ActionName string         `json:"action"`
	Payload    map[string]any `json:"payload,omitempty"`
	Context    ActionContext  `json:"context"`
}

// ActionResult is the structured outcome of a dispatch. When Success is
// false the client applies neither SchemaUpdate nor AtomicActions. At most
// one of the two is meaningful per result; when both are absent the action
// was a pure side effect and the client changes nothing visually.
type ActionResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	// SchemaUpdate is a full page replacement, used for structural change
	// such as switching lifecycle stage.
	SchemaUpdate *PageDefinition `json:"schemaUpdate,omitempty"`
	// AtomicActions are incremental mutations applied to the client's
	// already-rendered tree, strictly in list order.
	AtomicActions []AtomicAction `json:"atomicActions,omitempty"`
}

// AtomicActionKind discriminates the atomic action variants.
type AtomicActionKind string

const (
	ActionAdd    AtomicActionKind = "add"
	ActionMutate AtomicActionKind = "mutate"
	ActionRemove AtomicActionKind = "remove"
)

// PositionMode places an added section relative to the tree or an anchor.
type PositionMode string

const (
	PositionTop    PositionMode = "top"
	PositionBottom PositionMode = "bottom"
	PositionBefore PositionMode = "before"
	PositionAfter  PositionMode = "after"
)

// ComponentSelector identifies a section by stable component-type tag and,
// when the tag alone is ambiguous, an explicit instance id. Selectors never
// address sections by positional index: positions shift as actions apply.
type ComponentSelector struct {
	Kind       string `json:"kind"`
	InstanceID string `json:"instanceId,omitempty"`
}

// Position describes where an added section is inserted. AnchorID names a
// sibling for before/after placement; when empty the action's target
// selector resolves the anchor instead.
type Position struct {
	Mode     PositionMode `json:"mode"`
	AnchorID string       `json:"anchorId,omitempty"`
}

// PropOp is one property-level mutation operation.
type PropOp string

const (
	OpSet    PropOp = "set"
	OpMerge  PropOp = "merge"
	OpDelete PropOp = "delete"
)

// PropMutation is a single operation against a section's props, addressed
// by a dot-separated path.
type PropMutation struct {
	Path      string `json:"path"`
	Operation PropOp `json:"operation"`
	Value     any    `json:"value,omitempty"`
}

// AtomicAction is one incremental instruction for updating an
// already-rendered client tree without a full page replacement.
type AtomicAction struct {
	Kind   AtomicActionKind  `json:"kind"`
	Target ComponentSelector `json:"target"`
	// Position and Component are set for "add" actions only.
	Position  *Position `json:"position,omitempty"`
	Component *Section  `json:"componentSpec,omitempty"`
	// Operations are set for "mutate" actions only, applied in order.
	Operations []PropMutation `json:"operations,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}
