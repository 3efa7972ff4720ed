// Package schema defines the typed page contract between the generation
// service and a rendering client. Pages are declarative: the client renders
// whatever component tree the server emits and applies incremental atomic
// actions to it; it never decides on its own what to show.
package schema

// PageType is the constant discriminator for the page wire object.
const PageType = "page"

// LifecycleStage selects which template and data bundle apply to a workspace.
type LifecycleStage string

const (
	StageOpportunity LifecycleStage = "opportunity"
	StageTarget      LifecycleStage = "target"
	StageRealization LifecycleStage = "realization"
	StageExpansion   LifecycleStage = "expansion"
	StageIntegrity   LifecycleStage = "integrity"
)

// Priority hints how prominently a page should be surfaced.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// KindGroup marks a section as a layout grouping rather than a renderable
// component. All other kinds identify a component in the renderer's registry.
const KindGroup = "group"

// Section is one entry in a page's component tree. Ordering within a
// sections slice is significant: it is render order and sibling identity
// for atomic-action targeting.
type Section struct {
	// Kind is the component type tag, or KindGroup for a layout grouping.
	Kind string `json:"kind"`
	// ID optionally disambiguates multiple sections of the same kind.
	ID string `json:"id,omitempty"`
	// ComponentVersion pins the renderer contract for this component.
	ComponentVersion int `json:"componentVersion,omitempty"`
	// Props are the data bound to the component.
	Props map[string]any `json:"props,omitempty"`
	// Children is populated for layout groupings only.
	Children []Section `json:"children,omitempty"`
}

// IsGroup reports whether the section is a layout grouping.
func (s *Section) IsGroup() bool { return s.Kind == KindGroup }

// AccessibilityProfile carries rendering hints for assistive clients.
type AccessibilityProfile struct {
	HighContrast  bool    `json:"highContrast,omitempty"`
	ReducedMotion bool    `json:"reducedMotion,omitempty"`
	FontScale     float64 `json:"fontScale,omitempty"`
}

// PageMetadata describes a generated page. It is purely descriptive and
// never contributes to the structural identity of the section tree.
// Consumers must ignore metadata fields they do not recognize.
type PageMetadata struct {
	LifecycleStage   LifecycleStage        `json:"lifecycleStage"`
	WorkspaceID      string                `json:"workspaceId"`
	SessionID        string                `json:"sessionId,omitempty"`
	GeneratedAt      int64                 `json:"generatedAtEpochMs"`
	TraceID          string                `json:"traceId,omitempty"`
	Priority         Priority              `json:"priority"`
	Accessibility    *AccessibilityProfile `json:"accessibility,omitempty"`
	TelemetryEnabled bool                  `json:"telemetryEnabled"`
	// Confidence is supplied by the caller when the page content came out
	// of an agent pipeline; absent otherwise.
	Confidence *float64 `json:"confidence,omitempty"`
}

// PageDefinition is the versioned, declarative description of one screen.
// A definition is immutable once produced: regeneration and atomic actions
// always yield a new value, never an in-place mutation.
type PageDefinition struct {
	Type string `json:"type"`
	// SchemaVersion identifies the section/field contract of the template
	// that produced this page. It is bumped when the contract changes, not
	// on every regeneration.
	SchemaVersion int          `json:"version"`
	Sections      []Section    `json:"sections"`
	Metadata      PageMetadata `json:"metadata"`
}

// Clone returns a deep copy of the page. Atomic actions are applied to
// copies so the original definition is never mutated.
func (p *PageDefinition) Clone() *PageDefinition {
	if p == nil {
		return nil
	}
	out := *p
	out.Sections = cloneSections(p.Sections)
	if p.Metadata.Accessibility != nil {
		a := *p.Metadata.Accessibility
		out.Metadata.Accessibility = &a
	}
	if p.Metadata.Confidence != nil {
		c := *p.Metadata.Confidence
		out.Metadata.Confidence = &c
	}
	return &out
}

func cloneSections(sections []Section) []Section {
	if sections == nil {
		return nil
	}
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = s
		out[i].Props = cloneMap(s.Props)
		out[i].Children = cloneSections(s.Children)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
