// Package hydrate aggregates the data bundle a template needs. Each named
// sub-fetch is independent: they run concurrently, and a failing or slow
// branch degrades to a typed default instead of failing the bundle. Partial
// data beats no page.
package hydrate

// Bundle is the aggregated, possibly partially-defaulted data for one
// workspace. Field defaults on sub-fetch failure: empty map, empty slice,
// or nil for the optional pointer fields.
type Bundle struct {
	Metrics     map[string]any     `json:"metrics"`
	Discoveries []Discovery        `json:"discoveries"`
	SystemMap   *SystemMap         `json:"systemMap"`
	Personas    []Persona          `json:"personas"`
	KPITargets  []KPITarget        `json:"kpiTargets"`
	Realization *RealizationReport `json:"realization"`
}

// Discovery is one captured discovery input (call note, transcript, ...).
type Discovery struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Summary    string `json:"summary,omitempty"`
	Source     string `json:"source,omitempty"`
	CapturedAt int64  `json:"capturedAtEpochMs"`
}

// Persona describes a buyer persona and how well the workspace fits it.
type Persona struct {
	Name     string  `json:"name"`
	Role     string  `json:"role,omitempty"`
	FitScore float64 `json:"fitScore"`
}

// SystemMap is the customer's system landscape.
type SystemMap struct {
	Nodes []SystemNode `json:"nodes"`
	Edges []SystemEdge `json:"edges"`
}

type SystemNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind,omitempty"`
}

type SystemEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// KPITarget is one committed KPI target for the workspace.
type KPITarget struct {
	KPIID       string  `json:"kpiId"`
	TargetValue float64 `json:"targetValue"`
	Unit        string  `json:"unit,omitempty"`
}

// KPIResult compares delivered value against a target for one KPI.
type KPIResult struct {
	KPIID    string   `json:"kpiId"`
	Actual   float64  `json:"actualValue"`
	Target   *float64 `json:"targetValue,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Variance *float64 `json:"variance,omitempty"`
}

// RealizationReport aggregates KPI telemetry against targets. AtRisk is set
// when any KPI with a target runs below it.
type RealizationReport struct {
	Results []KPIResult `json:"results"`
	AtRisk  bool        `json:"atRisk"`
}

// Default returns a bundle with every field at its documented zero value.
func Default() *Bundle {
	return &Bundle{
		Metrics:     map[string]any{},
		Discoveries: []Discovery{},
		Personas:    []Persona{},
		KPITargets:  []KPITarget{},
	}
}
