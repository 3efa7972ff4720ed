// Package templates maps lifecycle stages to pure page generators. The
// registry is immutable once built: extension happens by rebuilding the
// mapping at startup, never by runtime patching.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/Blueprint-Labs/blueprint/core/pkg/hydrate"
	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
)

// ErrUnknownStage is returned for a stage no template is registered for.
// This is a configuration error and is surfaced, never silently defaulted.
var ErrUnknownStage = errors.New("unknown lifecycle stage")

// SectionSpec declares one section of a template. Optional sections carry a
// CEL include-predicate over the variable `bundle`; a section with an empty
// predicate is always included. Declaring inclusion as data rather than
// control flow keeps each predicate independently testable.
type SectionSpec struct {
	Kind             string
	ID               string
	ComponentVersion int
	// Include is a CEL expression, e.g. `bundle.systemMap != null`.
	Include string
	// Props builds the component's props from the bundle. Nil means no
	// props.
	Props func(*hydrate.Bundle) map[string]any
}

// Template declares one stage's page: its contract version and ordered
// sections.
type Template struct {
	Stage         schema.LifecycleStage
	SchemaVersion int
	Sections      []SectionSpec
}

type compiledSection struct {
	spec    SectionSpec
	include cel.Program // nil when always included
}

type compiledTemplate struct {
	schemaVersion int
	sections      []compiledSection
}

// Registry is the immutable stage-to-generator mapping.
type Registry struct {
	templates map[schema.LifecycleStage]*compiledTemplate
}

// Builder assembles a Registry at startup. Registering a stage twice
// overwrites the earlier template; this is permitted (hot-reload of
// template sets) but logged so the final set stays auditable.
type Builder struct {
	templates map[schema.LifecycleStage]Template
	logger    *slog.Logger
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{
		templates: make(map[schema.LifecycleStage]Template),
		logger:    slog.Default().With("component", "templates"),
	}
}

// Register adds a template, replacing any previous one for the stage.
func (b *Builder) Register(t Template) *Builder {
	if _, exists := b.templates[t.Stage]; exists {
		b.logger.Warn("template overwritten", "stage", t.Stage)
	}
	b.templates[t.Stage] = t
	return b
}

// Build compiles every include-predicate and freezes the registry.
func (b *Builder) Build() (*Registry, error) {
	env, err := cel.NewEnv(
		cel.Variable("bundle", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create predicate environment: %w", err)
	}

	out := make(map[schema.LifecycleStage]*compiledTemplate, len(b.templates))
	for stage, t := range b.templates {
		ct := &compiledTemplate{schemaVersion: t.SchemaVersion}
		for _, spec := range t.Sections {
			cs := compiledSection{spec: spec}
			if spec.Include != "" {
				ast, issues := env.Compile(spec.Include)
				if issues != nil && issues.Err() != nil {
					return nil, fmt.Errorf("stage %s section %s: compile predicate: %w",
						stage, spec.Kind, issues.Err())
				}
				prg, err := env.Program(ast, cel.InterruptCheckFrequency(100))
				if err != nil {
					return nil, fmt.Errorf("stage %s section %s: program predicate: %w",
						stage, spec.Kind, err)
				}
				cs.include = prg
			}
			ct.sections = append(ct.sections, cs)
		}
		out[stage] = ct
	}
	return &Registry{templates: out}, nil
}

// Stages lists the registered stages.
func (r *Registry) Stages() []schema.LifecycleStage {
	stages := make([]schema.LifecycleStage, 0, len(r.templates))
	for s := range r.templates {
		stages = append(stages, s)
	}
	return stages
}

// Has reports whether a stage is registered.
func (r *Registry) Has(stage schema.LifecycleStage) bool {
	_, ok := r.templates[stage]
	return ok
}

// Generate renders the stage's page from the bundle. It is pure: the same
// bundle yields the same page, and no timestamp is stamped here (that is
// the generation service's job).
func (r *Registry) Generate(stage schema.LifecycleStage, bundle *hydrate.Bundle) (*schema.PageDefinition, error) {
	t, ok := r.templates[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}

	input, err := bundleActivation(bundle)
	if err != nil {
		return nil, fmt.Errorf("prepare predicate input: %w", err)
	}

	sections := []schema.Section{}
	for _, cs := range t.sections {
		if cs.include != nil {
			include, err := evalPredicate(cs.include, input)
			if err != nil {
				return nil, fmt.Errorf("stage %s section %s: %w", stage, cs.spec.Kind, err)
			}
			if !include {
				continue
			}
		}
		section := schema.Section{
			Kind:             cs.spec.Kind,
			ID:               cs.spec.ID,
			ComponentVersion: cs.spec.ComponentVersion,
		}
		if cs.spec.Props != nil {
			section.Props = cs.spec.Props(bundle)
		}
		sections = append(sections, section)
	}

	return &schema.PageDefinition{
		Type:          schema.PageType,
		SchemaVersion: t.schemaVersion,
		Sections:      sections,
		Metadata: schema.PageMetadata{
			LifecycleStage: stage,
			Priority:       schema.PriorityNormal,
		},
	}, nil
}

// bundleActivation exposes the bundle to CEL as a plain map, so predicates
// address fields by their wire names.
func bundleActivation(bundle *hydrate.Bundle) (map[string]any, error) {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return map[string]any{"bundle": m}, nil
}

func evalPredicate(prg cel.Program, input map[string]any) (bool, error) {
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("evaluate predicate: %w", err)
	}
	include, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("predicate returned %T, want bool", out.Value())
	}
	return include, nil
}
