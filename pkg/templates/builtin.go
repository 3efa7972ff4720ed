package templates

import (
	"github.com/Blueprint-Labs/blueprint/core/pkg/hydrate"
	"github.com/Blueprint-Labs/blueprint/core/pkg/schema"
)

// Component kinds emitted by the built-in templates. The renderer's
// component registry resolves these tags; the core only guarantees
// kind + version + props are well-formed.
const (
	KindMetricsOverview   = "metrics-overview"
	KindDiscoveryFeed     = "discovery-feed"
	KindDiscoveryCard     = "discovery-card"
	KindPersonaFit        = "persona-fit"
	KindSystemMap         = "system-map"
	KindValueModel        = "value-model"
	KindKPIGrid           = "kpi-grid"
	KindRealizationReport = "realization-report"
	KindRenewalAlert      = "renewal-alert"
	KindExpansionBoard    = "expansion-board"
	KindIntegritySummary  = "integrity-summary"
)

func metricsProps(b *hydrate.Bundle) map[string]any {
	return map[string]any{"metrics": b.Metrics}
}

func discoveryFeedProps(b *hydrate.Bundle) map[string]any {
	return map[string]any{
		"discoveries": b.Discoveries,
		"count":       len(b.Discoveries),
	}
}

func personaProps(b *hydrate.Bundle) map[string]any {
	return map[string]any{"personas": b.Personas}
}

func systemMapProps(b *hydrate.Bundle) map[string]any {
	return map[string]any{"map": b.SystemMap}
}

func kpiGridProps(b *hydrate.Bundle) map[string]any {
	return map[string]any{"targets": b.KPITargets}
}

func realizationProps(b *hydrate.Bundle) map[string]any {
	return map[string]any{"report": b.Realization}
}

// Builtin registers the stage templates shipped with the product and
// freezes them into a registry.
func Builtin() (*Registry, error) {
	return NewBuilder().
		Register(Template{
			Stage:         schema.StageOpportunity,
			SchemaVersion: 2,
			Sections: []SectionSpec{
				{Kind: KindMetricsOverview, ComponentVersion: 2, Props: metricsProps},
				{Kind: KindDiscoveryFeed, ComponentVersion: 1, Props: discoveryFeedProps},
				{Kind: KindPersonaFit, ComponentVersion: 1, Props: personaProps},
				{
					Kind:             KindSystemMap,
					ComponentVersion: 1,
					Include:          `bundle.systemMap != null`,
					Props:            systemMapProps,
				},
			},
		}).
		Register(Template{
			Stage:         schema.StageTarget,
			SchemaVersion: 2,
			Sections: []SectionSpec{
				{
					Kind:             KindValueModel,
					ComponentVersion: 2,
					Props: func(b *hydrate.Bundle) map[string]any {
						return map[string]any{
							"metrics": b.Metrics,
							"targets": b.KPITargets,
						}
					},
				},
				{Kind: KindKPIGrid, ComponentVersion: 1, Props: kpiGridProps},
				{
					Kind:             KindPersonaFit,
					ComponentVersion: 1,
					Include:          `size(bundle.personas) > 0`,
					Props:            personaProps,
				},
			},
		}).
		Register(Template{
			Stage:         schema.StageRealization,
			SchemaVersion: 1,
			Sections: []SectionSpec{
				{
					Kind:             KindRealizationReport,
					ComponentVersion: 1,
					Include:          `bundle.realization != null`,
					Props:            realizationProps,
				},
				{
					Kind:             KindRenewalAlert,
					ComponentVersion: 1,
					Include:          `bundle.realization != null && bundle.realization.atRisk`,
					Props: func(b *hydrate.Bundle) map[string]any {
						return map[string]any{
							"status":  "risk",
							"message": "Value delivery below target for one or more KPIs",
						}
					},
				},
				{Kind: KindKPIGrid, ComponentVersion: 1, Props: kpiGridProps},
			},
		}).
		Register(Template{
			Stage:         schema.StageExpansion,
			SchemaVersion: 1,
			Sections: []SectionSpec{
				{Kind: KindMetricsOverview, ComponentVersion: 2, Props: metricsProps},
				{
					Kind:             KindExpansionBoard,
					ComponentVersion: 1,
					Props: func(b *hydrate.Bundle) map[string]any {
						return map[string]any{
							"discoveries": b.Discoveries,
							"personas":    b.Personas,
						}
					},
				},
			},
		}).
		Register(Template{
			Stage:         schema.StageIntegrity,
			SchemaVersion: 1,
			Sections: []SectionSpec{
				{
					Kind:             KindIntegritySummary,
					ComponentVersion: 1,
					Props: func(b *hydrate.Bundle) map[string]any {
						return map[string]any{
							"metrics":     b.Metrics,
							"targetCount": len(b.KPITargets),
						}
					},
				},
				{
					Kind:             KindDiscoveryFeed,
					ComponentVersion: 1,
					Include:          `size(bundle.discoveries) > 0`,
					Props:            discoveryFeedProps,
				},
			},
		}).
		Build()
}
