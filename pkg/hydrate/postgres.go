package hydrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSource reads bundle data through fixed, workspace-scoped queries.
// The core never issues ad-hoc SQL: every operation here is one of the
// named fetch contracts, and row-level tenant policy is the database's job.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource wraps an open database handle.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) FetchMetrics(ctx context.Context, workspaceID string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM workspace_metrics WHERE workspace_id = $1`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	metrics := make(map[string]any)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics[name] = value
	}
	return metrics, rows.Err()
}

func (s *PostgresSource) FetchDiscoveries(ctx context.Context, workspaceID string) ([]Discovery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, summary, source, captured_at
		 FROM discoveries
		 WHERE workspace_id = $1
		 ORDER BY captured_at DESC
		 LIMIT 50`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query discoveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	discoveries := []Discovery{}
	for rows.Next() {
		var d Discovery
		var summary, source sql.NullString
		var capturedAt time.Time
		if err := rows.Scan(&d.ID, &d.Title, &summary, &source, &capturedAt); err != nil {
			return nil, fmt.Errorf("scan discovery: %w", err)
		}
		d.Summary = summary.String
		d.Source = source.String
		d.CapturedAt = capturedAt.UnixMilli()
		discoveries = append(discoveries, d)
	}
	return discoveries, rows.Err()
}

func (s *PostgresSource) FetchSystemMap(ctx context.Context, workspaceID string) (*SystemMap, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, kind FROM system_map_nodes WHERE workspace_id = $1`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query system map nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []SystemNode
	for rows.Next() {
		var n SystemNode
		var kind sql.NullString
		if err := rows.Scan(&n.ID, &n.Label, &kind); err != nil {
			return nil, fmt.Errorf("scan system map node: %w", err)
		}
		n.Kind = kind.String
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// No mapped system means no map section, not an empty diagram.
	if len(nodes) == 0 {
		return nil, nil
	}

	edgeRows, err := s.db.QueryContext(ctx,
		`SELECT from_node, to_node, label FROM system_map_edges WHERE workspace_id = $1`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query system map edges: %w", err)
	}
	defer func() { _ = edgeRows.Close() }()

	var edges []SystemEdge
	for edgeRows.Next() {
		var e SystemEdge
		var label sql.NullString
		if err := edgeRows.Scan(&e.From, &e.To, &label); err != nil {
			return nil, fmt.Errorf("scan system map edge: %w", err)
		}
		e.Label = label.String
		edges = append(edges, e)
	}
	return &SystemMap{Nodes: nodes, Edges: edges}, edgeRows.Err()
}

func (s *PostgresSource) FetchPersonas(ctx context.Context, workspaceID string) ([]Persona, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, role, fit_score FROM personas WHERE workspace_id = $1 ORDER BY fit_score DESC`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	personas := []Persona{}
	for rows.Next() {
		var p Persona
		var role sql.NullString
		if err := rows.Scan(&p.Name, &role, &p.FitScore); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		p.Role = role.String
		personas = append(personas, p)
	}
	return personas, rows.Err()
}

func (s *PostgresSource) FetchKPITargets(ctx context.Context, workspaceID string) ([]KPITarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kpi_id, target_value, unit FROM kpi_targets WHERE workspace_id = $1`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query kpi targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	targets := []KPITarget{}
	for rows.Next() {
		var t KPITarget
		var unit sql.NullString
		if err := rows.Scan(&t.KPIID, &t.TargetValue, &unit); err != nil {
			return nil, fmt.Errorf("scan kpi target: %w", err)
		}
		t.Unit = unit.String
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (s *PostgresSource) FetchRealization(ctx context.Context, workspaceID string) (*RealizationReport, error) {
	targets, err := s.FetchKPITargets(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]KPITarget, len(targets))
	for _, t := range targets {
		byID[t.KPIID] = t
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kpi_id, AVG(value) FROM kpi_telemetry WHERE workspace_id = $1 GROUP BY kpi_id`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query kpi telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	report := &RealizationReport{Results: []KPIResult{}}
	for rows.Next() {
		var r KPIResult
		if err := rows.Scan(&r.KPIID, &r.Actual); err != nil {
			return nil, fmt.Errorf("scan kpi telemetry: %w", err)
		}
		if t, ok := byID[r.KPIID]; ok {
			target := t.TargetValue
			variance := r.Actual - target
			r.Target = &target
			r.Variance = &variance
			r.Unit = t.Unit
			if variance < 0 {
				report.AtRisk = true
			}
		}
		report.Results = append(report.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(report.Results) == 0 {
		return nil, nil
	}
	return report, nil
}
