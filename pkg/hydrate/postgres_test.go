package hydrate

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockSource(t *testing.T) (*PostgresSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresSource(db), mock
}

func TestPostgresSource_FetchMetrics(t *testing.T) {
	src, mock := mockSource(t)
	mock.ExpectQuery("SELECT name, value FROM workspace_metrics").
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("total", 5.0).
			AddRow("active", 3.0))

	m, err := src.FetchMetrics(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, m["total"])
	assert.Equal(t, 3.0, m["active"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_FetchDiscoveries(t *testing.T) {
	src, mock := mockSource(t)
	captured := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT id, title, summary, source, captured_at").
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "summary", "source", "captured_at"}).
			AddRow("d-1", "first", "a summary", "interview", captured).
			AddRow("d-2", "second", nil, nil, captured))

	ds, err := src.FetchDiscoveries(context.Background(), "ws-1")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "a summary", ds[0].Summary)
	assert.Equal(t, captured.UnixMilli(), ds[0].CapturedAt)
	assert.Empty(t, ds[1].Summary)
	assert.Empty(t, ds[1].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_FetchSystemMap(t *testing.T) {
	t.Run("no nodes means no map", func(t *testing.T) {
		src, mock := mockSource(t)
		mock.ExpectQuery("SELECT id, label, kind FROM system_map_nodes").
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "label", "kind"}))

		m, err := src.FetchSystemMap(context.Background(), "ws-1")
		require.NoError(t, err)
		assert.Nil(t, m)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nodes and edges", func(t *testing.T) {
		src, mock := mockSource(t)
		mock.ExpectQuery("SELECT id, label, kind FROM system_map_nodes").
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "label", "kind"}).
				AddRow("crm", "CRM", "saas").
				AddRow("billing", "Billing", nil))
		mock.ExpectQuery("SELECT from_node, to_node, label FROM system_map_edges").
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{"from_node", "to_node", "label"}).
				AddRow("crm", "billing", "invoices"))

		m, err := src.FetchSystemMap(context.Background(), "ws-1")
		require.NoError(t, err)
		require.NotNil(t, m)
		require.Len(t, m.Nodes, 2)
		assert.Equal(t, "saas", m.Nodes[0].Kind)
		assert.Empty(t, m.Nodes[1].Kind)
		require.Len(t, m.Edges, 1)
		assert.Equal(t, "crm", m.Edges[0].From)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresSource_FetchRealization(t *testing.T) {
	t.Run("variance against targets", func(t *testing.T) {
		src, mock := mockSource(t)
		mock.ExpectQuery("SELECT kpi_id, target_value, unit FROM kpi_targets").
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{"kpi_id", "target_value", "unit"}).
				AddRow("nps", 50.0, "pts").
				AddRow("mttr", 4.0, "h"))
		mock.ExpectQuery(`SELECT kpi_id, AVG\(value\) FROM kpi_telemetry`).
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{"kpi_id", "avg"}).
				AddRow("nps", 42.0).
				AddRow("untracked", 1.0))

		r, err := src.FetchRealization(context.Background(), "ws-1")
		require.NoError(t, err)
		require.NotNil(t, r)
		require.Len(t, r.Results, 2)

		nps := r.Results[0]
		require.NotNil(t, nps.Target)
		assert.Equal(t, 50.0, *nps.Target)
		require.NotNil(t, nps.Variance)
		assert.Equal(t, -8.0, *nps.Variance)
		assert.Equal(t, "pts", nps.Unit)
		assert.True(t, r.AtRisk)

		// Telemetry without a committed target is reported as-is.
		assert.Nil(t, r.Results[1].Target)
		assert.Nil(t, r.Results[1].Variance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no telemetry means no report", func(t *testing.T) {
		src, mock := mockSource(t)
		mock.ExpectQuery("SELECT kpi_id, target_value, unit FROM kpi_targets").
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{"kpi_id", "target_value", "unit"}))
		mock.ExpectQuery(`SELECT kpi_id, AVG\(value\) FROM kpi_telemetry`).
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{"kpi_id", "avg"}))

		r, err := src.FetchRealization(context.Background(), "ws-1")
		require.NoError(t, err)
		assert.Nil(t, r)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresSource_FetchPersonas(t *testing.T) {
	src, mock := mockSource(t)
	mock.ExpectQuery("SELECT name, role, fit_score FROM personas").
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "role", "fit_score"}).
			AddRow("Dana", "ops", 0.9).
			AddRow("Rey", nil, 0.4))

	ps, err := src.FetchPersonas(context.Background(), "ws-1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, 0.9, ps[0].FitScore)
	assert.Empty(t, ps[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
