package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cyberres/core"
	"cyberres/policy"
	"cyberres/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticSource struct {
	snap *report.Snapshot
}

func (s *staticSource) Latest() *report.Snapshot { return s.snap }

func TestDiagnostics_BeforeFirstEvaluation(t *testing.T) {
	d := NewDiagnostics(":0", &staticSource{}, zaptest.NewLogger(t).Sugar())

	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "waiting", health["status"])

	rec = httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDiagnostics_ServesLatestSnapshot(t *testing.T) {
	snap := &report.Snapshot{
		RunID:    "run-1",
		Mode:     ModeWatch,
		Cycle:    3,
		Events:   42,
		Policies: []string{"baseline"},
		Results: map[string]*policy.Result{
			"baseline": {Metrics: core.Metrics{Policy: "baseline", AvailabilityPct: 99.5}},
		},
		Rankings: []policy.Ranking{{Policy: "baseline", Effectiveness: 0}},
	}
	d := NewDiagnostics(":0", &staticSource{snap: snap}, nil)

	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary SnapshotSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 3, summary.Cycle)
	require.Len(t, summary.Metrics, 1)
	assert.Equal(t, 99.5, summary.Metrics[0].AvailabilityPct)

	rec = httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ranking", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var rankings []policy.Ranking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rankings))
	assert.Len(t, rankings, 1)

	rec = httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
