package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cyberres/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_BatchEndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := writeEvents(t, dir, bruteForceCSV(0, 2, 4, 6, 8)+"garbage\n")
	out := filepath.Join(dir, "out")

	e := newTestEvaluator(t, input, out, Settings{})
	snap, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, ModeBatch, snap.Mode)
	assert.Equal(t, 5, snap.Events)
	assert.Equal(t, 1, snap.Rejected())
	assert.Equal(t, 3600.0, snap.HorizonSec)
	assert.Equal(t, []string{"baseline", "hardened"}, snap.Policies)

	baseline := snap.Results["baseline"]
	require.NoError(t, baseline.Err)
	require.Len(t, baseline.Alerts, 1)
	assert.Len(t, baseline.Alerts[0].EventIDs, 5)
	require.Len(t, baseline.Incidents, 1)
	inc := baseline.Incidents[0]
	assert.Equal(t, testEpoch, inc.StartTs)
	assert.Equal(t, "brute_force", inc.ScenarioTag)
	assert.False(t, inc.IsOpen(), "batch input is complete")
	assert.Equal(t, 1, baseline.Metrics.RejectedEvents)

	hardened := snap.Results["hardened"]
	assert.Greater(t, hardened.Metrics.AvailabilityPct, baseline.Metrics.AvailabilityPct)
	assert.Equal(t, "hardened", snap.Rankings[0].Policy)

	for _, name := range []string{report.ResultsFile, report.IncidentsFile, report.TextFile, report.HTMLFile, report.ManifestFile} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	assert.Same(t, snap, e.Latest())
}

func TestRun_Reproducible(t *testing.T) {
	dir := t.TempDir()
	input := writeEvents(t, dir, bruteForceCSV(0, 2, 4, 6, 8, 300, 302, 304, 306, 308))

	first := newTestEvaluator(t, input, t.TempDir(), Settings{Seed: 7})
	second := newTestEvaluator(t, input, t.TempDir(), Settings{Seed: 7})
	a, err := first.Run(context.Background())
	require.NoError(t, err)
	b, err := second.Run(context.Background())
	require.NoError(t, err)

	for _, name := range a.Policies {
		assert.Equal(t, a.Results[name].Incidents, b.Results[name].Incidents)
		assert.Equal(t, a.Results[name].Metrics, b.Results[name].Metrics)
	}
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRun_NoValidEvents(t *testing.T) {
	dir := t.TempDir()
	input := writeEvents(t, dir, eventsHeader+"bad,row\n")

	_, err := newTestEvaluator(t, input, dir, Settings{}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestRun_MissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestEvaluator(t, filepath.Join(dir, "nope.csv"), dir, Settings{}).Run(context.Background())
	require.Error(t, err)
}

func TestRun_TruncateAtHorizon(t *testing.T) {
	dir := t.TempDir()
	input := writeEvents(t, dir, bruteForceCSV(0, 2, 4, 6, 8))

	e := newTestEvaluator(t, input, dir, Settings{HorizonDays: 1.0 / 24 / 60, TruncateAtHorizon: true})
	snap, err := e.Run(context.Background())
	require.NoError(t, err)

	m := snap.Results["baseline"].Metrics
	assert.InDelta(t, 60.0, m.HorizonSec, 1e-6)
	assert.Equal(t, 1, m.IncidentsOpen, "recovery past the one minute horizon")
	assert.Equal(t, 100.0, m.AvailabilityPct)
}
