package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cyberres/core"
	"cyberres/util/goroutine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_RecomputesOnAppend(t *testing.T) {
	goroutine.AssertNoLeaks(t)
	dir := t.TempDir()
	input := writeEvents(t, dir, bruteForceCSV(0, 2, 4))
	e := newTestEvaluator(t, input, filepath.Join(dir, "out"), Settings{PollInterval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx) }()

	require.Eventually(t, func() bool {
		snap := e.Latest()
		return snap != nil && snap.Events == 3
	}, 5*time.Second, 20*time.Millisecond, "existing file is pre-loaded")
	assert.Empty(t, e.Latest().Results["baseline"].Alerts)

	appendEvents(t, input, csvEvent(6, core.EventAuthFailure)+csvEvent(8, core.EventAuthFailure))
	require.Eventually(t, func() bool {
		snap := e.Latest()
		return snap != nil && snap.Events == 5
	}, 5*time.Second, 20*time.Millisecond)

	snap := e.Latest()
	assert.Equal(t, ModeWatch, snap.Mode)
	require.Len(t, snap.Results["baseline"].Incidents, 1)
	assert.True(t, snap.Results["baseline"].Incidents[0].IsOpen(), "the stream may still extend the incident")
	assert.Equal(t, 1, snap.Results["baseline"].Metrics.IncidentsOpen)

	appendEvents(t, input, csvEvent(400, core.EventAuthSuccess))
	require.Eventually(t, func() bool {
		snap := e.Latest()
		return snap != nil && snap.Events == 6
	}, 5*time.Second, 20*time.Millisecond)

	inc := e.Latest().Results["baseline"].Incidents[0]
	assert.False(t, inc.IsOpen(), "watermark moved past the correlation gap")
	require.NotNil(t, inc.MTTDSec)
	assert.Equal(t, 30.0, *inc.MTTDSec)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestWatch_FileCreatedLater(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "events.csv")
	e := newTestEvaluator(t, input, filepath.Join(dir, "out"), Settings{PollInterval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, e.Latest())

	appendEvents(t, input, bruteForceCSV(0, 1))
	require.Eventually(t, func() bool {
		snap := e.Latest()
		return snap != nil && snap.Events == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_TrimKeepsIncidentNumbering(t *testing.T) {
	dir := t.TempDir()
	input := writeEvents(t, dir, bruteForceCSV(0, 2, 4, 6, 8, 700, 702, 704, 706, 708))
	// 0.01 days is 864s of history
	e := newTestEvaluator(t, input, filepath.Join(dir, "out"), Settings{
		PollInterval: 50 * time.Millisecond,
		HorizonDays:  0.01,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Watch(ctx) }()

	require.Eventually(t, func() bool {
		snap := e.Latest()
		return snap != nil && snap.Events == 10
	}, 5*time.Second, 20*time.Millisecond)
	incidents := e.Latest().Results["baseline"].Incidents
	require.Len(t, incidents, 2)
	assert.Equal(t, "INC-002", incidents[1].IncidentID)
	assert.True(t, incidents[1].IsOpen())

	// Watermark 1000s drops the first burst
	appendEvents(t, input, csvEvent(1000, core.EventAuthSuccess))
	require.Eventually(t, func() bool {
		snap := e.Latest()
		return snap != nil && snap.Events == 6
	}, 5*time.Second, 20*time.Millisecond)

	for _, name := range []string{"baseline", "hardened"} {
		incidents := e.Latest().Results[name].Incidents
		require.Len(t, incidents, 1, name)
		assert.Equal(t, "INC-002", incidents[0].IncidentID, name)
		assert.Equal(t, testEpoch.Add(700*time.Second), incidents[0].StartTs, name)
		assert.False(t, incidents[0].IsOpen(), name)
	}
}
