package correlate

import (
	"testing"
	"time"

	"cyberres/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var epoch = time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return epoch.Add(time.Duration(sec * float64(time.Second)))
}

type alertOpt func(a *core.Alert)

func corr(ids ...string) alertOpt { return func(a *core.Alert) { a.CorrelationIDs = ids } }
func source(s string) alertOpt { return func(a *core.Alert) { a.Source = s } }
func threat(t core.ThreatType) alertOpt { return func(a *core.Alert) { a.ThreatType = t } }

// makeAlerts builds alerts firing at the given offsets, one event each at the same instant
func makeAlerts(offsets []float64, opts ...alertOpt) []core.Alert {
	alerts := make([]core.Alert, len(offsets))
	for i, off := range offsets {
		alerts[i] = core.Alert{
			AlertID:     core.FormatAlertID(i + 1),
			RuleID:      "RULE-BF-001",
			ThreatType:  core.ThreatCredentialAttack,
			EventIDs:    []string{core.FormatEventID(i + 1)},
			Timestamp:   at(off),
			StartTs:     at(off),
			Source:      "gateway-01",
			Component:   core.ComponentAPI,
			Severity:    core.SeverityHigh,
			Confidence:  0.85,
			Description: "brute force",
			FirstSeq:    i + 1,
		}
		for _, opt := range opts {
			opt(&alerts[i])
		}
	}
	return alerts
}

func fixedTiming() TimingModel {
	m := DefaultTimingModel()
	m.Jitter = 0
	return m
}

func newTestCorrelator(t *testing.T, m TimingModel) *Correlator {
	return NewCorrelator(m, zaptest.NewLogger(t).Sugar())
}

func TestCorrelate_ExplicitGroupingIgnoresGap(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	alerts := makeAlerts([]float64{10, 500}, corr("COR-1"))

	incidents, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, []string{"ALR-0001", "ALR-0002"}, incidents[0].AlertIDs)
	assert.Equal(t, at(10), incidents[0].StartTs)
}

func TestCorrelate_ImplicitGroupingBreaksOnGap(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())

	incidents, err := c.Correlate(makeAlerts([]float64{10, 140}), nil, "baseline", Cutoff{})
	require.NoError(t, err)
	assert.Len(t, incidents, 2, "130s apart exceeds the 120s gap")

	incidents, err = c.Correlate(makeAlerts([]float64{10, 130}), nil, "baseline", Cutoff{})
	require.NoError(t, err)
	assert.Len(t, incidents, 1, "exactly on the gap still joins")
}

func TestCorrelate_ChainedAdjacency(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())

	incidents, err := c.Correlate(makeAlerts([]float64{0, 100, 200, 300}), nil, "baseline", Cutoff{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Len(t, incidents[0].AlertIDs, 4)
}

func TestCorrelate_ImplicitKeyedByThreatAndSource(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	alerts := append(makeAlerts([]float64{0}), makeAlerts([]float64{5}, source("gateway-02"))...)
	alerts = append(alerts, makeAlerts([]float64{10}, threat(core.ThreatOutage))...)
	for i := range alerts {
		alerts[i].AlertID = core.FormatAlertID(i + 1)
	}

	incidents, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	assert.Len(t, incidents, 3)
}

func TestCorrelate_ExplicitIsTransitive(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	alerts := makeAlerts([]float64{0, 1000, 2000})
	alerts[0].CorrelationIDs = []string{"COR-1"}
	alerts[1].CorrelationIDs = []string{"COR-1", "COR-2"}
	alerts[2].CorrelationIDs = []string{"COR-2"}

	incidents, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Len(t, incidents[0].AlertIDs, 3)
}

func TestCorrelate_ExplicitAlertsNeverJoinImplicitClusters(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	alerts := makeAlerts([]float64{0, 10})
	alerts[0].CorrelationIDs = []string{"COR-9"}

	incidents, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	assert.Len(t, incidents, 2)
}

func TestCorrelate_IncidentFields(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	alerts := makeAlerts([]float64{0, 30}, corr("COR-1"))
	alerts[0].Severity = core.SeverityMedium
	alerts[1].Severity = core.SeverityCritical
	alerts[1].Confidence = 0.95
	alerts[1].Component = core.ComponentEdge
	alerts[1].Description = "another view"
	alerts[1].EventIDs = []string{"EVT-000001", "EVT-000002"}
	alerts[1].StartTs = at(0)
	alerts[1].ScenarioTag = "brute_force"

	incidents, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	inc := incidents[0]

	assert.Equal(t, "INC-001", inc.IncidentID)
	assert.Equal(t, core.SeverityCritical, inc.Severity)
	assert.Equal(t, "api;edge", inc.Component)
	assert.Equal(t, 2, inc.EventCount, "shared events are counted once")
	assert.Equal(t, "another view | brute force", inc.Description)
	assert.Equal(t, "block_ip", inc.ResponseAction)
	assert.Equal(t, "brute_force", inc.ScenarioTag)
	assert.Equal(t, core.IncidentClosed, inc.Status)
	// 0.6 * avg(0.85, 0.95) * 1.0
	assert.InDelta(t, 0.54, inc.ImpactScore, 1e-9)

	require.NotNil(t, inc.MTTDSec)
	require.NotNil(t, inc.MTTRSec)
	assert.Equal(t, 30.0, *inc.MTTDSec)
	assert.Equal(t, 120.0, *inc.MTTRSec)
	assert.Equal(t, at(30), *inc.DetectTs)
	assert.Equal(t, at(150), *inc.RecoverTs)
}

func TestCorrelate_PolicyMultipliers(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	mod := core.BaselineModifier()
	mod.MTTDMultiplier = 0.5
	mod.MTTRMultiplier = 2
	mod.ImpactMultiplier = 10
	mods := core.Modifiers{core.ThreatCredentialAttack: mod}

	incidents, err := c.Correlate(makeAlerts([]float64{0}), mods, "hardened", Cutoff{})
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, 15.0, *incidents[0].MTTDSec)
	assert.Equal(t, 240.0, *incidents[0].MTTRSec)
	assert.Equal(t, 1.0, incidents[0].ImpactScore, "impact is clamped to 1")
	assert.Equal(t, "hardened", incidents[0].Policy)
}

func TestCorrelate_OrderedByStart(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	alerts := makeAlerts([]float64{500, 600, 1000})
	// the third alert's window started before everything else
	alerts[2].StartTs = at(100)
	alerts[2].FirstSeq = 0
	alerts[2].Source = "gateway-09"

	incidents, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Equal(t, []string{"ALR-0003"}, incidents[0].AlertIDs)
	assert.Equal(t, "INC-001", incidents[0].IncidentID)
	assert.True(t, !incidents[1].StartTs.Before(incidents[0].StartTs))
}

func TestCorrelate_EmptyAlertIsContractViolation(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	alerts := makeAlerts([]float64{0})
	alerts[0].EventIDs = nil

	_, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestCorrelate_NoAlerts(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	incidents, err := c.Correlate(nil, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	assert.Empty(t, incidents)
}

func TestCorrelate_WatermarkKeepsGrowingGroupOpen(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())
	alerts := makeAlerts([]float64{0, 500})
	alerts[1].Source = "gateway-02"

	incidents, err := c.Correlate(alerts, nil, "baseline", Cutoff{Watermark: at(550)})
	require.NoError(t, err)
	require.Len(t, incidents, 2)

	assert.Equal(t, core.IncidentClosed, incidents[0].Status)
	assert.NotNil(t, incidents[0].DetectTs)

	assert.Equal(t, core.IncidentOpen, incidents[1].Status)
	assert.Nil(t, incidents[1].DetectTs)
	assert.Nil(t, incidents[1].RecoverTs)
	assert.Nil(t, incidents[1].MTTDSec)
	assert.Nil(t, incidents[1].MTTRSec)
}

func TestCorrelate_HorizonTruncation(t *testing.T) {
	c := newTestCorrelator(t, fixedTiming())

	incidents, err := c.Correlate(makeAlerts([]float64{0, 3500}, source("a")), nil, "baseline", Cutoff{HorizonEnd: at(3600)})
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Equal(t, core.IncidentClosed, incidents[0].Status)
	assert.Equal(t, core.IncidentOpen, incidents[1].Status, "recovery at 3650s falls past the horizon")
}

func TestCorrelate_SeededTimingDeterministic(t *testing.T) {
	m := DefaultTimingModel()
	m.Seed = 42
	c := newTestCorrelator(t, m)
	alerts := makeAlerts([]float64{0, 1000, 2000, 3000})

	first, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	second, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for _, inc := range first {
		assert.GreaterOrEqual(t, *inc.MTTDSec, 30*0.8)
		assert.LessOrEqual(t, *inc.MTTDSec, 30*1.2)
		assert.GreaterOrEqual(t, *inc.MTTRSec, 120*0.8)
		assert.LessOrEqual(t, *inc.MTTRSec, 120*1.2)
	}

	m.Seed = 43
	other, err := newTestCorrelator(t, m).Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	assert.NotEqual(t, *first[0].MTTDSec, *other[0].MTTDSec)
}

func TestCorrelate_TimingScopedToOrdinal(t *testing.T) {
	m := DefaultTimingModel()
	m.Seed = 7
	c := newTestCorrelator(t, m)

	short, err := c.Correlate(makeAlerts([]float64{0, 1000}), nil, "baseline", Cutoff{})
	require.NoError(t, err)
	long, err := c.Correlate(makeAlerts([]float64{0, 1000, 2000, 3000}), nil, "baseline", Cutoff{})
	require.NoError(t, err)

	assert.Equal(t, *short[0].MTTDSec, *long[0].MTTDSec)
	assert.Equal(t, *short[1].MTTRSec, *long[1].MTTRSec)
}

func TestCorrelate_OrdinalBaseKeepsIdentityAfterTrim(t *testing.T) {
	m := DefaultTimingModel()
	m.Seed = 42
	c := newTestCorrelator(t, m)
	alerts := makeAlerts([]float64{0, 3600})

	full, err := c.Correlate(alerts, nil, "baseline", Cutoff{})
	require.NoError(t, err)
	require.Len(t, full, 2)

	trimmed, err := c.Correlate(alerts[1:], nil, "baseline", Cutoff{OrdinalBase: 1})
	require.NoError(t, err)
	require.Len(t, trimmed, 1)

	assert.Equal(t, full[1].IncidentID, trimmed[0].IncidentID)
	assert.Equal(t, "INC-002", trimmed[0].IncidentID)
	assert.Equal(t, *full[1].MTTDSec, *trimmed[0].MTTDSec)
	assert.Equal(t, *full[1].MTTRSec, *trimmed[0].MTTRSec)
}

func TestTimingModel_Validate(t *testing.T) {
	require.NoError(t, DefaultTimingModel().Validate())

	m := DefaultTimingModel()
	m.Jitter = 1
	assert.ErrorIs(t, m.Validate(), core.ErrInvalidConfig)

	m = DefaultTimingModel()
	m.Base[core.ThreatOutage] = BaseTiming{MTTDSec: 0, MTTRSec: 10}
	assert.ErrorIs(t, m.Validate(), core.ErrInvalidConfig)

	m = DefaultTimingModel()
	m.Impact["phishing"] = 0.5
	assert.ErrorIs(t, m.Validate(), core.ErrInvalidConfig)
}
