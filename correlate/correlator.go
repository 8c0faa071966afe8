package correlate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cyberres/core"
	"cyberres/metrics"

	"go.uber.org/zap"
)

// DefaultGap is the implicit grouping distance between consecutive alerts
const DefaultGap = 120 * time.Second

// Cutoff bounds what the correlator may treat as final. Zero values disable
// the corresponding check.
type Cutoff struct {
	// Watermark is the newest event time seen by a streaming pass. Groups whose
	// last alert is within the gap of it may still grow and stay open.
	Watermark time.Time
	// HorizonEnd truncates timing: incidents recovering after it stay open
	HorizonEnd time.Time
	// OrdinalBase is the number of incidents earlier passes numbered that are
	// no longer in the input. Numbering and timing continue after them.
	OrdinalBase int
}

// Correlator groups alerts into incidents and assigns their timing
type Correlator struct {
	timing TimingModel
	gap    time.Duration
	logger *zap.SugaredLogger
}

// Option configures a Correlator
type Option func(*Correlator)

// WithGap sets the implicit grouping gap
func WithGap(gap time.Duration) Option {
	return func(c *Correlator) {
		if gap >= 0 {
			c.gap = gap
		}
	}
}

// NewCorrelator creates a correlator using the given timing model
func NewCorrelator(timing TimingModel, logger *zap.SugaredLogger, opts ...Option) *Correlator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Correlator{
		timing: timing,
		gap:    DefaultGap,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Gap returns the implicit grouping gap
func (c *Correlator) Gap() time.Duration {
	return c.gap
}

// Correlate groups alerts raised under one policy into incidents ordered by
// start time, ties broken by the sequence of their first event. An alert that
// breaks the detector contract aborts the whole pass.
func (c *Correlator) Correlate(alerts []core.Alert, mods core.Modifiers, policy string, cutoff Cutoff) ([]core.Incident, error) {
	for i := range alerts {
		if err := alerts[i].CheckContract(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", policy, err)
		}
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	groups := group(alerts, c.gap)

	drafts := make([]draft, len(groups))
	for i, members := range groups {
		drafts[i] = newDraft(alerts, members)
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		a, b := drafts[i], drafts[j]
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		return a.firstSeq < b.firstSeq
	})

	incidents := make([]core.Incident, len(drafts))
	for i := range drafts {
		inc := c.build(&drafts[i], cutoff.OrdinalBase+i+1, mods, policy, cutoff)
		if err := inc.CheckContract(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", policy, err)
		}
		incidents[i] = inc
		metrics.IncidentsCorrelated.WithLabelValues(policy, string(inc.Severity)).Inc()
	}

	c.logger.Debugw("Correlation pass complete",
		"policy", policy,
		"alerts", len(alerts),
		"incidents", len(incidents))
	return incidents, nil
}

// draft is an alert group before ordinal and timing are assigned
type draft struct {
	members  []*core.Alert
	start    time.Time
	last     time.Time
	firstSeq int
}

func newDraft(alerts []core.Alert, indices []int) draft {
	sorted := append([]int(nil), indices...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := &alerts[sorted[i]], &alerts[sorted[j]]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return sorted[i] < sorted[j]
	})

	d := draft{members: make([]*core.Alert, len(sorted))}
	for i, idx := range sorted {
		d.members[i] = &alerts[idx]
	}

	d.start = d.members[0].StartTs
	d.firstSeq = d.members[0].FirstSeq
	for _, a := range d.members {
		if a.StartTs.Before(d.start) || (a.StartTs.Equal(d.start) && a.FirstSeq < d.firstSeq) {
			d.start = a.StartTs
			d.firstSeq = a.FirstSeq
		}
		if a.Timestamp.After(d.last) {
			d.last = a.Timestamp
		}
	}
	return d
}

func (c *Correlator) build(d *draft, ordinal int, mods core.Modifiers, policy string, cutoff Cutoff) core.Incident {
	lead := d.members[0]
	threat := lead.ThreatType
	mod := mods.For(threat)

	alertIDs := make([]string, len(d.members))
	severities := make([]core.Severity, len(d.members))
	components := make(map[string]struct{})
	descriptions := make(map[string]struct{})
	events := make(map[string]struct{})
	scenario := ""
	confSum := 0.0
	for i, a := range d.members {
		alertIDs[i] = a.AlertID
		severities[i] = a.Severity
		components[string(a.Component)] = struct{}{}
		descriptions[a.Description] = struct{}{}
		for _, id := range a.EventIDs {
			events[id] = struct{}{}
		}
		if scenario == "" {
			scenario = a.ScenarioTag
		}
		confSum += a.Confidence
	}
	avgConf := confSum / float64(len(d.members))

	impact := c.timing.impact(threat) * avgConf * mod.ImpactMultiplier
	if impact > 1 {
		impact = 1
	}
	if impact < 0 {
		impact = 0
	}

	inc := core.Incident{
		IncidentID:     core.FormatIncidentID(ordinal),
		AlertIDs:       alertIDs,
		ThreatType:     threat,
		Severity:       core.MaxSeverity(severities...),
		Component:      joinSorted(components, ";"),
		EventCount:     len(events),
		StartTs:        d.start,
		ImpactScore:    round(impact, 4),
		Description:    joinSorted(descriptions, " | "),
		ResponseAction: c.timing.response(threat),
		Policy:         policy,
		ScenarioTag:    scenario,
		Status:         core.IncidentClosed,
	}

	if !cutoff.Watermark.IsZero() && d.last.Add(c.gap).After(cutoff.Watermark) {
		inc.Status = core.IncidentOpen
		return inc
	}

	baseMTTD, baseMTTR := c.timing.sample(policy, ordinal, threat)
	mttd := round(baseMTTD*mod.MTTDMultiplier, 2)
	mttr := round(baseMTTR*mod.MTTRMultiplier, 2)
	detect := d.start.Add(seconds(mttd))
	recovered := detect.Add(seconds(mttr))

	if !cutoff.HorizonEnd.IsZero() && recovered.After(cutoff.HorizonEnd) {
		inc.Status = core.IncidentOpen
		return inc
	}

	inc.DetectTs = &detect
	inc.RecoverTs = &recovered
	inc.MTTDSec = &mttd
	inc.MTTRSec = &mttr
	return inc
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func joinSorted(set map[string]struct{}, sep string) string {
	out := make([]string, 0, len(set))
	for s := range set {
		if s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return strings.Join(out, sep)
}
