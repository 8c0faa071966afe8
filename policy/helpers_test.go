package policy

import (
	"fmt"
	"time"

	"cyberres/core"
	"cyberres/correlate"
	"cyberres/detect"
)

var testEpoch = time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)

// authFailures returns n auth_failure events from one ip, spaced step seconds apart
func authFailures(n int, step float64) []*core.Event {
	events := make([]*core.Event, n)
	for i := range events {
		events[i] = &core.Event{
			Seq:       i + 1,
			Timestamp: testEpoch.Add(time.Duration(float64(i) * step * float64(time.Second))),
			Source:    "gateway-01",
			Component: core.ComponentAPI,
			EventType: core.EventAuthFailure,
			IP:        "203.0.113.7",
			Key:       "login",
			Value:     "failed",
			Severity:  core.SeverityLow,
		}
	}
	return events
}

func bruteForceRule() core.Rule {
	return core.Rule{
		ID:           "RULE-BF-001",
		Name:         "Brute force",
		ThreatType:   core.ThreatCredentialAttack,
		Match:        core.Predicate{EventType: core.EventAuthFailure, Kind: core.PredicateEventType},
		GroupBy:      []string{"ip", "source"},
		WindowSec:    60,
		Threshold:    5,
		Severity:     core.SeverityHigh,
		Confidence:   0.85,
		ResponseHint: "block_ip",
	}
}

func uniformPolicy(name string, mttd, mttr float64) core.Policy {
	mods := make(core.Modifiers, len(core.AllThreatTypes))
	for _, t := range core.AllThreatTypes {
		m := core.BaselineModifier()
		m.MTTDMultiplier = mttd
		m.MTTRMultiplier = mttr
		mods[t] = m
	}
	return core.Policy{Name: name, Modifiers: mods}
}

// stubDetector wraps a real detector and misbehaves for selected policies
type stubDetector struct {
	inner   AlertDetector
	failFor string
	panicOn string
}

func (s *stubDetector) Detect(events []*core.Event, mods core.Modifiers, policy string) ([]core.Alert, detect.Stats, error) {
	switch policy {
	case s.failFor:
		return nil, detect.Stats{}, fmt.Errorf("rule RULE-X: %w", core.ErrContractViolation)
	case s.panicOn:
		panic("detector exploded")
	}
	return s.inner.Detect(events, mods, policy)
}

func fixedTiming() correlate.TimingModel {
	m := correlate.DefaultTimingModel()
	m.Jitter = 0
	return m
}
