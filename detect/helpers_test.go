package detect

import (
	"time"

	"cyberres/core"
)

var testEpoch = time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)

type eventOpt func(e *core.Event)

func withIP(ip string) eventOpt { return func(e *core.Event) { e.IP = ip } }
func withSource(s string) eventOpt { return func(e *core.Event) { e.Source = s } }
func withKV(k, v string) eventOpt { return func(e *core.Event) { e.Key, e.Value = k, v } }
func withActor(a string) eventOpt { return func(e *core.Event) { e.Actor = a } }
func withCorrelation(id string) eventOpt { return func(e *core.Event) { e.CorrelationID = id } }
func withSeverity(s core.Severity) eventOpt { return func(e *core.Event) { e.Severity = s } }

// buildEvents numbers events in slice order the way ingestion does
func buildEvents(events ...*core.Event) []*core.Event {
	for i, e := range events {
		e.Seq = i + 1
	}
	return events
}

func ev(offsetSec float64, eventType string, opts ...eventOpt) *core.Event {
	e := &core.Event{
		Timestamp: testEpoch.Add(time.Duration(offsetSec * float64(time.Second))),
		Source:    "gateway-01",
		Component: core.ComponentAPI,
		EventType: eventType,
		Severity:  core.SeverityLow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
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

func floatPtr(v float64) *float64 { return &v }
