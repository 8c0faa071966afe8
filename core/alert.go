package core

import (
	"fmt"
	"time"
)

// Alert is the output of one rule match over a window of events. Alerts are
// immutable once emitted.
type Alert struct {
	AlertID        string     `json:"alert_id"`
	RuleID         string     `json:"rule_id"`
	RuleName       string     `json:"rule_name"`
	ThreatType     ThreatType `json:"threat_type"`
	EventIDs       []string   `json:"event_ids"`
	Timestamp      time.Time  `json:"timestamp"`
	StartTs        time.Time  `json:"start_ts"`
	Source         string     `json:"source"`
	Component      Component  `json:"component"`
	Severity       Severity   `json:"severity"`
	Confidence     float64    `json:"confidence"`
	Description    string     `json:"description"`
	Policy         string     `json:"policy"`
	CorrelationIDs []string   `json:"correlation_ids,omitempty"`
	ScenarioTag    string     `json:"scenario_tag,omitempty"`
	ResponseHint   string     `json:"response_hint,omitempty"`

	// FirstSeq is the sequence number of the earliest contributing event
	FirstSeq int `json:"-"`
}

// FormatAlertID renders an alert ordinal
func FormatAlertID(n int) string {
	return fmt.Sprintf("ALR-%04d", n)
}

// EventCount returns the number of contributing events
func (a *Alert) EventCount() int {
	return len(a.EventIDs)
}

// CheckContract verifies the invariants the correlator relies on
func (a *Alert) CheckContract() error {
	if len(a.EventIDs) == 0 {
		return fmt.Errorf("%w: alert %s has no events", ErrContractViolation, a.AlertID)
	}
	if a.StartTs.After(a.Timestamp) {
		return fmt.Errorf("%w: alert %s starts after its trigger", ErrContractViolation, a.AlertID)
	}
	return nil
}
