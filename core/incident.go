package core

import (
	"fmt"
	"time"
)

// Incident is a correlated group of alerts believed to represent one real-world
// occurrence. Timing fields are nil while the incident is open.
type Incident struct {
	IncidentID     string         `json:"incident_id"`
	AlertIDs       []string       `json:"alert_ids"`
	ThreatType     ThreatType     `json:"threat_type"`
	Severity       Severity       `json:"severity"`
	Component      string         `json:"component"`
	EventCount     int            `json:"event_count"`
	StartTs        time.Time      `json:"start_ts"`
	DetectTs       *time.Time     `json:"detect_ts,omitempty"`
	RecoverTs      *time.Time     `json:"recover_ts,omitempty"`
	MTTDSec        *float64       `json:"mttd_sec,omitempty"`
	MTTRSec        *float64       `json:"mttr_sec,omitempty"`
	ImpactScore    float64        `json:"impact_score"`
	Description    string         `json:"description"`
	ResponseAction string         `json:"response_action"`
	Policy         string         `json:"policy"`
	ScenarioTag    string         `json:"scenario_tag,omitempty"`
	Status         IncidentStatus `json:"status"`
}

// FormatIncidentID renders an incident ordinal
func FormatIncidentID(n int) string {
	return fmt.Sprintf("INC-%03d", n)
}

// IsOpen reports whether timing is unresolved
func (i *Incident) IsOpen() bool {
	return i.Status == IncidentOpen
}

// HasDowntimeWindow reports whether both detect and recover are known
func (i *Incident) HasDowntimeWindow() bool {
	return i.DetectTs != nil && i.RecoverTs != nil
}

// CheckContract verifies start <= detect <= recover
func (i *Incident) CheckContract() error {
	if len(i.AlertIDs) == 0 {
		return fmt.Errorf("%w: incident %s has no alerts", ErrContractViolation, i.IncidentID)
	}
	if i.DetectTs != nil && i.DetectTs.Before(i.StartTs) {
		return fmt.Errorf("%w: incident %s detect_ts before start_ts", ErrContractViolation, i.IncidentID)
	}
	if i.DetectTs != nil && i.RecoverTs != nil && i.RecoverTs.Before(*i.DetectTs) {
		return fmt.Errorf("%w: incident %s recover_ts before detect_ts", ErrContractViolation, i.IncidentID)
	}
	return nil
}
