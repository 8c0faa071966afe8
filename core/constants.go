package core

// Severity represents the severity of an event, alert or incident
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// String returns the string representation
func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank orders severities low < medium < high < critical. Unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is as severe as other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// MaxSeverity returns the most severe of the given values
func MaxSeverity(values ...Severity) Severity {
	var max Severity
	for _, v := range values {
		if max == "" || v.Rank() > max.Rank() {
			max = v
		}
	}
	return max
}

// AllSeverities lists severities from most to least severe
var AllSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ThreatType is the coarse classification linking rules, incidents and policy modifiers
type ThreatType string

const (
	ThreatCredentialAttack   ThreatType = "credential_attack"
	ThreatAvailabilityAttack ThreatType = "availability_attack"
	ThreatIntegrityAttack    ThreatType = "integrity_attack"
	ThreatOutage             ThreatType = "outage"
)

// String returns the string representation
func (t ThreatType) String() string {
	return string(t)
}

// IsValid checks if the threat type is valid
func (t ThreatType) IsValid() bool {
	switch t {
	case ThreatCredentialAttack, ThreatAvailabilityAttack, ThreatIntegrityAttack, ThreatOutage:
		return true
	default:
		return false
	}
}

// AllThreatTypes lists every threat type in report order
var AllThreatTypes = []ThreatType{
	ThreatCredentialAttack,
	ThreatAvailabilityAttack,
	ThreatIntegrityAttack,
	ThreatOutage,
}

// Component identifies the part of the monitored infrastructure an event came from
type Component string

const (
	ComponentEdge      Component = "edge"
	ComponentAPI       Component = "api"
	ComponentDB        Component = "db"
	ComponentUI        Component = "ui"
	ComponentCollector Component = "collector"
	ComponentInverter  Component = "inverter"
	ComponentNetwork   Component = "network"
)

// IsValid checks if the component is valid
func (c Component) IsValid() bool {
	switch c {
	case ComponentEdge, ComponentAPI, ComponentDB, ComponentUI,
		ComponentCollector, ComponentInverter, ComponentNetwork:
		return true
	default:
		return false
	}
}

// Well-known event types. The set is open: producers may emit others and rules
// simply never match them.
const (
	EventTelemetryRead = "telemetry_read"
	EventAuthFailure   = "auth_failure"
	EventAuthSuccess   = "auth_success"
	EventHTTPRequest   = "http_request"
	EventRateExceeded  = "rate_exceeded"
	EventCmdExec       = "cmd_exec"
	EventServiceStatus = "service_status"
	EventDBError       = "db_error"
	EventPortStatus    = "port_status"
	EventPowerOutput   = "power_output"
	EventRawLog        = "raw_log"
)

// IncidentStatus tells the metrics stage whether an incident's timing is resolved
type IncidentStatus string

const (
	// IncidentClosed means the alert group is final and timing is frozen
	IncidentClosed IncidentStatus = "closed"
	// IncidentOpen means the group may still grow or timing was truncated
	IncidentOpen IncidentStatus = "open"
)
