package core

// Metrics is the resilience summary of one policy over one horizon. It is
// replaced wholesale on every evaluation, never updated in place.
type Metrics struct {
	Policy           string             `json:"policy"`
	HorizonSec       float64            `json:"horizon_sec"`
	AvailabilityPct  float64            `json:"availability_pct"`
	TotalDowntimeSec float64            `json:"total_downtime_sec"`
	MeanMTTDSec      float64            `json:"mean_mttd_sec"`
	MeanMTTRSec      float64            `json:"mean_mttr_sec"`
	IncidentsTotal   int                `json:"incidents_total"`
	IncidentsOpen    int                `json:"incidents_open"`
	BySeverity       map[Severity]int   `json:"by_severity"`
	ByThreat         map[ThreatType]int `json:"by_threat"`
	RejectedEvents   int                `json:"rejected_events"`
}
