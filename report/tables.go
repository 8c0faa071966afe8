package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"cyberres/core"
)

// ResultColumns is the header of results.csv
var ResultColumns = []string{
	"policy",
	"availability_pct",
	"total_downtime_hr",
	"mean_mttd_min",
	"mean_mttr_min",
	"incidents_total",
	"incidents_open",
	"incidents_critical",
	"incidents_high",
	"incidents_medium",
	"incidents_low",
	"by_credential_attack",
	"by_availability_attack",
	"by_integrity_attack",
	"by_outage",
	"horizon_sec",
	"rejected_events",
}

// IncidentColumns is the header of incidents.csv
var IncidentColumns = []string{
	"incident_id",
	"policy",
	"threat_type",
	"severity",
	"status",
	"component",
	"event_count",
	"start_ts",
	"detect_ts",
	"recover_ts",
	"mttd_sec",
	"mttr_sec",
	"impact_score",
	"description",
	"response_action",
	"scenario_tag",
	"alert_ids",
}

// WriteResultsCSV renders one row per policy
func WriteResultsCSV(w io.Writer, rows []core.Metrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultColumns); err != nil {
		return err
	}
	for _, m := range rows {
		rec := []string{
			m.Policy,
			fixed(m.AvailabilityPct, 4),
			fixed(m.TotalDowntimeSec/3600, 4),
			fixed(m.MeanMTTDSec/60, 2),
			fixed(m.MeanMTTRSec/60, 2),
			strconv.Itoa(m.IncidentsTotal),
			strconv.Itoa(m.IncidentsOpen),
		}
		for _, s := range core.AllSeverities {
			rec = append(rec, strconv.Itoa(m.BySeverity[s]))
		}
		for _, t := range core.AllThreatTypes {
			rec = append(rec, strconv.Itoa(m.ByThreat[t]))
		}
		rec = append(rec, fixed(m.HorizonSec, 0), strconv.Itoa(m.RejectedEvents))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteIncidentsCSV renders one row per incident. Open incidents leave the
// timing columns empty.
func WriteIncidentsCSV(w io.Writer, incidents []core.Incident) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(IncidentColumns); err != nil {
		return err
	}
	for i := range incidents {
		inc := &incidents[i]
		rec := []string{
			inc.IncidentID,
			inc.Policy,
			string(inc.ThreatType),
			string(inc.Severity),
			string(inc.Status),
			inc.Component,
			strconv.Itoa(inc.EventCount),
			timestamp(&inc.StartTs),
			timestamp(inc.DetectTs),
			timestamp(inc.RecoverTs),
			optional(inc.MTTDSec, 2),
			optional(inc.MTTRSec, 2),
			fixed(inc.ImpactScore, 4),
			inc.Description,
			inc.ResponseAction,
			inc.ScenarioTag,
			strings.Join(inc.AlertIDs, ";"),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAlertsJSONL renders one JSON object per alert
func WriteAlertsJSONL(w io.Writer, alerts []core.Alert) error {
	enc := json.NewEncoder(w)
	for i := range alerts {
		if err := enc.Encode(&alerts[i]); err != nil {
			return err
		}
	}
	return nil
}

func fixed(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

func optional(v *float64, places int) string {
	if v == nil {
		return ""
	}
	return fixed(*v, places)
}

// timestampLayout keeps milliseconds so detect and recover times agree with
// the two-decimal mttd and mttr columns
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}
