package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cyberres/core"
	"cyberres/policy"
	"cyberres/report"
)

// runSummary is the --json form of an evaluation
type runSummary struct {
	RunID    string            `json:"run_id"`
	Mode     string            `json:"mode"`
	Cycle    int               `json:"cycle,omitempty"`
	Input    string            `json:"input"`
	OutDir   string            `json:"out_dir"`
	Events   int               `json:"events"`
	Late     int               `json:"late_events"`
	Rejected int               `json:"rejected_events"`
	Metrics  []core.Metrics    `json:"metrics"`
	Rankings []policy.Ranking  `json:"rankings"`
	Failures map[string]string `json:"failures,omitempty"`
}

func newRunSummary(s *report.Snapshot, outDir string) runSummary {
	summary := runSummary{
		RunID:    s.RunID,
		Mode:     s.Mode,
		Cycle:    s.Cycle,
		Input:    s.Input,
		OutDir:   outDir,
		Events:   s.Events,
		Late:     s.Late,
		Rejected: s.Rejected(),
		Metrics:  s.Metrics(),
		Rankings: s.Rankings,
	}
	if f := s.Failures(); len(f) > 0 {
		summary.Failures = f
	}
	return summary
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// renderResultsTable displays per-policy metrics of a snapshot
func renderResultsTable(w io.Writer, s *report.Snapshot) {
	headerColor.Fprintln(w, "RESULTS")
	headerColor.Fprintln(w, strings.Repeat("=", 96))
	fmt.Fprintf(w, "%-16s %-10s %-12s %-12s %-12s %-10s %-8s %-8s\n",
		"Policy", "Avail %", "Downtime h", "MTTD min", "MTTR min", "Incidents", "Open", "Alerts")
	fmt.Fprintln(w, strings.Repeat("-", 96))

	failures := s.Failures()
	for _, name := range s.Policies {
		if msg, failed := failures[name]; failed {
			errorColor.Fprintf(w, "%-16s FAILED: %s\n", truncate(name, 16), msg)
			continue
		}
		r, ok := s.Results[name]
		if !ok {
			continue
		}
		m := r.Metrics
		fmt.Fprintf(w, "%-16s %s %-12.2f %-12.2f %-12.2f %-10d %-8d %-8d\n",
			truncate(name, 16),
			formatAvailability(m.AvailabilityPct),
			m.TotalDowntimeSec/3600,
			m.MeanMTTDSec/60,
			m.MeanMTTRSec/60,
			m.IncidentsTotal,
			m.IncidentsOpen,
			len(r.Alerts))
	}
	fmt.Fprintln(w, strings.Repeat("=", 96))
	fmt.Fprintf(w, "Events: %d   Late: %d   Rejected: %d\n", s.Events, s.Late, s.Rejected())
}

// renderRankingTable displays policies in effectiveness order
func renderRankingTable(w io.Writer, rankings []policy.Ranking) {
	if len(rankings) == 0 {
		warningColor.Fprintln(w, "No policies to rank")
		return
	}
	headerColor.Fprintln(w, "RANKING")
	headerColor.Fprintln(w, strings.Repeat("=", 96))
	fmt.Fprintf(w, "%-4s %-16s %-14s %-10s %-10s %s\n", "#", "Policy", "Effectiveness", "MTTD x", "MTTR x", "Controls")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for i, r := range rankings {
		controls := strings.Join(r.EnabledControls, ", ")
		if controls == "" {
			controls = "-"
		}
		fmt.Fprintf(w, "%-4d %-16s %-14.3f %-10.3f %-10.3f %s\n",
			i+1, truncate(r.Policy, 16), r.Effectiveness, r.AvgMTTDMult, r.AvgMTTRMult, controls)
	}
	fmt.Fprintln(w, strings.Repeat("=", 96))
}

// formatAvailability colors availability by how much service was lost
func formatAvailability(pct float64) string {
	text := fmt.Sprintf("%-10.3f", pct)
	switch {
	case pct >= 99.9:
		return successColor.Sprint(text)
	case pct >= 99:
		return warningColor.Sprint(text)
	default:
		return errorColor.Sprint(text)
	}
}

func printField(w io.Writer, label, value string) {
	infoColor.Fprintf(w, "%-14s", label+":")
	fmt.Fprintf(w, " %s\n", value)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
