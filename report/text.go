package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"cyberres/core"
)

const banner = "============================================================"

// WriteText renders the human readable report: one block per policy, a
// comparison and the three most effective control sets
func WriteText(w io.Writer, s *Snapshot) error {
	var b strings.Builder

	b.WriteString(banner + "\n")
	b.WriteString("  Cyber-Resilience Report\n")
	b.WriteString(banner + "\n")
	fmt.Fprintf(&b, "  Run:      %s\n", s.RunID)
	fmt.Fprintf(&b, "  Events:   %d (rejected %d, late %d)\n", s.Events, s.Rejected(), s.Late)
	fmt.Fprintf(&b, "  Horizon:  %.0f s\n", s.HorizonSec)
	fmt.Fprintf(&b, "  Seed:     %d\n\n", s.Seed)

	metrics := s.Metrics()
	for _, m := range metrics {
		fmt.Fprintf(&b, "--- Policy: %s ---\n", m.Policy)
		fmt.Fprintf(&b, "  Availability:     %.2f%%\n", m.AvailabilityPct)
		fmt.Fprintf(&b, "  Downtime:         %.4f hr\n", m.TotalDowntimeSec/3600)
		fmt.Fprintf(&b, "  Mean MTTD:        %.2f min\n", m.MeanMTTDSec/60)
		fmt.Fprintf(&b, "  Mean MTTR:        %.2f min\n", m.MeanMTTRSec/60)
		fmt.Fprintf(&b, "  Incidents total:  %d (open %d)\n", m.IncidentsTotal, m.IncidentsOpen)
		fmt.Fprintf(&b, "  By severity:      %s\n", severityCounts(m.BySeverity))
		fmt.Fprintf(&b, "  By threat type:   %s\n\n", threatCounts(m.ByThreat))
	}

	if failures := s.Failures(); len(failures) > 0 {
		b.WriteString("--- Failed policies ---\n")
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  %s: %s\n", name, failures[name])
		}
		b.WriteString("\n")
	}

	b.WriteString("--- Comparison ---\n")
	if len(metrics) > 0 {
		best, worst := metrics[0], metrics[0]
		for _, m := range metrics[1:] {
			if m.AvailabilityPct > best.AvailabilityPct {
				best = m
			}
			if m.AvailabilityPct < worst.AvailabilityPct {
				worst = m
			}
		}
		fmt.Fprintf(&b, "  Best availability:  %s (%.2f%%)\n", best.Policy, best.AvailabilityPct)
		fmt.Fprintf(&b, "  Worst availability: %s (%.2f%%)\n", worst.Policy, worst.AvailabilityPct)

		var bestMTTR, worstMTTR *core.Metrics
		for i := range metrics {
			m := &metrics[i]
			if m.MeanMTTRSec > 0 && (bestMTTR == nil || m.MeanMTTRSec < bestMTTR.MeanMTTRSec) {
				bestMTTR = m
			}
			if worstMTTR == nil || m.MeanMTTRSec > worstMTTR.MeanMTTRSec {
				worstMTTR = m
			}
		}
		if bestMTTR != nil {
			fmt.Fprintf(&b, "  Best MTTR:          %s (%.2f min)\n", bestMTTR.Policy, bestMTTR.MeanMTTRSec/60)
			fmt.Fprintf(&b, "  Worst MTTR:         %s (%.2f min)\n", worstMTTR.Policy, worstMTTR.MeanMTTRSec/60)
		}
	}
	b.WriteString("\n")

	b.WriteString("--- Top 3 Most Effective Control Sets ---\n")
	for i, r := range s.Rankings {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "  %d. %s (effectiveness=%.3f, MTTDx%.2f, MTTRx%.2f)\n",
			i+1, r.Policy, r.Effectiveness, r.AvgMTTDMult, r.AvgMTTRMult)
		fmt.Fprintf(&b, "     Controls: %s\n", strings.Join(r.EnabledControls, ", "))
	}
	b.WriteString("\n" + banner + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func severityCounts(m map[core.Severity]int) string {
	parts := make([]string, 0, len(core.AllSeverities))
	for _, s := range core.AllSeverities {
		parts = append(parts, fmt.Sprintf("%s=%d", s, m[s]))
	}
	return strings.Join(parts, ", ")
}

func threatCounts(m map[core.ThreatType]int) string {
	parts := make([]string, 0, len(core.AllThreatTypes))
	for _, t := range core.AllThreatTypes {
		parts = append(parts, fmt.Sprintf("%s=%d", t, m[t]))
	}
	return strings.Join(parts, ", ")
}
