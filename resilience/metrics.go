// Package resilience reduces incidents to availability, downtime and mean
// detection and recovery times
package resilience

import (
	"fmt"
	"sort"
	"time"

	"cyberres/core"
)

// MinHorizonSec is the floor applied to a horizon derived from the event span
const MinHorizonSec = 3600.0

// Interval is a half-open downtime window [Start, End)
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the interval
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Compute reduces incidents to resilience metrics over horizonSec. It is a pure
// function: the same input always yields the same Metrics. A zero horizon
// yields 100% availability; a negative one is rejected.
func Compute(incidents []core.Incident, horizonSec float64) (core.Metrics, error) {
	if horizonSec < 0 {
		return core.Metrics{}, fmt.Errorf("%w: %g seconds", core.ErrInvalidHorizon, horizonSec)
	}

	m := core.Metrics{
		HorizonSec:     horizonSec,
		IncidentsTotal: len(incidents),
		BySeverity:     make(map[core.Severity]int),
		ByThreat:       make(map[core.ThreatType]int),
	}

	var (
		mttdSum, mttrSum     float64
		mttdCount, mttrCount int
		intervals            []Interval
	)
	for i := range incidents {
		inc := &incidents[i]
		m.BySeverity[inc.Severity]++
		m.ByThreat[inc.ThreatType]++
		if inc.IsOpen() {
			m.IncidentsOpen++
		}
		if inc.MTTDSec != nil {
			mttdSum += *inc.MTTDSec
			mttdCount++
		}
		if inc.MTTRSec != nil {
			mttrSum += *inc.MTTRSec
			mttrCount++
		}
		if inc.Severity.AtLeast(core.SeverityHigh) && inc.HasDowntimeWindow() {
			intervals = append(intervals, Interval{Start: *inc.DetectTs, End: *inc.RecoverTs})
		}
	}

	if mttdCount > 0 {
		m.MeanMTTDSec = mttdSum / float64(mttdCount)
	}
	if mttrCount > 0 {
		m.MeanMTTRSec = mttrSum / float64(mttrCount)
	}

	for _, iv := range MergeIntervals(intervals) {
		m.TotalDowntimeSec += iv.Duration().Seconds()
	}
	m.AvailabilityPct = Availability(m.TotalDowntimeSec, horizonSec)
	return m, nil
}

// MergeIntervals merges overlapping or touching intervals. Empty or inverted
// intervals are dropped.
func MergeIntervals(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.End.After(iv.Start) {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		cur := &merged[len(merged)-1]
		if !iv.Start.After(cur.End) {
			if iv.End.After(cur.End) {
				cur.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Availability converts downtime over a horizon to a percentage in [0,100]
func Availability(downtimeSec, horizonSec float64) float64 {
	if horizonSec <= 0 {
		return 100
	}
	pct := (1 - downtimeSec/horizonSec) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// HorizonSeconds returns horizonDays in seconds when positive, otherwise the
// event span floored at MinHorizonSec
func HorizonSeconds(horizonDays float64, events []*core.Event) float64 {
	if horizonDays > 0 {
		return horizonDays * 86400
	}
	span := core.EventSpan(events)
	if span < MinHorizonSec {
		return MinHorizonSec
	}
	return span
}

// HorizonEnd returns the instant the horizon closes, measured from the first event
func HorizonEnd(horizonSec float64, events []*core.Event) time.Time {
	if len(events) == 0 {
		return time.Time{}
	}
	first := events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
	}
	return first.Add(time.Duration(horizonSec * float64(time.Second)))
}
