// Package report renders evaluation results to flat output files. Every file
// is replaced atomically so a concurrent reader never sees a partial write.
package report

import (
	"time"

	"cyberres/core"
	"cyberres/ingest"
	"cyberres/policy"
)

// Snapshot is everything one evaluation produced
type Snapshot struct {
	RunID       string
	GeneratedAt time.Time
	Mode        string
	Cycle       int
	Input       string
	Seed        uint64
	HorizonSec  float64
	Events      int
	Late        int
	Rejects     ingest.RejectCounts
	// Policies is the evaluation order; Results is keyed by policy name
	Policies []string
	Results  map[string]*policy.Result
	Rankings []policy.Ranking
}

func (s *Snapshot) succeeded() []*policy.Result {
	out := make([]*policy.Result, 0, len(s.Policies))
	for _, name := range s.Policies {
		if r, ok := s.Results[name]; ok && r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Metrics returns per-policy metrics in evaluation order, failed policies omitted
func (s *Snapshot) Metrics() []core.Metrics {
	results := s.succeeded()
	out := make([]core.Metrics, len(results))
	for i, r := range results {
		out[i] = r.Metrics
	}
	return out
}

// Incidents returns every policy's incidents in evaluation order
func (s *Snapshot) Incidents() []core.Incident {
	var out []core.Incident
	for _, r := range s.succeeded() {
		out = append(out, r.Incidents...)
	}
	return out
}

// Alerts returns every policy's alerts in evaluation order
func (s *Snapshot) Alerts() []core.Alert {
	var out []core.Alert
	for _, r := range s.succeeded() {
		out = append(out, r.Alerts...)
	}
	return out
}

// Failures maps failed policies to their error text
func (s *Snapshot) Failures() map[string]string {
	out := make(map[string]string)
	for _, name := range s.Policies {
		if r, ok := s.Results[name]; ok && r.Err != nil {
			out[name] = r.Err.Error()
		}
	}
	return out
}

// Rejected returns the number of skipped input records
func (s *Snapshot) Rejected() int {
	return s.Rejects.Total()
}
