package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"cyberres/metrics"

	"go.uber.org/zap"
)

// Output file names
const (
	ResultsFile   = "results.csv"
	IncidentsFile = "incidents.csv"
	TextFile      = "report.txt"
	HTMLFile      = "report.html"
	AlertsFile    = "alerts.jsonl"
	ManifestFile  = "manifest.json"
)

// PolicySummary is one policy's line in the manifest
type PolicySummary struct {
	Name            string  `json:"name"`
	Alerts          int     `json:"alerts"`
	Incidents       int     `json:"incidents"`
	AvailabilityPct float64 `json:"availability_pct"`
	DurationMs      int64   `json:"duration_ms"`
	Error           string  `json:"error,omitempty"`
}

// Manifest describes one written snapshot
type Manifest struct {
	RunID           string          `json:"run_id"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Mode            string          `json:"mode"`
	Cycle           int             `json:"cycle,omitempty"`
	Input           string          `json:"input"`
	Seed            uint64          `json:"seed"`
	HorizonSec      float64         `json:"horizon_sec"`
	Events          int             `json:"events"`
	LateEvents      int             `json:"late_events"`
	RejectedEvents  int             `json:"rejected_events"`
	RejectsByReason map[string]int  `json:"rejects_by_reason"`
	Policies        []PolicySummary `json:"policies"`
	Files           []string        `json:"files"`
}

// Reporter writes snapshots into one output directory
type Reporter struct {
	dir        string
	emitAlerts bool
	html       bool
	logger     *zap.SugaredLogger
}

// Option configures a Reporter
type Option func(*Reporter)

// WithAlerts also writes every alert to alerts.jsonl
func WithAlerts(enabled bool) Option {
	return func(r *Reporter) { r.emitAlerts = enabled }
}

// WithHTML toggles report.html
func WithHTML(enabled bool) Option {
	return func(r *Reporter) { r.html = enabled }
}

// NewReporter creates a reporter for dir. HTML is on by default.
func NewReporter(dir string, logger *zap.SugaredLogger, opts ...Option) *Reporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Reporter{dir: dir, html: true, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the output directory
func (r *Reporter) Dir() string {
	return r.dir
}

// Write renders every output of s. Each file is replaced atomically; a file
// that fails does not stop the others. The manifest is written last and lists
// the files that were replaced.
func (r *Reporter) Write(s *Snapshot) ([]string, error) {
	type output struct {
		name  string
		write func(io.Writer) error
	}
	outputs := []output{
		{ResultsFile, func(w io.Writer) error { return WriteResultsCSV(w, s.Metrics()) }},
		{IncidentsFile, func(w io.Writer) error { return WriteIncidentsCSV(w, s.Incidents()) }},
		{TextFile, func(w io.Writer) error { return WriteText(w, s) }},
	}
	if r.html {
		outputs = append(outputs, output{HTMLFile, func(w io.Writer) error { return WriteHTML(w, s) }})
	}
	if r.emitAlerts {
		outputs = append(outputs, output{AlertsFile, func(w io.Writer) error { return WriteAlertsJSONL(w, s.Alerts()) }})
	}

	var (
		written []string
		errs    []error
	)
	for _, o := range outputs {
		if err := WriteFileAtomic(filepath.Join(r.dir, o.name), o.write); err != nil {
			metrics.SnapshotWriteFailures.Inc()
			r.logger.Errorw("Failed to write output", "file", o.name, "error", err)
			errs = append(errs, err)
			continue
		}
		written = append(written, o.name)
	}

	manifest := r.manifest(s, written)
	err := WriteFileAtomic(filepath.Join(r.dir, ManifestFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	})
	if err != nil {
		metrics.SnapshotWriteFailures.Inc()
		errs = append(errs, err)
	} else {
		written = append(written, ManifestFile)
	}

	if len(errs) > 0 {
		return written, fmt.Errorf("failed to write snapshot: %w", errors.Join(errs...))
	}
	r.logger.Infow("Snapshot written", "dir", r.dir, "run_id", s.RunID, "files", written)
	return written, nil
}

func (r *Reporter) manifest(s *Snapshot, files []string) Manifest {
	m := Manifest{
		RunID:           s.RunID,
		GeneratedAt:     s.GeneratedAt.UTC(),
		Mode:            s.Mode,
		Cycle:           s.Cycle,
		Input:           s.Input,
		Seed:            s.Seed,
		HorizonSec:      s.HorizonSec,
		Events:          s.Events,
		LateEvents:      s.Late,
		RejectedEvents:  s.Rejected(),
		RejectsByReason: map[string]int(s.Rejects),
		Files:           append([]string(nil), files...),
	}
	if m.RejectsByReason == nil {
		m.RejectsByReason = map[string]int{}
	}
	for _, name := range s.Policies {
		res, ok := s.Results[name]
		if !ok {
			continue
		}
		ps := PolicySummary{
			Name:            name,
			Alerts:          len(res.Alerts),
			Incidents:       len(res.Incidents),
			AvailabilityPct: res.Metrics.AvailabilityPct,
			DurationMs:      res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			ps.Error = res.Err.Error()
		}
		m.Policies = append(m.Policies, ps)
	}
	return m
}
