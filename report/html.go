package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"cyberres/core"
	"cyberres/policy"
)

// maxHTMLIncidents bounds the incident table of the HTML report
const maxHTMLIncidents = 50

//go:embed templates/report.html.tmpl
var htmlSource string

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"hours":   func(sec float64) string { return fmt.Sprintf("%.4f", sec/3600) },
	"minutes": func(sec float64) string { return fmt.Sprintf("%.2f", sec/60) },
	"seconds": func(v *float64) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%.1f", *v)
	},
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}).Parse(htmlSource))

type htmlData struct {
	RunID          string
	GeneratedAt    time.Time
	Events         int
	Rejected       int
	HorizonSec     float64
	Metrics        []core.Metrics
	Failures       map[string]string
	TopRankings    []policy.Ranking
	Incidents      []core.Incident
	TotalIncidents int
	Truncated      bool
}

// WriteHTML renders a self-contained HTML report
func WriteHTML(w io.Writer, s *Snapshot) error {
	incidents := s.Incidents()
	data := htmlData{
		RunID:          s.RunID,
		GeneratedAt:    s.GeneratedAt.UTC(),
		Events:         s.Events,
		Rejected:       s.Rejected(),
		HorizonSec:     s.HorizonSec,
		Metrics:        s.Metrics(),
		TopRankings:    s.Rankings,
		TotalIncidents: len(incidents),
	}
	if f := s.Failures(); len(f) > 0 {
		data.Failures = f
	}
	if len(data.TopRankings) > 3 {
		data.TopRankings = data.TopRankings[:3]
	}
	if len(incidents) > maxHTMLIncidents {
		incidents = incidents[:maxHTMLIncidents]
		data.Truncated = true
	}
	data.Incidents = incidents
	return htmlTemplate.Execute(w, data)
}
