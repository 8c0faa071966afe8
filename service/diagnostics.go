package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cyberres/core"
	"cyberres/policy"
	"cyberres/report"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SnapshotSource provides the most recent evaluation
type SnapshotSource interface {
	Latest() *report.Snapshot
}

// Diagnostics serves health, Prometheus metrics and the latest snapshot while
// watch mode runs
type Diagnostics struct {
	addr   string
	router *mux.Router
	server *http.Server
	source SnapshotSource
	logger *zap.SugaredLogger
}

// SnapshotSummary is the /api/snapshot payload
type SnapshotSummary struct {
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Mode        string            `json:"mode"`
	Cycle       int               `json:"cycle"`
	Events      int               `json:"events"`
	Rejected    int               `json:"rejected"`
	HorizonSec  float64           `json:"horizon_sec"`
	Metrics     []core.Metrics    `json:"metrics"`
	Failures    map[string]string `json:"failures,omitempty"`
}

// NewDiagnostics creates the diagnostics server for addr
func NewDiagnostics(addr string, source SnapshotSource, logger *zap.SugaredLogger) *Diagnostics {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Diagnostics{
		addr:   addr,
		router: mux.NewRouter(),
		source: source,
		logger: logger,
	}
	d.setupRoutes()
	d.server = &http.Server{
		Addr:              addr,
		Handler:           d.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return d
}

func (d *Diagnostics) setupRoutes() {
	d.router.HandleFunc("/health", d.health).Methods("GET")
	d.router.Handle("/metrics", promhttp.Handler())
	api := d.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/snapshot", d.snapshot).Methods("GET")
	api.HandleFunc("/ranking", d.ranking).Methods("GET")
}

// Handler returns the router, used by tests and embedding servers
func (d *Diagnostics) Handler() http.Handler {
	return d.router
}

// Start serves until Stop is called. Stop before Start makes Start return
// immediately.
func (d *Diagnostics) Start() error {
	d.logger.Infow("Diagnostics server listening", "addr", d.addr)
	if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("diagnostics server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully
func (d *Diagnostics) Stop(ctx context.Context) error {
	return d.server.Shutdown(ctx)
}

func (d *Diagnostics) health(w http.ResponseWriter, r *http.Request) {
	status := "waiting"
	cycle := 0
	if snap := d.source.Latest(); snap != nil {
		status = "healthy"
		cycle = snap.Cycle
	}
	d.respondJSON(w, map[string]interface{}{
		"status": status,
		"cycle":  cycle,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

func (d *Diagnostics) snapshot(w http.ResponseWriter, r *http.Request) {
	snap := d.source.Latest()
	if snap == nil {
		d.respondJSON(w, map[string]string{"error": "no evaluation yet"}, http.StatusServiceUnavailable)
		return
	}
	summary := SnapshotSummary{
		RunID:       snap.RunID,
		GeneratedAt: snap.GeneratedAt,
		Mode:        snap.Mode,
		Cycle:       snap.Cycle,
		Events:      snap.Events,
		Rejected:    snap.Rejected(),
		HorizonSec:  snap.HorizonSec,
		Metrics:     snap.Metrics(),
	}
	if f := snap.Failures(); len(f) > 0 {
		summary.Failures = f
	}
	d.respondJSON(w, summary, http.StatusOK)
}

func (d *Diagnostics) ranking(w http.ResponseWriter, r *http.Request) {
	snap := d.source.Latest()
	if snap == nil {
		d.respondJSON(w, map[string]string{"error": "no evaluation yet"}, http.StatusServiceUnavailable)
		return
	}
	rankings := snap.Rankings
	if rankings == nil {
		rankings = []policy.Ranking{}
	}
	d.respondJSON(w, rankings, http.StatusOK)
}

func (d *Diagnostics) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		d.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}
