// Package policy loads security control policies and evaluates the detection,
// correlation and metrics pipeline once per policy
package policy

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"cyberres/core"
	"cyberres/correlate"
	"cyberres/detect"
	"cyberres/metrics"
	"cyberres/resilience"
	"cyberres/util/goroutine"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "cyberres/policy"

// Input is the read-only snapshot every policy is evaluated over
type Input struct {
	Events     []*core.Event
	HorizonSec float64
	Cutoff     correlate.Cutoff
	// Rejected is the number of input records skipped at ingest
	Rejected int
	// Retired counts, per policy, incidents of earlier passes whose events
	// were trimmed from a followed stream
	Retired map[string]int
}

// Result is the outcome of one policy. Err is set when a structural error
// aborted the policy; the other fields are then incomplete.
type Result struct {
	Policy    core.Policy
	Alerts    []core.Alert
	Incidents []core.Incident
	Metrics   core.Metrics
	Stats     detect.Stats
	Duration  time.Duration
	Err       error
}

// AlertDetector turns events into alerts under one policy's modifiers
type AlertDetector interface {
	Detect(events []*core.Event, mods core.Modifiers, policy string) ([]core.Alert, detect.Stats, error)
}

// IncidentCorrelator groups one policy's alerts into incidents
type IncidentCorrelator interface {
	Correlate(alerts []core.Alert, mods core.Modifiers, policy string, cutoff correlate.Cutoff) ([]core.Incident, error)
}

// Engine runs Detector, Correlator and Metrics Engine per policy in parallel
type Engine struct {
	detector   AlertDetector
	correlator IncidentCorrelator
	workers    int
	tracer     trace.Tracer
	logger     *zap.SugaredLogger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithWorkers bounds the number of policies evaluated at once
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTracerProvider sets the provider spans are recorded with
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewEngine creates an engine over a detector and a correlator
func NewEngine(detector AlertDetector, correlator IncidentCorrelator, logger *zap.SugaredLogger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	e := &Engine{
		detector:   detector,
		correlator: correlator,
		workers:    runtime.NumCPU(),
		tracer:     otel.GetTracerProvider().Tracer(tracerName),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every policy independently over the same input. A policy that
// fails structurally only fails its own Result. The returned error is set when
// the evaluation as a whole could not run, for example on cancellation.
func (e *Engine) Evaluate(ctx context.Context, in Input, policies []core.Policy) (map[string]*Result, error) {
	ctx, span := e.tracer.Start(ctx, "policy.evaluate_all", trace.WithAttributes(
		attribute.Int("policies", len(policies)),
		attribute.Int("events", len(in.Events)),
		attribute.Float64("horizon_sec", in.HorizonSec),
	))
	defer span.End()

	workers := e.workers
	if workers > len(policies) {
		workers = len(policies)
	}
	pool := core.NewWorkerPoolWithContext(ctx, workers, len(policies), "policy", e.logger)
	if err := pool.Start(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "worker pool failed to start")
		return nil, fmt.Errorf("failed to start policy workers: %w", err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]*Result, len(policies))
	)
	for _, p := range policies {
		wg.Add(1)
		err := pool.SubmitWait(ctx, func() {
			defer wg.Done()
			r := e.evaluateOne(pool.Context(), in, p)
			mu.Lock()
			results[p.Name] = r
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			pool.Stop()
			span.RecordError(err)
			span.SetStatus(codes.Error, "evaluation aborted")
			return nil, fmt.Errorf("failed to schedule policy %s: %w", p.Name, err)
		}
	}
	wg.Wait()
	pool.Stop()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation cancelled")
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed_policies", failed))
	return results, nil
}

func (e *Engine) evaluateOne(ctx context.Context, in Input, p core.Policy) (result *Result) {
	start := time.Now()
	result = &Result{Policy: p}

	ctx, span := e.tracer.Start(ctx, "policy.evaluate", trace.WithAttributes(
		attribute.String("policy", p.Name),
	))
	defer func() {
		result.Duration = time.Since(start)
		metrics.PolicyEvaluationDuration.WithLabelValues(p.Name).Observe(result.Duration.Seconds())
		if result.Err != nil {
			metrics.PolicyEvaluationFailures.WithLabelValues(p.Name).Inc()
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
			e.logger.Errorw("Policy evaluation failed", "policy", p.Name, "error", result.Err)
		}
		span.End()
	}()
	defer goroutine.RecoverInto("policy-"+p.Name, &result.Err, e.logger)

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	alerts, stats, err := e.detector.Detect(in.Events, p.Modifiers, p.Name)
	if err != nil {
		result.Err = fmt.Errorf("detection failed: %w", err)
		return result
	}
	result.Alerts = alerts
	result.Stats = stats
	span.AddEvent("detected", trace.WithAttributes(attribute.Int("alerts", len(alerts))))

	cutoff := in.Cutoff
	cutoff.OrdinalBase = in.Retired[p.Name]
	incidents, err := e.correlator.Correlate(alerts, p.Modifiers, p.Name, cutoff)
	if err != nil {
		result.Err = fmt.Errorf("correlation failed: %w", err)
		return result
	}
	result.Incidents = incidents
	span.AddEvent("correlated", trace.WithAttributes(attribute.Int("incidents", len(incidents))))

	m, err := resilience.Compute(incidents, in.HorizonSec)
	if err != nil {
		result.Err = fmt.Errorf("metrics failed: %w", err)
		return result
	}
	m.Policy = p.Name
	m.RejectedEvents = in.Rejected
	result.Metrics = m

	metrics.AvailabilityPct.WithLabelValues(p.Name).Set(m.AvailabilityPct)
	span.SetAttributes(
		attribute.Float64("availability_pct", m.AvailabilityPct),
		attribute.Int("incidents_total", m.IncidentsTotal),
	)
	e.logger.Infow("Policy evaluated",
		"policy", p.Name,
		"alerts", len(alerts),
		"incidents", m.IncidentsTotal,
		"availability_pct", m.AvailabilityPct,
		"downtime_sec", m.TotalDowntimeSec)
	return result
}

// FirstError returns the first failed policy in name order, if any
func FirstError(results map[string]*Result, order []string) error {
	var errs []error
	for _, name := range order {
		if r, ok := results[name]; ok && r.Err != nil {
			errs = append(errs, fmt.Errorf("policy %s: %w", name, r.Err))
		}
	}
	return errors.Join(errs...)
}
