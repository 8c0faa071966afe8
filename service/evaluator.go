// Package service drives evaluations: a single batch pass over a finished
// input, or a watch loop that follows a growing input and recomputes on every
// poll.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cyberres/core"
	"cyberres/correlate"
	"cyberres/ingest"
	"cyberres/policy"
	"cyberres/report"
	"cyberres/resilience"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================================
// Constants
// ============================================================================

const (
	// DefaultPollInterval is the watch-mode poll period
	DefaultPollInterval = time.Second
	// minPollInterval keeps a misconfigured loop from spinning
	minPollInterval = 50 * time.Millisecond

	ModeBatch = "batch"
	ModeWatch = "watch"
)

// ErrNoEvents is returned by a batch run over an input without valid events
var ErrNoEvents = errors.New("no events to evaluate")

// Settings are the run parameters shared by batch and watch mode
type Settings struct {
	Input        string
	Format       ingest.Format
	ReorderSlack time.Duration
	HorizonDays  float64
	Seed         uint64
	// TruncateAtHorizon leaves incidents open when recovery falls past the horizon
	TruncateAtHorizon bool
	PollInterval      time.Duration
}

// Evaluator runs the policy engine over an event set and publishes the
// resulting snapshot to the reporter.
//
// CONCURRENCY:
//   - Run and Watch are not meant to be called concurrently on one Evaluator
//   - Latest is safe to call from any goroutine (diagnostics handlers)
type Evaluator struct {
	settings Settings
	policies []core.Policy
	engine   *policy.Engine
	reporter *report.Reporter
	latest   atomic.Pointer[report.Snapshot]
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewEvaluator wires an evaluator. policies is the selection to evaluate,
// in the order results are reported.
func NewEvaluator(settings Settings, policies []core.Policy, engine *policy.Engine, reporter *report.Reporter, logger *zap.SugaredLogger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if settings.PollInterval < minPollInterval {
		settings.PollInterval = DefaultPollInterval
	}
	return &Evaluator{
		settings: settings,
		policies: policies,
		engine:   engine,
		reporter: reporter,
		logger:   logger,
		now:      time.Now,
	}
}

// Latest returns the most recent snapshot, nil before the first evaluation
func (e *Evaluator) Latest() *report.Snapshot {
	return e.latest.Load()
}

// Policies returns the evaluated policy selection
func (e *Evaluator) Policies() []core.Policy {
	return e.policies
}

// Run performs one batch pass: load the whole input, evaluate every policy,
// write the outputs. Outputs are written even when some policies fail; the
// failures are returned as an error.
func (e *Evaluator) Run(ctx context.Context) (*report.Snapshot, error) {
	batch, err := ingest.LoadFile(e.settings.Input, e.settings.Format, e.logger,
		ingest.WithReorderSlack(e.settings.ReorderSlack))
	if err != nil {
		return nil, err
	}
	if len(batch.Events) == 0 {
		return nil, fmt.Errorf("%w in %s (%d records rejected)", ErrNoEvents, e.settings.Input, batch.Rejected())
	}

	snap, err := e.evaluate(ctx, ModeBatch, 0, batch.Events, batch.Rejects, batch.Late, time.Time{}, nil)
	if err != nil {
		return nil, err
	}
	if err := e.publish(snap); err != nil {
		return snap, err
	}
	return snap, policy.FirstError(snap.Results, snap.Policies)
}

// evaluate runs the engine over events. A non-zero watermark marks the
// newest event of a stream that may still grow. retired carries the per-policy
// count of incidents already trimmed out of that stream.
func (e *Evaluator) evaluate(ctx context.Context, mode string, cycle int, events []*core.Event, rejects ingest.RejectCounts, late int, watermark time.Time, retired map[string]int) (*report.Snapshot, error) {
	horizon := resilience.HorizonSeconds(e.settings.HorizonDays, events)
	cutoff := correlate.Cutoff{Watermark: watermark}
	if e.settings.TruncateAtHorizon {
		cutoff.HorizonEnd = resilience.HorizonEnd(horizon, events)
	}

	results, err := e.engine.Evaluate(ctx, policy.Input{
		Events:     events,
		HorizonSec: horizon,
		Cutoff:     cutoff,
		Rejected:   rejects.Total(),
		Retired:    retired,
	}, e.policies)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	names := make([]string, len(e.policies))
	for i, p := range e.policies {
		names[i] = p.Name
	}

	snap := &report.Snapshot{
		RunID:       uuid.NewString(),
		GeneratedAt: e.now().UTC(),
		Mode:        mode,
		Cycle:       cycle,
		Input:       e.settings.Input,
		Seed:        e.settings.Seed,
		HorizonSec:  horizon,
		Events:      len(events),
		Late:        late,
		Rejects:     rejects,
		Policies:    names,
		Results:     results,
		Rankings:    policy.Rank(e.policies, results),
	}
	e.latest.Store(snap)
	return snap, nil
}

func (e *Evaluator) publish(snap *report.Snapshot) error {
	if e.reporter == nil {
		return nil
	}
	_, err := e.reporter.Write(snap)
	return err
}
