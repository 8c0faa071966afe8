package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cyberres/config"
	"cyberres/core"
	"cyberres/policy"
	"cyberres/report"
	"cyberres/service"
	"cyberres/util/goroutine"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long Shutdown waits for the diagnostics server
const shutdownTimeout = 5 * time.Second

// App represents a configured cyberres run with all its components
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Catalogs
	Catalogs *Catalogs
	Policies []core.Policy

	// Pipeline
	Engine    *policy.Engine
	Reporter  *report.Reporter
	Evaluator *service.Evaluator

	// Diagnostics is only set while a watch run serves it
	Diagnostics *service.Diagnostics

	// Lifecycle
	serviceWg    sync.WaitGroup
	shutdownOnce sync.Once
}

// AppOption configures NewApp
type AppOption func(*appOptions)

type appOptions struct {
	tracerProvider trace.TracerProvider
}

// WithTracerProvider records evaluation spans with tp instead of the global provider
func WithTracerProvider(tp trace.TracerProvider) AppOption {
	return func(o *appOptions) {
		o.tracerProvider = tp
	}
}

// NewApp loads catalogs and wires the evaluation pipeline. A nil logger is
// replaced by the console logger at cfg's level.
func NewApp(cfg *config.Config, logger *zap.Logger, opts ...AppOption) (*App, error) {
	var options appOptions
	for _, opt := range opts {
		opt(&options)
	}

	if logger == nil {
		var err error
		logger, _, err = InitLogger(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	app := &App{
		Config: cfg,
		Logger: logger,
		Sugar:  logger.Sugar(),
	}

	catalogs, err := LoadCatalogs(cfg, app.Sugar)
	if err != nil {
		return nil, err
	}
	app.Catalogs = catalogs

	selected, err := catalogs.Policies.Select(cfg.Evaluation.Policies, app.Sugar)
	if err != nil {
		return nil, err
	}
	app.Policies = selected

	engine, err := InitEngine(cfg, catalogs.Rules, options.tracerProvider, app.Sugar)
	if err != nil {
		return nil, err
	}
	app.Engine = engine

	app.Reporter = report.NewReporter(cfg.Output.Dir, app.Sugar,
		report.WithAlerts(cfg.Output.EmitAlerts),
		report.WithHTML(cfg.Output.HTML))

	app.Evaluator = service.NewEvaluator(service.Settings{
		Input:             cfg.Input.Path,
		Format:            cfg.InputFormat(),
		ReorderSlack:      cfg.ReorderSlack(),
		HorizonDays:       cfg.Evaluation.HorizonDays,
		Seed:              cfg.Evaluation.Seed,
		TruncateAtHorizon: cfg.Evaluation.TruncateAtHorizon,
		PollInterval:      cfg.PollInterval(),
	}, selected, engine, app.Reporter, app.Sugar)

	return app, nil
}

// PolicyNames returns the selected policies in evaluation order
func (a *App) PolicyNames() []string {
	names := make([]string, len(a.Policies))
	for i, p := range a.Policies {
		names[i] = p.Name
	}
	return names
}

// RunBatch evaluates the whole input once and writes the reports
func (a *App) RunBatch(ctx context.Context) (*report.Snapshot, error) {
	if err := CheckInput(a.Config.Input.Path); err != nil {
		return nil, err
	}
	if _, err := EnsureOutputDirectory(a.Config.Output.Dir, a.Sugar); err != nil {
		return nil, err
	}

	a.Sugar.Infow("Starting batch evaluation",
		"input", a.Config.Input.Path,
		"policies", a.PolicyNames(),
		"seed", a.Config.Evaluation.Seed)
	return a.Evaluator.Run(ctx)
}

// RunWatch follows the input until ctx is cancelled, serving diagnostics when
// enabled. It returns after the watch loop and diagnostics have stopped.
func (a *App) RunWatch(ctx context.Context) error {
	if _, err := EnsureOutputDirectory(a.Config.Output.Dir, a.Sugar); err != nil {
		return err
	}

	if a.Config.Diagnostics.Enabled {
		a.Diagnostics = service.NewDiagnostics(a.Config.Diagnostics.Addr, a.Evaluator, a.Sugar)
		a.serviceWg.Add(1)
		go func() {
			defer a.serviceWg.Done()
			defer goroutine.Recover("diagnostics-server", a.Sugar)
			if err := a.Diagnostics.Start(); err != nil {
				a.Sugar.Errorw("Diagnostics server failed", "addr", a.Config.Diagnostics.Addr, "error", err)
			}
		}()
	}

	err := a.Evaluator.Watch(ctx)
	a.Shutdown()
	return err
}

// Shutdown stops background services. It is safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.Sugar.Debug("Shutting down...")

		// Phase 1 - Stop diagnostics server
		if a.Diagnostics != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.Diagnostics.Stop(ctx); err != nil {
				a.Sugar.Errorw("Failed to stop diagnostics server", "error", err)
			}
		}

		// Phase 2 - Wait for service goroutines
		done := make(chan struct{})
		go func() {
			a.serviceWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout + time.Second):
			a.Sugar.Warn("Service goroutine shutdown timed out")
		}

		a.Sugar.Debug("Shutdown complete")
		// Sync fails on terminals for stderr; nothing useful to do about it
		_ = a.Logger.Sync()
	})
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// IsPartialFailure reports whether err only describes failed policies, in
// which case the reports were still written
func IsPartialFailure(err error, snap *report.Snapshot) bool {
	return err != nil && snap != nil && !errors.Is(err, service.ErrNoEvents) && len(snap.Failures()) > 0
}
