package bootstrap

import (
	"fmt"

	"cyberres/config"
	"cyberres/core"
	"cyberres/correlate"
	"cyberres/detect"
	"cyberres/policy"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Catalogs holds the loaded rule and policy catalogs
type Catalogs struct {
	Rules    []core.Rule
	Policies *policy.Catalog
}

// LoadCatalogs loads the rule and policy catalogs named by cfg. Both are
// loaded before either error is returned so a user sees every problem at once.
func LoadCatalogs(cfg *config.Config, sugar *zap.SugaredLogger) (*Catalogs, error) {
	rules, rulesErr := detect.LoadRules(cfg.RulesPath(), sugar)
	policies, policiesErr := policy.LoadCatalog(cfg.PoliciesPath(), sugar)

	switch {
	case rulesErr != nil && policiesErr != nil:
		return nil, fmt.Errorf("failed to load catalogs: %w; %w", rulesErr, policiesErr)
	case rulesErr != nil:
		return nil, fmt.Errorf("failed to load rule catalog: %w", rulesErr)
	case policiesErr != nil:
		return nil, fmt.Errorf("failed to load policy catalog: %w", policiesErr)
	}

	enabled := 0
	for _, r := range rules {
		if r.IsEnabled() {
			enabled++
		}
	}
	sugar.Infow("Catalogs loaded",
		"rules", len(rules),
		"rules_enabled", enabled,
		"policies", len(policies.Names()))
	return &Catalogs{Rules: rules, Policies: policies}, nil
}

// InitEngine builds the detector, correlator and policy engine from cfg.
// tp may be nil to use the global tracer provider.
func InitEngine(cfg *config.Config, rules []core.Rule, tp trace.TracerProvider, sugar *zap.SugaredLogger) (*policy.Engine, error) {
	timing, err := cfg.TimingModel()
	if err != nil {
		return nil, fmt.Errorf("failed to build timing model: %w", err)
	}

	detector := detect.NewDetector(rules, sugar, detect.WithBaselineSize(cfg.Evaluation.BaselineSize))
	correlator := correlate.NewCorrelator(timing, sugar, correlate.WithGap(cfg.CorrelationGap()))

	opts := []policy.EngineOption{policy.WithTracerProvider(tp)}
	if cfg.Evaluation.Workers > 0 {
		opts = append(opts, policy.WithWorkers(cfg.Evaluation.Workers))
	}

	sugar.Debugw("Evaluation engine initialized",
		"seed", timing.Seed,
		"jitter", timing.Jitter,
		"correlation_gap", cfg.CorrelationGap(),
		"workers", cfg.Evaluation.Workers)
	return policy.NewEngine(detector, correlator, sugar, opts...), nil
}
