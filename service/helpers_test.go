package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cyberres/core"
	"cyberres/correlate"
	"cyberres/detect"
	"cyberres/policy"
	"cyberres/report"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const eventsHeader = "timestamp,source,component,event,actor,ip,key,value,unit,severity,tags,correlation_id\n"

var testEpoch = time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)

func csvEvent(offsetSec int, event string) string {
	ts := testEpoch.Add(time.Duration(offsetSec) * time.Second).Format(time.RFC3339)
	return fmt.Sprintf("%s,gateway-01,api,%s,,203.0.113.7,login,failed,,low,scenario:brute_force,\n", ts, event)
}

func bruteForceCSV(offsets ...int) string {
	var b strings.Builder
	b.WriteString(eventsHeader)
	for _, off := range offsets {
		b.WriteString(csvEvent(off, core.EventAuthFailure))
	}
	return b.String()
}

func testPolicies() []core.Policy {
	hardened := core.Policy{Name: "hardened", Modifiers: core.Modifiers{}}
	for _, t := range core.AllThreatTypes {
		m := core.BaselineModifier()
		m.MTTDMultiplier, m.MTTRMultiplier = 0.5, 0.5
		hardened.Modifiers[t] = m
	}
	return []core.Policy{{Name: "baseline"}, hardened}
}

func newTestEvaluator(t *testing.T, input, outDir string, settings Settings) *Evaluator {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	rules := []core.Rule{{
		ID:           "RULE-BF-001",
		Name:         "Brute force",
		ThreatType:   core.ThreatCredentialAttack,
		Match:        core.Predicate{EventType: core.EventAuthFailure, Kind: core.PredicateEventType},
		GroupBy:      []string{"ip", "source"},
		WindowSec:    60,
		Threshold:    5,
		Severity:     core.SeverityHigh,
		Confidence:   0.85,
		ResponseHint: "block_ip",
	}}
	timing := correlate.DefaultTimingModel()
	timing.Jitter = 0
	engine := policy.NewEngine(
		detect.NewDetector(rules, logger),
		correlate.NewCorrelator(timing, logger),
		logger,
		policy.WithWorkers(2),
	)
	settings.Input = input
	return NewEvaluator(settings, testPolicies(), engine, report.NewReporter(outDir, logger), logger)
}

func writeEvents(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func appendEvents(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
