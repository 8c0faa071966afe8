package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cyberres/config"
	"cyberres/core"
	"cyberres/report"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

const testRules = `
rules:
  - id: RULE-BF-001
    name: Brute force login
    threat_type: credential_attack
    match: {event: auth_failure, kind: event_type}
    group_by: [ip, source]
    window_sec: 60
    threshold: 3
    severity: high
    confidence: 0.85
`

const testPolicies = `
policies:
  baseline:
    modifiers: {}
  hardened:
    controls:
      mfa: {enabled: true}
    modifiers:
      credential_attack: {mttd_multiplier: 0.5, mttr_multiplier: 0.5}
`

const testEvents = `timestamp,source,component,event,actor,ip,key,value,unit,severity,tags,correlation_id
2026-02-26T10:00:00Z,gw-01,api,auth_failure,,203.0.113.7,login,failed,,low,,
2026-02-26T10:00:05Z,gw-01,api,auth_failure,,203.0.113.7,login,failed,,low,,
2026-02-26T10:00:10Z,gw-01,api,auth_failure,,203.0.113.7,login,failed,,low,,
2026-02-26T12:00:00Z,gw-01,api,auth_success,alice,203.0.113.9,login,ok,,low,,
`

// testConfig writes catalogs and events under a temp dir and loads a config
// pointing at them
func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}
	write("rules.yaml", testRules)
	write("policies.yaml", testPolicies)
	input := write("events.csv", testEvents)

	cfgPath := write("config.yaml", `
input:
  path: `+input+`
catalog:
  dir: `+dir+`
output:
  dir: `+filepath.Join(dir, "out")+`
timing:
  jitter: 0
`+extra)

	cfg, err := InitConfig(cfgPath, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return cfg
}

func TestNewApp_RunBatch(t *testing.T) {
	cfg := testConfig(t, "")
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))

	app, err := NewApp(cfg, zaptest.NewLogger(t), WithTracerProvider(tp))
	require.NoError(t, err)
	defer app.Shutdown()

	assert.Equal(t, []string{"baseline", "hardened"}, app.PolicyNames())
	require.Len(t, app.Catalogs.Rules, 1)

	snap, err := app.RunBatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.Events)

	base := snap.Results["baseline"]
	require.Len(t, base.Incidents, 1)
	require.NotNil(t, base.Incidents[0].MTTDSec)
	assert.Equal(t, 30.0, *base.Incidents[0].MTTDSec)
	assert.Equal(t, 15.0, *snap.Results["hardened"].Incidents[0].MTTDSec)

	assert.Equal(t, "hardened", snap.Rankings[0].Policy)

	for _, name := range []string{report.ResultsFile, report.IncidentsFile, report.TextFile, report.HTMLFile, report.ManifestFile} {
		assert.FileExists(t, filepath.Join(cfg.Output.Dir, name))
	}
	assert.NotEmpty(t, exporter.GetSpans(), "spans recorded with the injected provider")
}

func TestNewApp_SelectsPolicies(t *testing.T) {
	cfg := testConfig(t, "evaluation:\n  policies: [hardened, missing]\n")

	app, err := NewApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"hardened"}, app.PolicyNames())

	cfg = testConfig(t, "evaluation:\n  policies: [missing]\n")
	_, err = NewApp(cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestNewApp_BrokenCatalogs(t *testing.T) {
	cfg := testConfig(t, "")
	require.NoError(t, os.WriteFile(cfg.RulesPath(), []byte("rules: [{id: X}]\n"), 0o600))
	require.NoError(t, os.WriteFile(cfg.PoliciesPath(), []byte("policies: 3\n"), 0o600))

	_, err := NewApp(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalogs")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestApp_RunBatchMissingInput(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Input.Path = filepath.Join(t.TempDir(), "absent.csv")

	app, err := NewApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = app.RunBatch(context.Background())
	assert.ErrorContains(t, err, "not readable")
}

func TestApp_RunWatchWithDiagnostics(t *testing.T) {
	cfg := testConfig(t, "watch:\n  poll_interval_ms: 50\ndiagnostics:\n  enabled: true\n  addr: 127.0.0.1:0\n")

	app, err := NewApp(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunWatch(ctx) }()

	require.Eventually(t, func() bool {
		return app.Evaluator.Latest() != nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RunWatch did not return after cancellation")
	}
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, report.ManifestFile))

	app.Shutdown() // second call is a no-op
}

func TestShippedCatalogsLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	cfg, err := config.LoadConfigFile(filepath.Join("..", "config", "config.yaml"))
	require.NoError(t, err)
	cfg.Catalog.Dir = filepath.Join("..", "config")

	catalogs, err := LoadCatalogs(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.Len(t, catalogs.Rules, 6)
	assert.Equal(t, []string{"minimal", "baseline", "standard"}, catalogs.Policies.Names())
}
