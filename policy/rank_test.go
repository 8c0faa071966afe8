package policy

import (
	"testing"

	"cyberres/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank_OrdersByEffectiveness(t *testing.T) {
	policies := []core.Policy{
		{Name: "minimal"},
		uniformPolicy("standard", 0.6, 0.7),
		uniformPolicy("weak", 1.5, 1.2),
	}

	rankings := Rank(policies, nil)
	require.Len(t, rankings, 3)
	assert.Equal(t, "standard", rankings[0].Policy)
	assert.Equal(t, "minimal", rankings[1].Policy)
	assert.Equal(t, "weak", rankings[2].Policy)

	assert.Equal(t, 0.35, rankings[0].Effectiveness)
	assert.Equal(t, 0.0, rankings[1].Effectiveness)
	assert.Equal(t, -0.35, rankings[2].Effectiveness)
	assert.Equal(t, 0.6, rankings[0].AvgMTTDMult)
	assert.Equal(t, 0.7, rankings[0].AvgMTTRMult)
	assert.Nil(t, rankings[0].AvailabilityPct)
}

func TestRank_LowerMultipliersNeverRankLower(t *testing.T) {
	for _, step := range []float64{0.05, 0.1, 0.25, 0.5} {
		better := uniformPolicy("a-better", 1-step, 1-step)
		worse := uniformPolicy("b-worse", 1, 1)

		rankings := Rank([]core.Policy{worse, better}, nil)
		assert.Equal(t, "a-better", rankings[0].Policy, "step %v", step)
		assert.Greater(t, rankings[0].Effectiveness, rankings[1].Effectiveness)
	}
}

func TestRank_PartialModifiersAverageOverAllThreats(t *testing.T) {
	p := core.Policy{Name: "credential-only", Modifiers: core.Modifiers{
		core.ThreatCredentialAttack: {MTTDMultiplier: 0.2, MTTRMultiplier: 0.6, ProbMultiplier: 1, ImpactMultiplier: 1, ThresholdMultiplier: 1, WindowMultiplier: 1},
	}}
	score, mttd, mttr := Effectiveness(p)
	assert.InDelta(t, 0.8, mttd, 1e-9)
	assert.InDelta(t, 0.9, mttr, 1e-9)
	assert.InDelta(t, 0.15, score, 1e-9)
}

func TestRank_TiesBrokenByName(t *testing.T) {
	rankings := Rank([]core.Policy{{Name: "zeta"}, {Name: "alpha"}, {Name: "mid"}}, nil)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{rankings[0].Policy, rankings[1].Policy, rankings[2].Policy})
}

func TestRank_AttachesAvailabilityAndControls(t *testing.T) {
	p := uniformPolicy("standard", 0.5, 0.5)
	p.Controls = map[string]core.Control{
		"mfa":          {Enabled: true},
		"rate_limiter": {Enabled: true},
		"waf":          {Enabled: false},
	}
	results := map[string]*Result{
		"standard": {Metrics: core.Metrics{AvailabilityPct: 99.5}},
	}

	rankings := Rank([]core.Policy{p}, results)
	require.Len(t, rankings, 1)
	assert.Equal(t, []string{"mfa", "rate_limiter"}, rankings[0].EnabledControls)
	require.NotNil(t, rankings[0].AvailabilityPct)
	assert.Equal(t, 99.5, *rankings[0].AvailabilityPct)
}
