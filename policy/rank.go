package policy

import (
	"math"
	"sort"

	"cyberres/core"
)

// Ranking is one policy's place in the control effectiveness ordering
type Ranking struct {
	Policy          string   `json:"policy"`
	Effectiveness   float64  `json:"effectiveness"`
	AvgMTTDMult     float64  `json:"avg_mttd_multiplier"`
	AvgMTTRMult     float64  `json:"avg_mttr_multiplier"`
	EnabledControls []string `json:"enabled_controls"`
	// AvailabilityPct is set when an evaluation result was supplied
	AvailabilityPct *float64 `json:"availability_pct,omitempty"`
}

// Effectiveness scores a policy as 1 - (avg mttd multiplier + avg mttr
// multiplier)/2 over every threat type. Missing threat entries count as 1.0.
func Effectiveness(p core.Policy) (score, avgMTTD, avgMTTR float64) {
	for _, t := range core.AllThreatTypes {
		m := p.Modifiers.For(t)
		avgMTTD += m.MTTDMultiplier
		avgMTTR += m.MTTRMultiplier
	}
	n := float64(len(core.AllThreatTypes))
	avgMTTD /= n
	avgMTTR /= n
	return 1 - (avgMTTD+avgMTTR)/2, avgMTTD, avgMTTR
}

// Rank orders policies by descending effectiveness, ties broken by name.
// results may be nil; when present, availability is attached per policy.
func Rank(policies []core.Policy, results map[string]*Result) []Ranking {
	rankings := make([]Ranking, 0, len(policies))
	for _, p := range policies {
		score, mttd, mttr := Effectiveness(p)
		r := Ranking{
			Policy:          p.Name,
			Effectiveness:   round3(score),
			AvgMTTDMult:     round3(mttd),
			AvgMTTRMult:     round3(mttr),
			EnabledControls: p.EnabledControls(),
		}
		if res, ok := results[p.Name]; ok && res.Err == nil {
			avail := res.Metrics.AvailabilityPct
			r.AvailabilityPct = &avail
		}
		rankings = append(rankings, r)
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].Effectiveness != rankings[j].Effectiveness {
			return rankings[i].Effectiveness > rankings[j].Effectiveness
		}
		return rankings[i].Policy < rankings[j].Policy
	})
	return rankings
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
