package correlate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"cyberres/core"

	"github.com/cespare/xxhash/v2"
)

// BaseTiming holds the baseline detection and recovery time of a threat type
type BaseTiming struct {
	MTTDSec float64 `mapstructure:"mttd_sec" json:"mttd_sec"`
	MTTRSec float64 `mapstructure:"mttr_sec" json:"mttr_sec"`
}

// DefaultJitter is the relative spread the base timing is sampled from
const DefaultJitter = 0.2

// DefaultResponse is the advisory label for threat types without an entry
const DefaultResponse = "notify"

// TimingModel describes how incident timing and impact are derived before
// policy multipliers are applied
type TimingModel struct {
	Base     map[core.ThreatType]BaseTiming
	Impact   map[core.ThreatType]float64
	Response map[core.ThreatType]string
	// Jitter in [0,1) widens each base value to [base*(1-j), base*(1+j)]
	Jitter float64
	Seed   uint64
}

// DefaultTimingModel returns the baseline timing table
func DefaultTimingModel() TimingModel {
	return TimingModel{
		Base: map[core.ThreatType]BaseTiming{
			core.ThreatCredentialAttack:   {MTTDSec: 30, MTTRSec: 120},
			core.ThreatAvailabilityAttack: {MTTDSec: 15, MTTRSec: 180},
			core.ThreatIntegrityAttack:    {MTTDSec: 60, MTTRSec: 240},
			core.ThreatOutage:             {MTTDSec: 10, MTTRSec: 300},
		},
		Impact: map[core.ThreatType]float64{
			core.ThreatCredentialAttack:   0.6,
			core.ThreatAvailabilityAttack: 0.9,
			core.ThreatIntegrityAttack:    0.8,
			core.ThreatOutage:             1.0,
		},
		Response: map[core.ThreatType]string{
			core.ThreatCredentialAttack:   "block_ip",
			core.ThreatAvailabilityAttack: "rate_limit",
			core.ThreatIntegrityAttack:    "isolate_device",
			core.ThreatOutage:             "failover",
		},
		Jitter: DefaultJitter,
	}
}

// Validate checks ranges of the timing table
func (m TimingModel) Validate() error {
	var errs []error
	if m.Jitter < 0 || m.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("jitter must be in [0,1), got %g", m.Jitter))
	}
	for t, b := range m.Base {
		if !t.IsValid() {
			errs = append(errs, fmt.Errorf("timing.base: unknown threat_type %q", t))
			continue
		}
		if !(b.MTTDSec > 0) || !(b.MTTRSec > 0) {
			errs = append(errs, fmt.Errorf("timing.base.%s: mttd_sec and mttr_sec must be > 0", t))
		}
	}
	for t, v := range m.Impact {
		if !t.IsValid() {
			errs = append(errs, fmt.Errorf("timing.impact: unknown threat_type %q", t))
			continue
		}
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("timing.impact.%s must be in [0,1], got %g", t, v))
		}
	}
	for t := range m.Response {
		if !t.IsValid() {
			errs = append(errs, fmt.Errorf("timing.response: unknown threat_type %q", t))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (m TimingModel) base(t core.ThreatType) BaseTiming {
	if b, ok := m.Base[t]; ok {
		return b
	}
	return BaseTiming{MTTDSec: 30, MTTRSec: 120}
}

func (m TimingModel) impact(t core.ThreatType) float64 {
	if v, ok := m.Impact[t]; ok {
		return v
	}
	return 0.5
}

func (m TimingModel) response(t core.ThreatType) string {
	if v, ok := m.Response[t]; ok && v != "" {
		return v
	}
	return DefaultResponse
}

// sample draws the base mttd and mttr of one incident. The generator is
// scoped to (seed, policy, ordinal) so the result never depends on how many
// draws other incidents or policies made.
func (m TimingModel) sample(policy string, ordinal int, t core.ThreatType) (mttd, mttr float64) {
	b := m.base(t)
	rng := newIncidentRand(m.Seed, policy, ordinal)
	return spread(b.MTTDSec, m.Jitter, rng), spread(b.MTTRSec, m.Jitter, rng)
}

func newIncidentRand(seed uint64, policy string, ordinal int) *rand.Rand {
	d := xxhash.New()
	var buf [20]byte
	_, _ = d.Write(strconv.AppendUint(buf[:0], seed, 10))
	_, _ = d.WriteString("|" + policy + "|")
	_, _ = d.Write(strconv.AppendInt(buf[:0], int64(ordinal), 10))
	h := d.Sum64()
	return rand.New(rand.NewPCG(h, h^0x9e3779b97f4a7c15))
}

func spread(base, jitter float64, rng *rand.Rand) float64 {
	f := rng.Float64()
	return base * (1 + jitter*(2*f-1))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
