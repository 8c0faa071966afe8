package core

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Modifier holds the six multipliers a policy applies to one threat type.
// 1.0 means baseline behaviour.
type Modifier struct {
	MTTDMultiplier      float64 `yaml:"mttd_multiplier" json:"mttd_multiplier" validate:"gt=0"`
	MTTRMultiplier      float64 `yaml:"mttr_multiplier" json:"mttr_multiplier" validate:"gt=0"`
	ProbMultiplier      float64 `yaml:"prob_multiplier" json:"prob_multiplier" validate:"gt=0"`
	ImpactMultiplier    float64 `yaml:"impact_multiplier" json:"impact_multiplier" validate:"gt=0"`
	ThresholdMultiplier float64 `yaml:"threshold_multiplier" json:"threshold_multiplier" validate:"gt=0"`
	WindowMultiplier    float64 `yaml:"window_multiplier" json:"window_multiplier" validate:"gt=0"`
}

// BaselineModifier returns a modifier with every multiplier at 1.0
func BaselineModifier() Modifier {
	return Modifier{
		MTTDMultiplier:      1,
		MTTRMultiplier:      1,
		ProbMultiplier:      1,
		ImpactMultiplier:    1,
		ThresholdMultiplier: 1,
		WindowMultiplier:    1,
	}
}

// UnmarshalYAML starts from the baseline so omitted multipliers stay at 1.0
func (m *Modifier) UnmarshalYAML(value *yaml.Node) error {
	type plain Modifier
	out := plain(BaselineModifier())
	if err := value.Decode(&out); err != nil {
		return err
	}
	*m = Modifier(out)
	return nil
}

// Validate checks that every multiplier is strictly positive
func (m Modifier) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"mttd_multiplier", m.MTTDMultiplier},
		{"mttr_multiplier", m.MTTRMultiplier},
		{"prob_multiplier", m.ProbMultiplier},
		{"impact_multiplier", m.ImpactMultiplier},
		{"threshold_multiplier", m.ThresholdMultiplier},
		{"window_multiplier", m.WindowMultiplier},
	}
	var errs []error
	for _, f := range fields {
		if !(f.value > 0) {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %g", f.name, f.value))
		}
	}
	return errors.Join(errs...)
}

// Modifiers maps each threat type to its multipliers
type Modifiers map[ThreatType]Modifier

// For returns the modifier for a threat type, baseline when absent
func (m Modifiers) For(t ThreatType) Modifier {
	if mod, ok := m[t]; ok {
		return mod
	}
	return BaselineModifier()
}

// Control documents one security control of a policy. Controls carry no logic.
type Control struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Policy is a named security-control maturity level expressed as multipliers
type Policy struct {
	Name        string             `yaml:"-" json:"name" validate:"required"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Controls    map[string]Control `yaml:"controls,omitempty" json:"controls,omitempty"`
	Modifiers   Modifiers          `yaml:"modifiers" json:"modifiers" validate:"dive"`
}

// EnabledControls returns the sorted names of enabled controls
func (p *Policy) EnabledControls() []string {
	names := make([]string, 0, len(p.Controls))
	for name, c := range p.Controls {
		if c.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks threat types and multipliers
func (p *Policy) Validate() error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, fmt.Errorf("policy name is empty"))
	}
	for t, m := range p.Modifiers {
		if !t.IsValid() {
			errs = append(errs, fmt.Errorf("unknown threat_type %q", t))
			continue
		}
		if err := m.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("policy %s: %w: %w", p.Name, ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
