package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// PredicateKind selects how a rule matches an event beyond event type equality
type PredicateKind string

const (
	// PredicateEventType matches on event type alone
	PredicateEventType PredicateKind = "event_type"
	// PredicateValueIn matches when the value is one of Values
	PredicateValueIn PredicateKind = "value_in"
	// PredicateBounds matches numeric values outside the static range for their key
	PredicateBounds PredicateKind = "bounds"
	// PredicateDelta matches numeric values that jump more than the limit from the baseline
	PredicateDelta PredicateKind = "delta"
	// PredicatePlausibility matches when either the bounds or the delta check fails
	PredicatePlausibility PredicateKind = "plausibility"
	// PredicateActorAllowlist matches events whose actor is not allowed
	PredicateActorAllowlist PredicateKind = "actor_allowlist"
)

// IsValid checks if the predicate kind is valid
func (k PredicateKind) IsValid() bool {
	switch k {
	case PredicateEventType, PredicateValueIn, PredicateBounds, PredicateDelta,
		PredicatePlausibility, PredicateActorAllowlist:
		return true
	default:
		return false
	}
}

// UsesBounds reports whether the kind evaluates static ranges
func (k PredicateKind) UsesBounds() bool {
	return k == PredicateBounds || k == PredicatePlausibility
}

// UsesDelta reports whether the kind evaluates the rolling baseline
func (k PredicateKind) UsesDelta() bool {
	return k == PredicateDelta || k == PredicatePlausibility
}

// Bound is a physical plausibility range. A nil side is unbounded.
type Bound struct {
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Contains reports whether v lies inside the range
func (b Bound) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// Predicate is the closed set of match conditions a rule can express
type Predicate struct {
	EventType     string             `yaml:"event" json:"event" validate:"required"`
	Kind          PredicateKind      `yaml:"kind" json:"kind" validate:"required,oneof=event_type value_in bounds delta plausibility actor_allowlist"`
	Values        []string           `yaml:"values,omitempty" json:"values,omitempty"`
	Bounds        map[string]Bound   `yaml:"bounds,omitempty" json:"bounds,omitempty"`
	Deltas        map[string]float64 `yaml:"delta,omitempty" json:"delta,omitempty"`
	AllowedActors []string           `yaml:"allowed_actors,omitempty" json:"allowed_actors,omitempty"`
}

// SeverityOverride raises the alert severity when any window event carries Value
type SeverityOverride struct {
	Value    string   `yaml:"value" json:"value" validate:"required"`
	Severity Severity `yaml:"severity" json:"severity" validate:"required,oneof=low medium high critical"`
}

// Boost replaces severity and confidence once the matched count reaches MinCount
type Boost struct {
	MinCount   int      `yaml:"min_count" json:"min_count" validate:"min=1"`
	Severity   Severity `yaml:"severity,omitempty" json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Confidence float64  `yaml:"confidence,omitempty" json:"confidence,omitempty" validate:"gte=0,lte=1"`
}

// Escalation looks for a corroborating event on the same source after the window opened
type Escalation struct {
	EventType  string   `yaml:"event" json:"event" validate:"required"`
	Key        string   `yaml:"key,omitempty" json:"key,omitempty"`
	Values     []string `yaml:"values,omitempty" json:"values,omitempty"`
	WithinSec  float64  `yaml:"within_sec" json:"within_sec" validate:"gt=0"`
	Severity   Severity `yaml:"severity" json:"severity" validate:"required,oneof=low medium high critical"`
	Confidence float64  `yaml:"confidence,omitempty" json:"confidence,omitempty" validate:"gte=0,lte=1"`
}

// Rule is one named detection rule. Rules are read-only after load.
type Rule struct {
	ID                string             `yaml:"id" json:"id" validate:"required"`
	Name              string             `yaml:"name" json:"name"`
	Description       string             `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled           *bool              `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	ThreatType        ThreatType         `yaml:"threat_type" json:"threat_type" validate:"required,oneof=credential_attack availability_attack integrity_attack outage"`
	Match             Predicate          `yaml:"match" json:"match"`
	GroupBy           []string           `yaml:"group_by,omitempty" json:"group_by,omitempty"`
	WindowSec         float64            `yaml:"window_sec" json:"window_sec" validate:"gte=0"`
	Threshold         int                `yaml:"threshold" json:"threshold" validate:"min=1"`
	Severity          Severity           `yaml:"severity" json:"severity" validate:"required,oneof=low medium high critical"`
	Confidence        float64            `yaml:"confidence" json:"confidence" validate:"gte=0,lte=1"`
	EdgePenalty       float64            `yaml:"edge_penalty,omitempty" json:"edge_penalty,omitempty" validate:"gte=0,lte=1"`
	ConfidenceStep    float64            `yaml:"confidence_step,omitempty" json:"confidence_step,omitempty" validate:"gte=0,lte=1"`
	SeverityOverrides []SeverityOverride `yaml:"severity_override,omitempty" json:"severity_override,omitempty" validate:"dive"`
	Boost             *Boost             `yaml:"boost,omitempty" json:"boost,omitempty"`
	Escalation        *Escalation        `yaml:"escalation,omitempty" json:"escalation,omitempty"`
	ResponseHint      string             `yaml:"response_hint,omitempty" json:"response_hint,omitempty"`
}

// IsEnabled reports whether the rule takes part in detection. Rules are enabled by default.
func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// GroupFields returns the grouping fields, defaulting to source
func (r *Rule) GroupFields() []string {
	if len(r.GroupBy) == 0 {
		return []string{"source"}
	}
	return r.GroupBy
}

// GroupKey computes the sliding window key of an event. Missing fields become "unknown".
func (r *Rule) GroupKey(e *Event) string {
	fields := r.GroupFields()
	parts := make([]string, len(fields))
	for i, f := range fields {
		v := e.Field(f)
		if v == "" {
			v = "unknown"
		}
		parts[i] = v
	}
	return strings.Join(parts, "|")
}

// EffectiveWindow scales the base window by the policy's window multiplier
func (r *Rule) EffectiveWindow(m Modifier) time.Duration {
	return time.Duration(r.WindowSec * m.WindowMultiplier * float64(time.Second))
}

// EffectiveThreshold scales the base threshold by the policy's threshold multiplier,
// rounding half away from zero, never below one
func (r *Rule) EffectiveThreshold(m Modifier) int {
	t := int(math.Round(float64(r.Threshold) * m.ThresholdMultiplier))
	if t < 1 {
		return 1
	}
	return t
}

// ConfidenceFor returns the alert confidence for a window of count events.
// The result never decreases as count grows past threshold.
func (r *Rule) ConfidenceFor(count, threshold int) float64 {
	c := r.Confidence
	switch {
	case count == threshold:
		c -= r.EdgePenalty
	case count > threshold:
		c += r.ConfidenceStep * float64(count-threshold)
	}
	return clampUnit(c)
}

// Validate performs the semantic checks the struct tags cannot express
func (r *Rule) Validate() error {
	var errs []error

	if !r.ThreatType.IsValid() {
		errs = append(errs, fmt.Errorf("unknown threat_type %q", r.ThreatType))
	}
	if !r.Severity.IsValid() {
		errs = append(errs, fmt.Errorf("unknown severity %q", r.Severity))
	}
	if r.Threshold < 1 {
		errs = append(errs, fmt.Errorf("threshold must be >= 1, got %d", r.Threshold))
	}
	if r.WindowSec < 0 {
		errs = append(errs, fmt.Errorf("window_sec must be >= 0, got %g", r.WindowSec))
	}
	if r.Threshold > 1 && r.WindowSec == 0 {
		errs = append(errs, fmt.Errorf("window_sec must be > 0 when threshold is %d", r.Threshold))
	}
	for _, f := range r.GroupBy {
		if !IsGroupableField(f) {
			errs = append(errs, fmt.Errorf("group_by field %q is not groupable (allowed: %s)", f, strings.Join(GroupableFields, ", ")))
		}
	}

	switch r.Match.Kind {
	case PredicateEventType:
	case PredicateValueIn:
		if len(r.Match.Values) == 0 {
			errs = append(errs, fmt.Errorf("predicate value_in requires values"))
		}
	case PredicateBounds:
		if len(r.Match.Bounds) == 0 {
			errs = append(errs, fmt.Errorf("predicate bounds requires bounds"))
		}
	case PredicateDelta:
		if len(r.Match.Deltas) == 0 {
			errs = append(errs, fmt.Errorf("predicate delta requires delta"))
		}
	case PredicatePlausibility:
		if len(r.Match.Bounds) == 0 && len(r.Match.Deltas) == 0 {
			errs = append(errs, fmt.Errorf("predicate plausibility requires bounds or delta"))
		}
	case PredicateActorAllowlist:
		if len(r.Match.AllowedActors) == 0 {
			errs = append(errs, fmt.Errorf("predicate actor_allowlist requires allowed_actors"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown predicate kind %q", r.Match.Kind))
	}

	for key, b := range r.Match.Bounds {
		if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
			errs = append(errs, fmt.Errorf("bounds for %q: min %g > max %g", key, *b.Min, *b.Max))
		}
	}
	for key, d := range r.Match.Deltas {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("delta for %q must be > 0, got %g", key, d))
		}
	}
	if r.Escalation != nil && !r.Escalation.Severity.IsValid() {
		errs = append(errs, fmt.Errorf("escalation severity %q is invalid", r.Escalation.Severity))
	}

	if len(errs) > 0 {
		return fmt.Errorf("rule %s: %w: %w", r.ID, ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
