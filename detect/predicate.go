package detect

import (
	"math"
	"strconv"
	"strings"

	"cyberres/core"
)

// matcher evaluates one rule's predicate. It is stateful for delta kinds and
// must see the events of a pass in order.
type matcher struct {
	pred     *core.Predicate
	values   map[string]struct{}
	allowed  map[string]struct{}
	baseline *BaselineTracker
}

func newMatcher(pred *core.Predicate, baselineSize int) (*matcher, error) {
	m := &matcher{pred: pred}

	if pred.Kind == core.PredicateValueIn {
		m.values = make(map[string]struct{}, len(pred.Values))
		for _, v := range pred.Values {
			m.values[v] = struct{}{}
		}
	}
	if pred.Kind == core.PredicateActorAllowlist {
		m.allowed = make(map[string]struct{}, len(pred.AllowedActors))
		for _, a := range pred.AllowedActors {
			m.allowed[normalizeActor(a)] = struct{}{}
		}
	}
	if pred.Kind.UsesDelta() {
		b, err := NewBaselineTracker(baselineSize)
		if err != nil {
			return nil, err
		}
		m.baseline = b
	}
	return m, nil
}

// match reports whether the event satisfies the predicate. Values that do not
// parse as numbers for a numeric kind are counted in stats and never match.
// The event's own severity plays no part.
func (m *matcher) match(e *core.Event, stats *Stats) bool {
	if e.EventType != m.pred.EventType {
		return false
	}

	switch m.pred.Kind {
	case core.PredicateEventType:
		return true
	case core.PredicateValueIn:
		_, ok := m.values[e.Value]
		return ok
	case core.PredicateActorAllowlist:
		actor := normalizeActor(e.Actor)
		if actor == "" {
			return true
		}
		_, ok := m.allowed[actor]
		return !ok
	case core.PredicateBounds, core.PredicateDelta, core.PredicatePlausibility:
		return m.matchNumeric(e, stats)
	default:
		return false
	}
}

func (m *matcher) matchNumeric(e *core.Event, stats *Stats) bool {
	var (
		bound    core.Bound
		hasBound bool
		limit    float64
		hasDelta bool
	)
	if m.pred.Kind.UsesBounds() {
		bound, hasBound = m.pred.Bounds[e.Key]
	}
	if m.pred.Kind.UsesDelta() {
		limit, hasDelta = m.pred.Deltas[e.Key]
	}
	if !hasBound && !hasDelta {
		return false
	}

	v, ok := parseReading(e.Value)
	if !ok {
		stats.UnparsableValues++
		return false
	}

	anomaly := hasBound && !bound.Contains(v)
	if hasDelta {
		prev, seen := m.baseline.Observe(e.Source, e.Key, v)
		if seen && math.Abs(v-prev) > limit {
			anomaly = true
		}
	}
	return anomaly
}

// parseReading parses a textual value as a finite number
func parseReading(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func normalizeActor(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}
