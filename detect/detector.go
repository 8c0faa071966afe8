package detect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cyberres/core"
	"cyberres/metrics"

	"go.uber.org/zap"
)

// scenarioTagPrefix marks the event tag carrying the evaluation scenario label
const scenarioTagPrefix = "scenario:"

// Stats summarises one detection pass
type Stats struct {
	EventsScanned    int            `json:"events_scanned"`
	Matched          int            `json:"matched"`
	UnparsableValues int            `json:"unparsable_values"`
	AlertsByRule     map[string]int `json:"alerts_by_rule"`
}

// Detector turns an ordered event sequence into alerts using a fixed rule catalog.
// A Detector holds no state between passes and is safe for concurrent use.
type Detector struct {
	rules        []core.Rule
	baselineSize int
	logger       *zap.SugaredLogger
}

// Option configures a Detector
type Option func(*Detector)

// WithBaselineSize bounds the delta baseline tracker of each rule
func WithBaselineSize(n int) Option {
	return func(d *Detector) {
		d.baselineSize = n
	}
}

// NewDetector creates a detector over the given rules. Rule order is the catalog
// order used to break timestamp ties between alerts.
func NewDetector(rules []core.Rule, logger *zap.SugaredLogger, opts ...Option) *Detector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Detector{
		rules:        rules,
		baselineSize: DefaultBaselineSize,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Rules returns the catalog the detector runs
func (d *Detector) Rules() []core.Rule {
	return d.rules
}

type pendingAlert struct {
	alert     core.Alert
	trigger   *core.Event
	ruleIndex int
}

// Detect runs every enabled rule over events under the given policy modifiers.
// Alerts are ordered by triggering timestamp, then rule order, then emission
// order, and numbered from ALR-0001.
func (d *Detector) Detect(events []*core.Event, mods core.Modifiers, policy string) ([]core.Alert, Stats, error) {
	ordered := events
	less := func(i, j int) bool { return core.EventBefore(ordered[i], ordered[j]) }
	if !sort.SliceIsSorted(ordered, less) {
		ordered = append([]*core.Event(nil), events...)
		sort.SliceStable(ordered, less)
	}

	stats := Stats{
		EventsScanned: len(ordered),
		AlertsByRule:  make(map[string]int),
	}

	var pending []pendingAlert
	for ri := range d.rules {
		rule := &d.rules[ri]
		if !rule.IsEnabled() {
			continue
		}

		mod := mods.For(rule.ThreatType)
		width := rule.EffectiveWindow(mod)
		threshold := rule.EffectiveThreshold(mod)

		m, err := newMatcher(&rule.Match, d.baselineSize)
		if err != nil {
			return nil, stats, fmt.Errorf("rule %s: %w", rule.ID, err)
		}

		windows := make(windowSet)
		for _, e := range ordered {
			if !m.match(e, &stats) {
				continue
			}
			stats.Matched++

			key := rule.GroupKey(e)
			var members []*core.Event
			if threshold == 1 {
				members = []*core.Event{e}
			} else {
				w := windows.get(key)
				if w.add(e, width) < threshold {
					continue
				}
				members = w.drain()
			}

			pending = append(pending, pendingAlert{
				alert:     buildAlert(rule, members, e, key, threshold, width, ordered, policy),
				trigger:   e,
				ruleIndex: ri,
			})
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if !a.trigger.Timestamp.Equal(b.trigger.Timestamp) {
			return a.trigger.Timestamp.Before(b.trigger.Timestamp)
		}
		return a.ruleIndex < b.ruleIndex
	})

	alerts := make([]core.Alert, len(pending))
	for i := range pending {
		alert := pending[i].alert
		alert.AlertID = core.FormatAlertID(i + 1)
		if err := alert.CheckContract(); err != nil {
			return nil, stats, err
		}
		alerts[i] = alert
		stats.AlertsByRule[alert.RuleID]++
		metrics.AlertsGenerated.WithLabelValues(policy, string(alert.ThreatType)).Inc()
	}

	d.logger.Debugw("Detection pass complete",
		"policy", policy,
		"events", stats.EventsScanned,
		"matched", stats.Matched,
		"alerts", len(alerts),
		"unparsable_values", stats.UnparsableValues)

	return alerts, stats, nil
}

func buildAlert(rule *core.Rule, members []*core.Event, trigger *core.Event, key string, threshold int, width time.Duration, all []*core.Event, policy string) core.Alert {
	count := len(members)
	first := members[0]

	severity := rule.Severity
	confidence := rule.ConfidenceFor(count, threshold)

	for _, ov := range rule.SeverityOverrides {
		if anyValue(members, ov.Value) {
			severity = ov.Severity
			break
		}
	}
	if b := rule.Boost; b != nil && count >= b.MinCount {
		if b.Severity != "" {
			severity = b.Severity
		}
		if b.Confidence > 0 {
			confidence = b.Confidence
		}
	}

	escalated := false
	if esc := rule.Escalation; esc != nil && corroborated(esc, first, all) {
		severity = esc.Severity
		if esc.Confidence > 0 {
			confidence = esc.Confidence
		}
		escalated = true
	}

	ids := make([]string, count)
	for i, e := range members {
		ids[i] = e.EventID()
	}

	return core.Alert{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		ThreatType:     rule.ThreatType,
		EventIDs:       ids,
		Timestamp:      trigger.Timestamp,
		StartTs:        first.Timestamp,
		Source:         trigger.Source,
		Component:      first.Component,
		Severity:       severity,
		Confidence:     confidence,
		Description:    describe(rule, members, key, width, escalated),
		Policy:         policy,
		CorrelationIDs: correlationIDs(members),
		ScenarioTag:    scenarioTag(members),
		ResponseHint:   rule.ResponseHint,
		FirstSeq:       first.Seq,
	}
}

// corroborated looks for an escalation event on the same source within
// WithinSec of the window start, anywhere in the pass
func corroborated(esc *core.Escalation, first *core.Event, all []*core.Event) bool {
	limit := first.Timestamp.Add(time.Duration(esc.WithinSec * float64(time.Second)))
	start := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(first.Timestamp)
	})
	for _, e := range all[start:] {
		if e.Timestamp.After(limit) {
			break
		}
		if e.EventType != esc.EventType || e.Source != first.Source {
			continue
		}
		if esc.Key != "" && e.Key != esc.Key {
			continue
		}
		if len(esc.Values) > 0 && !containsString(esc.Values, e.Value) {
			continue
		}
		return true
	}
	return false
}

func describe(rule *core.Rule, members []*core.Event, key string, width time.Duration, escalated bool) string {
	name := rule.Name
	if name == "" {
		name = rule.ID
	}

	var b strings.Builder
	switch rule.Match.Kind {
	case core.PredicateBounds, core.PredicateDelta, core.PredicatePlausibility:
		fmt.Fprintf(&b, "%s: %d out-of-range %s readings on %s", name, len(members), members[0].Key, key)
	case core.PredicateActorAllowlist:
		fmt.Fprintf(&b, "%s: %d %s by non-allowed actor(s) on %s", name, len(members), rule.Match.EventType, key)
	default:
		fmt.Fprintf(&b, "%s: %d %s events on %s", name, len(members), rule.Match.EventType, key)
	}
	if len(members) > 1 && width > 0 {
		fmt.Fprintf(&b, " within %.0fs", width.Seconds())
	}
	if rule.Match.Kind == core.PredicateValueIn {
		fmt.Fprintf(&b, " (values: %s)", strings.Join(distinctValues(members), ", "))
	}
	if escalated {
		b.WriteString(" + service impact")
	}
	return b.String()
}

func correlationIDs(members []*core.Event) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range members {
		if e.CorrelationID == "" {
			continue
		}
		if _, ok := seen[e.CorrelationID]; ok {
			continue
		}
		seen[e.CorrelationID] = struct{}{}
		out = append(out, e.CorrelationID)
	}
	sort.Strings(out)
	return out
}

func scenarioTag(members []*core.Event) string {
	for _, e := range members {
		for _, t := range e.Tags {
			if strings.HasPrefix(t, scenarioTagPrefix) {
				return strings.TrimPrefix(t, scenarioTagPrefix)
			}
		}
	}
	return ""
}

func distinctValues(members []*core.Event) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range members {
		if _, ok := seen[e.Value]; ok {
			continue
		}
		seen[e.Value] = struct{}{}
		out = append(out, e.Value)
	}
	return out
}

func anyValue(members []*core.Event, value string) bool {
	for _, e := range members {
		if e.Value == value {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
