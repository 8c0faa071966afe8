package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event is one atomic observation ingested from the monitored environment
type Event struct {
	// Seq is the position in the ingested stream, starting at 1
	Seq           int       `json:"-"`
	Timestamp     time.Time `json:"timestamp" validate:"required"`
	Source        string    `json:"source" validate:"required"`
	Component     Component `json:"component" validate:"required,oneof=edge api db ui collector inverter network"`
	EventType     string    `json:"event" validate:"required"`
	Actor         string    `json:"actor,omitempty"`
	IP            string    `json:"ip,omitempty"`
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	Unit          string    `json:"unit,omitempty"`
	Severity      Severity  `json:"severity" validate:"required,oneof=low medium high critical"`
	Tags          []string  `json:"tags,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventID returns the stable identifier derived from the ingestion sequence
func (e *Event) EventID() string {
	return FormatEventID(e.Seq)
}

// FormatEventID renders a sequence number as an event id
func FormatEventID(seq int) string {
	return fmt.Sprintf("EVT-%06d", seq)
}

// Field returns a named event field for grouping and matching.
// Unknown names return the empty string.
func (e *Event) Field(name string) string {
	switch name {
	case "source":
		return e.Source
	case "component":
		return string(e.Component)
	case "event", "event_type":
		return e.EventType
	case "actor":
		return e.Actor
	case "ip":
		return e.IP
	case "key":
		return e.Key
	case "value":
		return e.Value
	case "unit":
		return e.Unit
	case "severity":
		return string(e.Severity)
	case "correlation_id":
		return e.CorrelationID
	default:
		return ""
	}
}

// GroupableFields lists the event fields a rule may group by
var GroupableFields = []string{"source", "component", "event_type", "actor", "ip", "key", "unit", "correlation_id"}

// IsGroupableField reports whether name can be used in a rule's group_by
func IsGroupableField(name string) bool {
	for _, f := range GroupableFields {
		if f == name {
			return true
		}
	}
	return false
}

// ParseTags splits a tag string on ';' or '|' into a sorted set
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '|' })
	return NormalizeTags(parts)
}

// NormalizeTags trims, de-duplicates and sorts tags
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// EventBefore orders events by timestamp, then by ingestion sequence
func EventBefore(a, b *Event) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.Seq < b.Seq
	}
	return a.Timestamp.Before(b.Timestamp)
}

// EventSpan returns the seconds between the earliest and latest event
func EventSpan(events []*Event) float64 {
	if len(events) < 2 {
		return 0
	}
	first, last := events[0].Timestamp, events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	return last.Sub(first).Seconds()
}
