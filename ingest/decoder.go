// Package ingest reads event streams in CSV, JSONL and MessagePack form,
// validates each record and numbers accepted events in arrival order.
package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cyberres/core"
	"cyberres/metrics"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultReorderSlack is how far behind the newest event a record may arrive
// before it is counted as late
const DefaultReorderSlack = 60 * time.Second

// Reject reasons
const (
	ReasonBadRecord      = "bad_record"
	ReasonColumnCount    = "column_count"
	ReasonBadTimestamp   = "bad_timestamp"
	ReasonMissingField   = "missing_field"
	ReasonInvalidEnum    = "invalid_enum"
	ReasonInvalidPayload = "invalid_payload"
)

var validate = validator.New()

// Columns is the canonical event column order of the CSV format
var Columns = []string{
	"timestamp", "source", "component", "event", "actor", "ip",
	"key", "value", "unit", "severity", "tags", "correlation_id",
}

// RejectCounts counts skipped records by reason
type RejectCounts map[string]int

// Total returns the number of skipped records
func (r RejectCounts) Total() int {
	n := 0
	for _, c := range r {
		n += c
	}
	return n
}

// Reasons returns the reasons in sorted order
func (r RejectCounts) Reasons() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Decoder turns raw records into validated events. It assigns sequence
// numbers, counts rejects by reason and tracks late arrivals. A Decoder is
// not safe for concurrent use.
type Decoder struct {
	format  Format
	slack   time.Duration
	seq     int
	latest  time.Time
	late    int
	rejects RejectCounts
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithReorderSlack sets the tolerated out-of-order distance
func WithReorderSlack(d time.Duration) DecoderOption {
	return func(dec *Decoder) {
		if d >= 0 {
			dec.slack = d
		}
	}
}

// WithWarnLimit bounds reject warnings to perSecond with the given burst
func WithWarnLimit(perSecond float64, burst int) DecoderOption {
	return func(dec *Decoder) {
		dec.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewDecoder creates a decoder for one input stream
func NewDecoder(format Format, logger *zap.SugaredLogger, opts ...DecoderOption) *Decoder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Decoder{
		format:  format,
		slack:   DefaultReorderSlack,
		rejects: make(RejectCounts),
		limiter: rate.NewLimiter(rate.Every(time.Second), 10),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Accepted returns the number of events accepted so far
func (d *Decoder) Accepted() int {
	return d.seq
}

// Late returns the number of accepted events older than the slack allows
func (d *Decoder) Late() int {
	return d.late
}

// Rejects returns a copy of the reject counts
func (d *Decoder) Rejects() RejectCounts {
	out := make(RejectCounts, len(d.rejects))
	for k, v := range d.rejects {
		out[k] = v
	}
	return out
}

// Reset restarts numbering and counting, used when the input is truncated
func (d *Decoder) Reset() {
	d.seq = 0
	d.latest = time.Time{}
	d.late = 0
	d.rejects = make(RejectCounts)
}

// reject counts one skipped record and warns at a bounded rate
func (d *Decoder) reject(reason string, record int, err error) {
	d.rejects[reason]++
	metrics.EventsRejected.WithLabelValues(reason).Inc()
	if d.limiter.Allow() {
		d.logger.Warnw("Skipping malformed record",
			"format", d.format,
			"record", record,
			"reason", reason,
			"error", err)
	}
}

// decode builds an event from named fields. record is the 1-based position
// in the stream and only used for diagnostics.
func (d *Decoder) decode(fields map[string]string, record int) (*core.Event, bool) {
	e, reason, err := buildEvent(fields)
	if err != nil {
		d.reject(reason, record, err)
		return nil, false
	}

	if !d.latest.IsZero() && e.Timestamp.Before(d.latest.Add(-d.slack)) {
		d.late++
		if d.limiter.Allow() {
			d.logger.Warnw("Event arrived out of order beyond slack",
				"record", record,
				"timestamp", e.Timestamp,
				"newest", d.latest,
				"slack", d.slack)
		}
	}
	if e.Timestamp.After(d.latest) {
		d.latest = e.Timestamp
	}

	d.seq++
	e.Seq = d.seq
	metrics.EventsIngested.WithLabelValues(string(d.format)).Inc()
	return e, true
}

func buildEvent(fields map[string]string) (*core.Event, string, error) {
	get := func(name string) string { return strings.TrimSpace(fields[name]) }

	raw := get("timestamp")
	if raw == "" {
		return nil, ReasonMissingField, fmt.Errorf("%w: timestamp is empty", core.ErrMalformedEvent)
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return nil, ReasonBadTimestamp, err
	}

	eventType := get("event")
	if eventType == "" {
		eventType = get("event_type")
	}
	severity := core.Severity(strings.ToLower(get("severity")))
	if severity == "" {
		severity = core.SeverityLow
	}

	e := &core.Event{
		Timestamp:     ts,
		Source:        get("source"),
		Component:     core.Component(strings.ToLower(get("component"))),
		EventType:     eventType,
		Actor:         get("actor"),
		IP:            get("ip"),
		Key:           get("key"),
		Value:         fields["value"],
		Unit:          get("unit"),
		Severity:      severity,
		Tags:          core.ParseTags(fields["tags"]),
		CorrelationID: get("correlation_id"),
	}

	if err := validate.Struct(e); err != nil {
		return nil, validationReason(err), fmt.Errorf("%w: %v", core.ErrMalformedEvent, err)
	}
	return e, "", nil
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ReasonBadRecord
	}
	switch verrs[0].Tag() {
	case "required":
		return ReasonMissingField
	case "oneof":
		return ReasonInvalidEnum
	default:
		return ReasonBadRecord
	}
}

// ParseTimestamp parses an ISO-8601 instant with a 'Z' or numeric offset and
// returns it in UTC
func ParseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", core.ErrMalformedEvent, s)
	}
	return ts.UTC(), nil
}
