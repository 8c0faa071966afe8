package service

import (
	"context"
	"time"

	"cyberres/ingest"
	"cyberres/metrics"
	"cyberres/report"
)

// Watch follows the input file until ctx is cancelled. Each poll appends new
// events to the buffer and recomputes every policy over the whole buffer, so
// results never depend on how the stream was split across polls. An existing
// file is loaded by the first poll. Cancellation is honoured between cycles.
func (e *Evaluator) Watch(ctx context.Context) error {
	tailer := ingest.NewTailer(e.settings.Input, e.settings.Format, e.logger,
		ingest.WithReorderSlack(e.settings.ReorderSlack))
	buf := ingest.NewBuffer()
	retired := make(map[string]int)

	e.logger.Infow("Watching input",
		"path", e.settings.Input,
		"format", tailer.Format(),
		"poll_interval", e.settings.PollInterval,
		"policies", len(e.policies))

	cycle := 0
	step := func() {
		if c, ok := e.poll(ctx, tailer, buf, retired, cycle+1); ok {
			cycle = c
		}
	}

	step()
	ticker := time.NewTicker(e.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Infow("Watch stopped", "cycles", cycle, "events", buf.Len())
			return nil
		case <-ticker.C:
			step()
		}
	}
}

// poll runs one watch cycle. It reports false when nothing changed and no
// recomputation happened.
func (e *Evaluator) poll(ctx context.Context, tailer *ingest.Tailer, buf *ingest.Buffer, retired map[string]int, cycle int) (int, bool) {
	up, err := tailer.Poll()
	if err != nil {
		e.logger.Warnw("Failed to read appended input", "path", e.settings.Input, "error", err)
		return 0, false
	}
	if up.Reset {
		buf.Reset()
		clear(retired)
	}
	if len(up.Events) == 0 && !up.Reset {
		return 0, false
	}

	buf.Append(up.Events...)
	if e.settings.HorizonDays > 0 {
		horizon := time.Duration(e.settings.HorizonDays * 24 * float64(time.Hour))
		cutoff := buf.Watermark().Add(-horizon)
		if dropped := buf.TrimBefore(cutoff); dropped > 0 {
			retire(e.Latest(), cutoff, retired)
			e.logger.Debugw("Dropped events outside the horizon", "dropped", dropped, "retired", retired)
		}
	}
	metrics.BufferedEvents.Set(float64(buf.Len()))

	if ctx.Err() != nil {
		return 0, false
	}
	events := buf.Snapshot()
	if len(events) == 0 {
		return 0, false
	}

	start := e.now()
	snap, err := e.evaluate(ctx, ModeWatch, cycle, events, tailer.Rejects(), tailer.Late(), buf.Watermark(), retired)
	if err != nil {
		e.logger.Errorw("Watch cycle failed", "cycle", cycle, "error", err)
		return 0, false
	}
	metrics.WatchCycles.Inc()
	if err := e.publish(snap); err != nil {
		e.logger.Errorw("Failed to publish snapshot", "cycle", cycle, "error", err)
	}

	e.logger.Infow("Watch cycle complete",
		"cycle", cycle,
		"new_events", len(up.Events),
		"buffered", len(events),
		"rejected", snap.Rejected(),
		"duration", e.now().Sub(start))
	return cycle, true
}

// retire adds, per policy, the incidents of the previous cycle whose alerts
// all fired before cutoff. Their events are gone from the buffer, so the next
// pass numbers its incidents after them.
func retire(prev *report.Snapshot, cutoff time.Time, retired map[string]int) {
	if prev == nil {
		return
	}
	for name, res := range prev.Results {
		if res == nil || res.Err != nil {
			continue
		}
		fired := make(map[string]time.Time, len(res.Alerts))
		for _, a := range res.Alerts {
			fired[a.AlertID] = a.Timestamp
		}
		for _, inc := range res.Incidents {
			gone := true
			for _, id := range inc.AlertIDs {
				if !fired[id].Before(cutoff) {
					gone = false
					break
				}
			}
			if gone {
				retired[name]++
			}
		}
	}
}
