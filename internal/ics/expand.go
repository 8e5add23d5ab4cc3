package ics

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/ticketview/ticketview/pkg/protocol"
)

// maxOccurrences caps the expansion of a single series.
const maxOccurrences = 5000

// Expand turns parsed events into calendar events starting within
// [from, until], most recent first. Recurring series are expanded with
// their EXDATEs removed and their overridden instances replaced.
func Expand(events []VEvent, from, until time.Time, logger *slog.Logger) []protocol.CalendarEventRecord {
	if logger == nil {
		logger = slog.Default()
	}

	overrides := make(map[string][]VEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	var out []protocol.CalendarEventRecord
	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		if ev.RRule == "" {
			if inRange(ev.Start, from, until) {
				out = append(out, record(ev, ev.Start, ev.End))
			}
			continue
		}
		out = append(out, expandSeries(ev, overrides[ev.UID], from, until, logger)...)
	}

	// Overrides moved into the range from outside it are not reached through
	// their series, so pick them up directly.
	for _, ovs := range overrides {
		for _, ov := range ovs {
			if !inRange(*ov.Recurrence, from, until) && inRange(ov.Start, from, until) {
				out = append(out, record(ov, ov.Start, ov.End))
			}
		}
	}

	slices.SortStableFunc(out, func(a, b protocol.CalendarEventRecord) int {
		if c := b.Start.Compare(a.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.UID, b.UID)
	})
	return out
}

func expandSeries(ev VEvent, overrides []VEvent, from, until time.Time, logger *slog.Logger) []protocol.CalendarEventRecord {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		logger.Warn("skipping series with bad RRULE", "uid", ev.UID, "rrule", ev.RRule, "error", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(from.In(ev.Start.Location()), until.In(ev.Start.Location()), true)
	if len(starts) > maxOccurrences {
		logger.Warn("series truncated", "uid", ev.UID, "cap", maxOccurrences)
		starts = starts[len(starts)-maxOccurrences:]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]protocol.CalendarEventRecord, 0, len(starts))
	for _, start := range starts {
		if ov, ok := findOverride(overrides, start); ok {
			if inRange(ov.Start, from, until) {
				out = append(out, record(ov, ov.Start, ov.End))
			}
			continue
		}
		out = append(out, record(ev, start, start.Add(dur)))
	}
	return out
}

func findOverride(overrides []VEvent, start time.Time) (VEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return VEvent{}, false
}

func inRange(t, from, until time.Time) bool {
	return !t.Before(from) && !t.After(until)
}

func record(ev VEvent, start, end time.Time) protocol.CalendarEventRecord {
	return protocol.CalendarEventRecord{
		UID:      ev.UID,
		Subject:  ev.Summary,
		Start:    start.UTC(),
		End:      end.UTC(),
		Location: ev.Location,
		Body:     ev.Body,
	}
}
