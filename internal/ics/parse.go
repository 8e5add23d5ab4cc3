// Package ics imports meetings from an iCalendar feed and expands recurring
// meetings into individual calendar events.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// VEvent is one VEVENT as read from a feed, before recurrence expansion.
type VEvent struct {
	UID      string
	Summary  string
	Location string
	Body     string

	Start time.Time
	End   time.Time

	RRule      string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID of an overridden instance
}

// IsOverride reports whether the event replaces one instance of a series.
func (e VEvent) IsOverride() bool {
	return e.Recurrence != nil
}

// Parse reads every VEVENT in body. Events that cannot be read are logged
// and skipped.
func Parse(body []byte, logger *slog.Logger) ([]VEvent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty feed")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse: %w", err)
	}

	var events []VEvent
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(comp)
		if err != nil {
			logger.Warn("skipping vevent", "error", err)
			continue
		}
		events = append(events, ev)
	}
	logger.Debug("ics parsed", "events", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (VEvent, error) {
	var out VEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	out.Body = body(ve)

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("%s: DTSTART: %w", out.UID, err)
	}
	out.Start = start
	end, err := ve.GetEndAt()
	if err != nil {
		// DTEND is optional; a missing one means a zero-length meeting.
		end = start
	}
	out.End = end

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), tzidOf(p.ICalParameters)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		t, err := parseICSTime(p.Value, tzidOf(p.ICalParameters))
		if err != nil {
			return out, fmt.Errorf("%s: RECURRENCE-ID: %w", out.UID, err)
		}
		out.Recurrence = &t
	}
	return out, nil
}

// body prefers the HTML description Outlook exports as X-ALT-DESC.
func body(ve *ical.VEvent) string {
	if p := ve.GetProperty("X-ALT-DESC"); p != nil && p.Value != "" {
		return unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		return unescapeText(p.Value)
	}
	return ""
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}

func tzidOf(params map[string][]string) string {
	if v := params["TZID"]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// parseICSTime parses an EXDATE or RECURRENCE-ID value. Floating times use
// tzid when it names a known zone and UTC otherwise.
func parseICSTime(v, tzid string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	loc := time.UTC
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
