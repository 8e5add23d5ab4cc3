// Package localtime renders absolute timestamps as wall-clock strings in the
// office time zone and parses wall-clock form input back into instants.
package localtime

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/ncruces/go-strftime"
)

// DefaultZone is the office time zone.
const DefaultZone = "America/New_York"

// Display patterns, in strftime notation.
const (
	TicketPattern   = "%Y-%m-%d %I:%M %p"
	CalendarPattern = "%m/%d/%Y %I:%M %p"
	FormPattern     = "%Y-%m-%dT%H:%M"
)

// formLayout is FormPattern as a Go reference layout.
const formLayout = "2006-01-02T15:04"

// ErrTimestamp marks a timestamp that cannot be localized. It points to a
// systemic clock or format fault rather than one bad record.
var ErrTimestamp = errors.New("timestamp cannot be localized")

// Localizer converts instants to a fixed zone.
type Localizer struct {
	loc *time.Location
}

// New loads the named IANA zone. An empty name selects DefaultZone.
func New(zone string) (*Localizer, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("localtime: load zone %q: %w", zone, err)
	}
	return &Localizer{loc: loc}, nil
}

// MustNew is New for zone names known at compile time.
func MustNew(zone string) *Localizer {
	l, err := New(zone)
	if err != nil {
		panic(err)
	}
	return l
}

// Location returns the zone this localizer converts into.
func (l *Localizer) Location() *time.Location {
	if l == nil {
		return nil
	}
	return l.loc
}

// In converts t to the local zone.
func (l *Localizer) In(t time.Time) (time.Time, error) {
	if l == nil || l.loc == nil {
		return time.Time{}, fmt.Errorf("%w: no zone loaded", ErrTimestamp)
	}
	if y := t.Year(); y < 1 || y > 9999 {
		return time.Time{}, fmt.Errorf("%w: year %d out of range", ErrTimestamp, y)
	}
	return t.In(l.loc), nil
}

// Localize converts t to the local zone and renders it with pattern.
// The same input always yields the same string.
func (l *Localizer) Localize(t time.Time, pattern string) (string, error) {
	local, err := l.In(t)
	if err != nil {
		return "", err
	}
	return strftime.Format(pattern, local), nil
}

// ParseLocal reads a "YYYY-MM-DDThh:mm" wall-clock value as local time.
// Wall-clock values skipped by a spring-forward transition are rejected;
// values repeated by a fall-back transition resolve to standard time, the
// later of the two instants.
func (l *Localizer) ParseLocal(s string) (time.Time, error) {
	if l == nil || l.loc == nil {
		return time.Time{}, fmt.Errorf("%w: no zone loaded", ErrTimestamp)
	}
	t, err := time.ParseInLocation(formLayout, s, l.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("localtime: parse %q: %w", s, err)
	}
	if t.Format(formLayout) != s {
		return time.Time{}, fmt.Errorf("localtime: %s does not exist in %s", s, l.loc)
	}
	return laterOfRepeated(t, s), nil
}

// laterOfRepeated returns the second occurrence of wall clock s when the
// zone's offset drops shortly after t, so the same wall clock happens twice.
func laterOfRepeated(t time.Time, s string) time.Time {
	_, off := t.Zone()
	_, offAfter := t.Add(3 * time.Hour).Zone()
	if offAfter >= off {
		return t
	}
	later := t.Add(time.Duration(off-offAfter) * time.Second)
	if later.Format(formLayout) == s {
		return later
	}
	return t
}
