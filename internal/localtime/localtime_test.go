package localtime

import (
	"errors"
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestLocalize_SpringForward(t *testing.T) {
	l := MustNew(DefaultZone)

	before, err := l.Localize(mustParse(t, "2024-03-10T06:59:00Z"), TicketPattern)
	if err != nil {
		t.Fatalf("localize: %v", err)
	}
	if before != "2024-03-10 01:59 AM" {
		t.Errorf("before = %q", before)
	}

	after, err := l.Localize(mustParse(t, "2024-03-10T07:01:00Z"), TicketPattern)
	if err != nil {
		t.Fatalf("localize: %v", err)
	}
	if after != "2024-03-10 03:01 AM" {
		t.Errorf("after = %q", after)
	}
}

func TestLocalize_FallBack(t *testing.T) {
	l := MustNew(DefaultZone)

	// 05:30Z is 01:30 EDT, 06:30Z is 01:30 EST.
	first, _ := l.Localize(mustParse(t, "2024-11-03T05:30:00Z"), CalendarPattern)
	second, _ := l.Localize(mustParse(t, "2024-11-03T06:30:00Z"), CalendarPattern)
	if first != "11/03/2024 01:30 AM" || second != "11/03/2024 01:30 AM" {
		t.Errorf("first = %q, second = %q", first, second)
	}
}

func TestLocalize_Patterns(t *testing.T) {
	l := MustNew(DefaultZone)
	ts := mustParse(t, "2024-07-04T18:05:00Z")

	cases := map[string]string{
		TicketPattern:   "2024-07-04 02:05 PM",
		CalendarPattern: "07/04/2024 02:05 PM",
		FormPattern:     "2024-07-04T14:05",
	}
	for pattern, want := range cases {
		got, err := l.Localize(ts, pattern)
		if err != nil {
			t.Fatalf("localize %q: %v", pattern, err)
		}
		if got != want {
			t.Errorf("pattern %q = %q, want %q", pattern, got, want)
		}
	}
}

func TestLocalize_Idempotent(t *testing.T) {
	l := MustNew(DefaultZone)
	ts := mustParse(t, "2024-01-15T12:00:00Z")

	a, _ := l.Localize(ts, TicketPattern)
	b, _ := l.Localize(ts, TicketPattern)
	if a != b {
		t.Errorf("a = %q, b = %q", a, b)
	}
}

func TestLocalize_Midnight(t *testing.T) {
	l := MustNew(DefaultZone)
	got, _ := l.Localize(mustParse(t, "2024-01-15T05:00:00Z"), TicketPattern)
	if got != "2024-01-15 12:00 AM" {
		t.Errorf("got %q", got)
	}
}

func TestLocalize_OutOfRange(t *testing.T) {
	l := MustNew(DefaultZone)
	_, err := l.Localize(time.Time{}.Add(-time.Hour), TicketPattern)
	if !errors.Is(err, ErrTimestamp) {
		t.Errorf("expected ErrTimestamp, got %v", err)
	}
}

func TestLocalize_NilLocalizer(t *testing.T) {
	var l *Localizer
	_, err := l.Localize(time.Now(), TicketPattern)
	if !errors.Is(err, ErrTimestamp) {
		t.Errorf("expected ErrTimestamp, got %v", err)
	}
}

func TestNew_UnknownZone(t *testing.T) {
	if _, err := New("Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestParseLocal(t *testing.T) {
	l := MustNew(DefaultZone)

	got, err := l.ParseLocal("2024-07-04T09:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(mustParse(t, "2024-07-04T13:30:00Z")) {
		t.Errorf("got %v", got.UTC())
	}

	winter, err := l.ParseLocal("2024-01-04T09:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !winter.Equal(mustParse(t, "2024-01-04T14:30:00Z")) {
		t.Errorf("winter = %v", winter.UTC())
	}
}

func TestParseLocal_Gap(t *testing.T) {
	l := MustNew(DefaultZone)
	if _, err := l.ParseLocal("2024-03-10T02:30"); err == nil {
		t.Fatal("expected error for skipped wall-clock time")
	}
}

func TestParseLocal_FallBackAmbiguous(t *testing.T) {
	l := MustNew(DefaultZone)

	// 01:30 happens twice on 2024-11-03; standard time is the later one.
	got, err := l.ParseLocal("2024-11-03T01:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(mustParse(t, "2024-11-03T06:30:00Z")) {
		t.Errorf("got %v, want 06:30Z", got.UTC())
	}
	if name, off := got.Zone(); name != "EST" || off != -5*3600 {
		t.Errorf("zone = %s %d", name, off)
	}

	// Either side of the repeated hour is unambiguous.
	before, err := l.ParseLocal("2024-11-03T00:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !before.Equal(mustParse(t, "2024-11-03T04:30:00Z")) {
		t.Errorf("before = %v", before.UTC())
	}
	after, err := l.ParseLocal("2024-11-03T02:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !after.Equal(mustParse(t, "2024-11-03T07:30:00Z")) {
		t.Errorf("after = %v", after.UTC())
	}
}

func TestParseLocal_Malformed(t *testing.T) {
	l := MustNew(DefaultZone)
	for _, s := range []string{"", "2024-07-04", "07/04/2024 09:30", "2024-13-01T09:30"} {
		if _, err := l.ParseLocal(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}
