package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ticketview/ticketview/pkg/protocol"
)

var testFeed = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//ticketview//test//EN",
	"BEGIN:VEVENT",
	"UID:single-1",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20240501T140000Z",
	"DTEND:20240501T150000Z",
	"SUMMARY:Client call",
	"LOCATION:Teams",
	`DESCRIPTION:Line one\nLine two`,
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20240401T130000Z",
	"DTEND:20240401T133000Z",
	"RRULE:FREQ=WEEKLY;COUNT=6",
	"EXDATE:20240415T130000Z",
	"SUMMARY:Standup",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"DTSTAMP:20240101T000000Z",
	"RECURRENCE-ID:20240422T130000Z",
	"DTSTART:20240423T160000Z",
	"DTEND:20240423T163000Z",
	"SUMMARY:Standup (moved)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:html-1",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20240301T130000Z",
	"DTEND:20240301T140000Z",
	"SUMMARY:Review",
	"DESCRIPTION:plain fallback",
	"X-ALT-DESC;FMTTYPE=text/html:<html><body>Rich</body></html>",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:future-1",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20240601T130000Z",
	"DTEND:20240601T140000Z",
	"SUMMARY:Future",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20240502T130000Z",
	"SUMMARY:No UID",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

var (
	testFrom  = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	testUntil = time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
)

func subjects(recs []protocol.CalendarEventRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Subject
	}
	return out
}

func TestParse(t *testing.T) {
	events, err := Parse([]byte(testFeed), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events (one without UID skipped), got %d", len(events))
	}

	single := events[0]
	if single.UID != "single-1" || single.Location != "Teams" {
		t.Errorf("single = %+v", single)
	}
	if single.Body != "Line one\nLine two" {
		t.Errorf("body = %q", single.Body)
	}
	if !single.Start.Equal(time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", single.Start)
	}

	weekly := events[1]
	if weekly.RRule != "FREQ=WEEKLY;COUNT=6" || len(weekly.ExDates) != 1 {
		t.Errorf("weekly = %+v", weekly)
	}
	if !events[2].IsOverride() {
		t.Error("expected override")
	}
	if events[3].Body != "<html><body>Rich</body></html>" {
		t.Errorf("html body = %q", events[3].Body)
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse([]byte("  \n"), nil); err == nil {
		t.Error("expected error for empty feed")
	}
}

func TestExpand_MostRecentFirst(t *testing.T) {
	events, err := Parse([]byte(testFeed), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := Expand(events, testFrom, testUntil, nil)

	want := []string{"Client call", "Standup", "Standup (moved)", "Standup", "Standup"}
	if !slices.Equal(subjects(got), want) {
		t.Fatalf("subjects = %v, want %v", subjects(got), want)
	}

	wantStarts := []time.Time{
		time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 29, 13, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 23, 16, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 8, 13, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 1, 13, 0, 0, 0, time.UTC),
	}
	for i, w := range wantStarts {
		if !got[i].Start.Equal(w) {
			t.Errorf("start[%d] = %v, want %v", i, got[i].Start, w)
		}
	}
	if d := got[1].End.Sub(got[1].Start); d != 30*time.Minute {
		t.Errorf("occurrence duration = %v", d)
	}
}

func TestExpand_OverrideMovedIntoRange(t *testing.T) {
	rid := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	events := []VEvent{
		{UID: "s", Summary: "series", Start: rid, End: rid.Add(time.Hour), RRule: "FREQ=DAILY;COUNT=1"},
		{UID: "s", Summary: "moved", Start: testFrom.Add(time.Hour), End: testFrom.Add(2 * time.Hour), Recurrence: &rid},
	}
	got := Expand(events, testFrom, testUntil, nil)
	if want := []string{"moved"}; !slices.Equal(subjects(got), want) {
		t.Errorf("subjects = %v, want %v", subjects(got), want)
	}
}

func TestExpand_BadRRule(t *testing.T) {
	start := testFrom.Add(time.Hour)
	events := []VEvent{
		{UID: "bad", Summary: "bad", Start: start, End: start, RRule: "FREQ=SOMETIMES"},
		{UID: "ok", Summary: "ok", Start: start, End: start},
	}
	got := Expand(events, testFrom, testUntil, nil)
	if want := []string{"ok"}; !slices.Equal(subjects(got), want) {
		t.Errorf("subjects = %v, want %v", subjects(got), want)
	}
}

type fakeSink struct {
	feed   string
	events []protocol.CalendarEventRecord
}

func (f *fakeSink) ReplaceEvents(feed string, events []protocol.CalendarEventRecord) error {
	f.feed = feed
	f.events = events
	return nil
}

func newTestImporter() *Importer {
	im := NewImporter(nil)
	im.now = func() time.Time { return testUntil }
	im.lookback = testUntil.Sub(testFrom)
	return im
}

func TestImporter_SyncFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	if err := os.WriteFile(path, []byte(testFeed), 0o600); err != nil {
		t.Fatal(err)
	}

	sink := &fakeSink{}
	n, err := newTestImporter().Sync(context.Background(), Source{Name: "main", Path: path}, sink)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 5 || len(sink.events) != 5 {
		t.Errorf("synced %d events, sink has %d", n, len(sink.events))
	}
	if sink.feed != "main" {
		t.Errorf("feed = %q", sink.feed)
	}
}

func TestImporter_LoadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	im := newTestImporter()
	got, err := im.Load(context.Background(), Source{URL: srv.URL + "/cal.ics?token=secret"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 events, got %d", len(got))
	}

	if _, err := im.Load(context.Background(), Source{URL: srv.URL + "/cal.ics"}); err == nil {
		t.Error("expected error on 403")
	} else if strings.Contains(err.Error(), "token") {
		t.Errorf("error leaks query string: %v", err)
	}
}

func TestImporter_FetchErrorRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close() // nothing listens on addr any more

	_, err := newTestImporter().Load(context.Background(), Source{URL: addr + "/cal.ics?token=SECRET123"})
	if err == nil {
		t.Fatal("expected error for closed port")
	}
	if strings.Contains(err.Error(), "SECRET123") {
		t.Errorf("error leaks feed token: %v", err)
	}
	if !strings.Contains(err.Error(), "/cal.ics") {
		t.Errorf("error should still name the feed path: %v", err)
	}
}

func TestImporter_NoSource(t *testing.T) {
	if _, err := newTestImporter().Load(context.Background(), Source{Name: "x"}); err == nil {
		t.Error("expected error for empty source")
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://user:pw@cal.example.com/feed.ics?token=abc")
	if got != "https://cal.example.com/feed.ics" {
		t.Errorf("redacted = %q", got)
	}
}
