package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/ticketview/ticketview/pkg/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var day0 = time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)

func ticket(id, client, assignee string, daysAgo int) protocol.TicketRecord {
	created := day0.AddDate(0, 0, -daysAgo)
	return protocol.TicketRecord{
		ID:           id,
		Subject:      "subject " + id,
		Categories:   []string{"1 Open"},
		DateCreated:  created,
		HoursActual:  1.5,
		LastActivity: created.Add(time.Hour),
		ClientCode:   client,
		AssigneeCode: assignee,
		Reason:       protocol.ReasonSupport,
	}
}

func ids(recs []protocol.TicketRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestSaveAndGetTicket(t *testing.T) {
	s := newTestStore(t)

	in := ticket("t-001", "ACME", "jdoe", 0)
	in.Categories = []string{"9 REVIEW", "Hardware"}
	if err := s.SaveTicket(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Ticket("t-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Subject != "subject t-001" {
		t.Errorf("subject = %q", got.Subject)
	}
	if !slices.Equal(got.Categories, []string{"9 REVIEW", "Hardware"}) {
		t.Errorf("categories = %v", got.Categories)
	}
	if !got.DateCreated.Equal(in.DateCreated) || !got.LastActivity.Equal(in.LastActivity) {
		t.Errorf("times = %v / %v", got.DateCreated, got.LastActivity)
	}
	if got.HoursActual != 1.5 || got.ClientCode != "ACME" || got.AssigneeCode != "jdoe" {
		t.Errorf("ticket = %+v", got)
	}
}

func TestSaveTicket_Upsert(t *testing.T) {
	s := newTestStore(t)

	in := ticket("t-002", "ACME", "jdoe", 0)
	s.SaveTicket(in)
	in.Subject = "Updated"
	s.SaveTicket(in)

	got, _ := s.Ticket("t-002")
	if got.Subject != "Updated" {
		t.Errorf("expected 'Updated', got %q", got.Subject)
	}
}

func TestSaveTicket_MissingTimestamps(t *testing.T) {
	s := newTestStore(t)

	in := ticket("t-003", "ACME", "jdoe", 0)
	in.LastActivity = time.Time{}
	s.SaveTicket(in)

	got, _ := s.Ticket("t-003")
	if !got.LastActivity.IsZero() {
		t.Errorf("expected zero last activity, got %v", got.LastActivity)
	}
}

func TestTicketNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Ticket("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteTicket("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestTickets_MatchAndOrder(t *testing.T) {
	s := newTestStore(t)
	for _, tk := range []protocol.TicketRecord{
		ticket("a1", "AAA", "jdoe", 1),
		ticket("b3", "BBB", "jdoe", 3),
		ticket("a5", "AAA", "jdoe", 5),
		ticket("c2", "CCC", "jdoe", 2),
		ticket("x9", "AAA", "other", 0),
	} {
		if err := s.SaveTicket(tk); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.Tickets(protocol.TicketQuery{
		Field:   protocol.FieldAssignee,
		Value:   "jdoe",
		OrderBy: []string{protocol.OrderClientAsc, protocol.OrderDateCreatedDesc},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []string{"a1", "a5", "b3", "c2"}
	if !slices.Equal(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestTickets_ByClientWithReasons(t *testing.T) {
	s := newTestStore(t)
	billable := ticket("t2", "ACME", "jdoe", 2)
	billable.Reason = protocol.ReasonBillable
	internal := ticket("t3", "ACME", "jdoe", 3)
	internal.Reason = "Internal"
	for _, tk := range []protocol.TicketRecord{ticket("t1", "ACME", "jdoe", 1), billable, internal, ticket("t4", "OTHER", "jdoe", 0)} {
		s.SaveTicket(tk)
	}

	got, err := s.Tickets(protocol.TicketQuery{
		Field:   protocol.FieldClient,
		Value:   "ACME",
		Reasons: []string{protocol.ReasonSupport, protocol.ReasonBillable},
		OrderBy: []string{protocol.OrderDateCreatedDesc},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if want := []string{"t1", "t2"}; !slices.Equal(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestTickets_Unassigned(t *testing.T) {
	s := newTestStore(t)
	ph := ticket("ph", "ACME", "", 1)
	ph.Categories = []string{protocol.CategoryPlaceholder}
	s.SaveTicket(ph)
	s.SaveTicket(ticket("own", "ACME", "jdoe", 1))

	got, err := s.Tickets(protocol.TicketQuery{Field: protocol.FieldAssignee, Value: ""})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if want := []string{"ph"}; !slices.Equal(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestTickets_UnknownFieldAndSortKey(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Tickets(protocol.TicketQuery{Field: "subject; DROP TABLE tickets", Value: "x"}); err == nil {
		t.Error("expected error for unknown field")
	}

	s.SaveTicket(ticket("b", "ACME", "jdoe", 0))
	s.SaveTicket(ticket("a", "ACME", "jdoe", 0))
	got, err := s.Tickets(protocol.TicketQuery{
		Field:   protocol.FieldClient,
		Value:   "ACME",
		OrderBy: []string{"hours; DROP TABLE tickets"},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if want := []string{"a", "b"}; !slices.Equal(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestOrderClause(t *testing.T) {
	tests := []struct {
		keys []string
		want string
	}{
		{nil, "id ASC"},
		{[]string{"client", "-date_created"}, "client ASC, date_created DESC, id ASC"},
		{[]string{"-bogus", "subject"}, "subject ASC, id ASC"},
	}
	for _, tt := range tests {
		if got := orderClause(tt.keys); got != tt.want {
			t.Errorf("orderClause(%v) = %q, want %q", tt.keys, got, tt.want)
		}
	}
}

func events(n int) []protocol.CalendarEventRecord {
	out := make([]protocol.CalendarEventRecord, n)
	for i := range n {
		start := day0.Add(time.Duration(i) * time.Hour)
		out[i] = protocol.CalendarEventRecord{
			UID:     fmt.Sprintf("ev-%d", i),
			Subject: fmt.Sprintf("meeting %d", i),
			Start:   start,
			End:     start.Add(30 * time.Minute),
			Body:    "notes",
		}
	}
	return out
}

func TestRecentEvents(t *testing.T) {
	s := newTestStore(t)
	if err := s.ReplaceEvents("main", events(8)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := s.RecentEvents(day0.Add(6*time.Hour), 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	var subjects []string
	for _, e := range got {
		subjects = append(subjects, e.Subject)
	}
	want := []string{"meeting 6", "meeting 5", "meeting 4"}
	if !slices.Equal(subjects, want) {
		t.Errorf("subjects = %v, want %v", subjects, want)
	}
	if !got[0].End.Equal(day0.Add(6*time.Hour + 30*time.Minute)) {
		t.Errorf("end = %v", got[0].End)
	}
}

func TestReplaceEvents_PerFeed(t *testing.T) {
	s := newTestStore(t)
	s.ReplaceEvents("main", events(3))
	s.ReplaceEvents("other", events(2))
	s.ReplaceEvents("main", events(1))

	got, err := s.RecentEvents(day0.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 events (1 main + 2 other), got %d", len(got))
	}
}

func TestCalendarItems(t *testing.T) {
	s := newTestStore(t)
	req := protocol.CalendarItemRequest{
		ID:                "item-1",
		Organizer:         "tech@example.com",
		Subject:           "ACME patching",
		Start:             day0,
		End:               day0.Add(time.Hour),
		RequiredAttendees: []string{"help@techbldrs.com"},
		SendMode:          protocol.SendToAllAndSaveCopy,
	}
	if err := s.SaveCalendarItem(req); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveCalendarItem(req); err == nil {
		t.Error("expected duplicate id to fail")
	}

	got, err := s.CalendarItems("tech@example.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].Subject != "ACME patching" || got[0].SendMode != protocol.SendToAllAndSaveCopy {
		t.Errorf("item = %+v", got[0])
	}
	if !slices.Equal(got[0].RequiredAttendees, req.RequiredAttendees) {
		t.Errorf("attendees = %v", got[0].RequiredAttendees)
	}

	other, _ := s.CalendarItems("someone@example.com")
	if len(other) != 0 {
		t.Errorf("expected no items, got %d", len(other))
	}
}
