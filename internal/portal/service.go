// Package portal runs the fetch-then-present cycle behind every page: it
// queries the store, hands the batch to the core components and returns
// display-ready results.
package portal

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ticketview/ticketview/internal/localtime"
	"github.com/ticketview/ticketview/internal/meeting"
	"github.com/ticketview/ticketview/internal/timeentry"
	"github.com/ticketview/ticketview/internal/view"
	"github.com/ticketview/ticketview/pkg/protocol"
)

// ErrUnknownView is returned for a view name that is not registered.
var ErrUnknownView = errors.New("portal: unknown view")

// Store is the subset of the store the portal reads and writes.
type Store interface {
	Tickets(q protocol.TicketQuery) ([]protocol.TicketRecord, error)
	RecentEvents(until time.Time, limit int) ([]protocol.CalendarEventRecord, error)
	SaveCalendarItem(req protocol.CalendarItemRequest) error
}

// TicketsPage is one audience's ticket list.
type TicketsPage struct {
	View    string                        `json:"view"`
	Key     string                        `json:"key"`
	Tickets []protocol.PresentationRecord `json:"tickets"`
	Skipped int                           `json:"skipped,omitempty"`
	// CurrentTime prefills the time-entry form on staff pages.
	CurrentTime string `json:"current_time,omitempty"`
}

// MeetingsPage is the recent-meetings window.
type MeetingsPage struct {
	Status        string               `json:"status,omitempty"`
	Events        []protocol.EventView `json:"events"`
	LatestEndTime string               `json:"latest_end_time,omitempty"`
}

// Dashboard is the staff home page: own tickets plus recent meetings.
type Dashboard struct {
	TicketsPage
	Meetings MeetingsPage `json:"meetings"`
}

// Service wires the store to the view engine, meeting window and
// time-entry composer.
type Service struct {
	store    Store
	loc      *localtime.Localizer
	engine   *view.Engine
	builder  *meeting.Builder
	composer *timeentry.Composer
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a portal service. An empty defaultAttendee selects
// timeentry.DefaultAttendee.
func NewService(st Store, loc *localtime.Localizer, defaultAttendee string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		loc:      loc,
		engine:   view.NewEngine(loc, logger),
		builder:  meeting.NewBuilder(loc, logger),
		composer: timeentry.NewComposer(loc, defaultAttendee),
		now:      time.Now,
		logger:   logger,
	}
}

// Tickets returns the ticket list for key under the named view.
func (s *Service) Tickets(viewName, key string) (TicketsPage, error) {
	v, ok := view.Variants[viewName]
	if !ok {
		return TicketsPage{}, fmt.Errorf("%w: %q", ErrUnknownView, viewName)
	}

	batch, err := s.fetch(v, key)
	if err != nil {
		return TicketsPage{}, err
	}
	res, err := s.engine.Run(slices.Values(batch), v, key)
	if err != nil {
		return TicketsPage{}, fmt.Errorf("portal: %w", err)
	}

	page := TicketsPage{
		View:    v.Name,
		Key:     v.NormalizeKey(key),
		Tickets: res.Records,
		Skipped: res.Skipped,
	}
	if v.Name == view.EmployeeSelf.Name {
		if page.CurrentTime, err = s.currentTime(); err != nil {
			return TicketsPage{}, err
		}
	}
	return page, nil
}

// fetch runs the view's own query and, when the view shows placeholders,
// the placeholder query. The two result sets can overlap, so the union is
// deduplicated by ID.
func (s *Service) fetch(v view.Variant, key string) ([]protocol.TicketRecord, error) {
	own, err := s.store.Tickets(v.OwnQuery(key))
	if err != nil {
		return nil, fmt.Errorf("portal: %s: %w", v.Name, err)
	}
	if !v.IncludePlaceholders {
		return own, nil
	}
	ph, err := s.store.Tickets(v.PlaceholderQuery())
	if err != nil {
		return nil, fmt.Errorf("portal: %s placeholders: %w", v.Name, err)
	}

	seen := make(map[string]bool, len(own)+len(ph))
	out := make([]protocol.TicketRecord, 0, len(own)+len(ph))
	for _, t := range slices.Concat(own, ph) {
		if t.ID != "" && seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out, nil
}

// Meetings returns the recent-meetings window. An empty window carries the
// status meeting.NoRecentActivity.
func (s *Service) Meetings() (MeetingsPage, error) {
	events, err := s.store.RecentEvents(s.now(), meeting.WindowSize)
	if err != nil {
		return MeetingsPage{}, fmt.Errorf("portal: meetings: %w", err)
	}
	w, err := s.builder.Build(slices.Values(events))
	if err != nil {
		return MeetingsPage{}, fmt.Errorf("portal: %w", err)
	}

	page := MeetingsPage{Events: w.Events}
	if latest, ok := w.LatestEndTime(); ok {
		page.LatestEndTime = latest
	} else {
		page.Status = meeting.NoRecentActivity
	}
	return page, nil
}

// Dashboard returns the staff home page for an assignee.
func (s *Service) Dashboard(assignee string) (Dashboard, error) {
	tickets, err := s.Tickets(view.AdminByAssignee.Name, assignee)
	if err != nil {
		return Dashboard{}, err
	}
	meetings, err := s.Meetings()
	if err != nil {
		return Dashboard{}, err
	}
	if tickets.CurrentTime, err = s.currentTime(); err != nil {
		return Dashboard{}, err
	}
	return Dashboard{TicketsPage: tickets, Meetings: meetings}, nil
}

// SubmitTimeEntry validates a time entry and queues the resulting calendar
// item. Validation failures return *timeentry.ValidationError; a missing
// organizer returns timeentry.ErrUnauthenticated.
func (s *Service) SubmitTimeEntry(in timeentry.TimeEntryInput) (protocol.CalendarItemRequest, error) {
	req, err := s.composer.Compose(in)
	if err != nil {
		return protocol.CalendarItemRequest{}, err
	}
	if err := s.store.SaveCalendarItem(req); err != nil {
		return protocol.CalendarItemRequest{}, fmt.Errorf("portal: time entry: %w", err)
	}
	s.logger.Info("time entry queued", "id", req.ID, "organizer", req.Organizer, "attendees", len(req.RequiredAttendees))
	return req, nil
}

func (s *Service) currentTime() (string, error) {
	now, err := s.loc.Localize(s.now(), localtime.FormPattern)
	if err != nil {
		return "", fmt.Errorf("portal: current time: %w", err)
	}
	return now, nil
}
