// Package timeentry validates time-entry submissions and builds the calendar
// item request handed to the calendar store.
package timeentry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ticketview/ticketview/internal/localtime"
	"github.com/ticketview/ticketview/pkg/protocol"
)

// DefaultAttendee receives every time entry unless the submitter names
// other attendees.
const DefaultAttendee = "help@techbldrs.com"

// ErrUnauthenticated is returned when a submission carries no organizer
// identity.
var ErrUnauthenticated = errors.New("time entry: unauthenticated")

// TimeEntryInput is a time entry as submitted from the entry form.
type TimeEntryInput struct {
	Organizer string   `json:"-"`
	Subject   string   `json:"subject"`
	StartTime string   `json:"start_time"` // YYYY-MM-DDThh:mm, office time
	EndTime   string   `json:"end_time"`
	Location  string   `json:"location"`
	Attendees []string `json:"attendees"`
	Body      string   `json:"body"`
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a TimeEntryInput.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "time entry: invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// Composer builds calendar item requests. It never talks to the store.
type Composer struct {
	loc             *localtime.Localizer
	defaultAttendee string
	newID           func() string
}

// NewComposer creates a composer. An empty defaultAttendee selects
// DefaultAttendee.
func NewComposer(loc *localtime.Localizer, defaultAttendee string) *Composer {
	if defaultAttendee == "" {
		defaultAttendee = DefaultAttendee
	}
	return &Composer{
		loc:             loc,
		defaultAttendee: defaultAttendee,
		newID:           uuid.NewString,
	}
}

// Compose validates in and returns the request to create. On any validation
// problem it returns a *ValidationError and no request.
func (c *Composer) Compose(in TimeEntryInput) (protocol.CalendarItemRequest, error) {
	if strings.TrimSpace(in.Organizer) == "" {
		return protocol.CalendarItemRequest{}, ErrUnauthenticated
	}

	verr := &ValidationError{}
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		verr.add("subject", "is required")
	}

	start, startOK := c.parseTime(verr, "start_time", in.StartTime)
	end, endOK := c.parseTime(verr, "end_time", in.EndTime)
	if startOK && endOK && !end.After(start) {
		verr.add("end_time", "must be after start_time")
	}

	attendees := make([]string, 0, len(in.Attendees))
	for _, a := range in.Attendees {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !strings.Contains(a, "@") {
			verr.add("attendees", fmt.Sprintf("%q is not an email address", a))
			continue
		}
		attendees = append(attendees, a)
	}
	if len(attendees) == 0 {
		attendees = []string{c.defaultAttendee}
	}

	if len(verr.Fields) > 0 {
		return protocol.CalendarItemRequest{}, verr
	}

	return protocol.CalendarItemRequest{
		ID:                c.newID(),
		Organizer:         strings.TrimSpace(in.Organizer),
		Subject:           subject,
		Start:             start,
		End:               end,
		Location:          in.Location,
		Body:              in.Body,
		RequiredAttendees: attendees,
		SendMode:          protocol.SendToAllAndSaveCopy,
	}, nil
}

func (c *Composer) parseTime(verr *ValidationError, field, value string) (t time.Time, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		verr.add(field, "is required")
		return t, false
	}
	t, err := c.loc.ParseLocal(value)
	if err != nil {
		verr.add(field, "must be a valid YYYY-MM-DDThh:mm office time")
		return t, false
	}
	return t, true
}
