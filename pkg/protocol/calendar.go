package protocol

import "time"

// CalendarEventRecord is one meeting as delivered by the calendar store.
type CalendarEventRecord struct {
	UID      string    `json:"uid,omitempty"`
	Subject  string    `json:"subject"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location"`
	Body     string    `json:"body"`
}

// EventView is a calendar event with display-formatted times.
type EventView struct {
	Subject  string `json:"subject"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location"`
	Body     string `json:"body"`
}

// SendMode tells the calendar store how to deliver a new item.
type SendMode string

const (
	// SendToAllAndSaveCopy invites every attendee and keeps a copy in the
	// organizer's calendar.
	SendToAllAndSaveCopy SendMode = "SendToAllAndSaveCopy"
)

// CalendarItemRequest asks the calendar store to create a meeting.
type CalendarItemRequest struct {
	ID                string    `json:"id"`
	Organizer         string    `json:"organizer"`
	Subject           string    `json:"subject"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Location          string    `json:"location"`
	Body              string    `json:"body"`
	RequiredAttendees []string  `json:"required_attendees"`
	SendMode          SendMode  `json:"send_mode"`
}
