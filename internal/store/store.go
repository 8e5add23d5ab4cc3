// Package store mirrors tickets and calendar data in SQLite and holds the
// outbox of calendar items created from time entries.
package store

import (
	"errors"
	"time"

	"github.com/ticketview/ticketview/pkg/protocol"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// TicketStore is the read/write interface for mirrored tickets.
type TicketStore interface {
	// SaveTicket creates or updates a ticket.
	SaveTicket(t protocol.TicketRecord) error
	// Ticket returns a ticket by ID.
	Ticket(id string) (protocol.TicketRecord, error)
	// Tickets returns the tickets matching q in the order q requests.
	Tickets(q protocol.TicketQuery) ([]protocol.TicketRecord, error)
	// DeleteTicket removes a ticket.
	DeleteTicket(id string) error
}

// CalendarStore is the interface for imported meetings and created items.
type CalendarStore interface {
	// ReplaceEvents swaps the stored events of one feed for events.
	ReplaceEvents(feed string, events []protocol.CalendarEventRecord) error
	// RecentEvents returns up to limit events starting at or before until,
	// most recent first.
	RecentEvents(until time.Time, limit int) ([]protocol.CalendarEventRecord, error)
	// SaveCalendarItem queues a calendar item for delivery.
	SaveCalendarItem(req protocol.CalendarItemRequest) error
	// CalendarItems lists queued items for an organizer, newest first.
	CalendarItems(organizer string) ([]protocol.CalendarItemRequest, error)
}
