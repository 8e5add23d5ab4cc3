package protocol

import (
	"slices"
	"time"
)

// Well-known category tags.
const (
	CategoryReview      = "9 REVIEW"
	CategoryTime        = "8 Time"
	CategoryPlaceholder = "Place Holder"
)

// Ticket reasons visible to clients.
const (
	ReasonSupport  = "Support"
	ReasonBillable = "Billable"
)

// TicketRecord is an immutable snapshot of one ticket as delivered by the
// ticket store. Timestamps are absolute and treated as UTC.
type TicketRecord struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Categories   []string  `json:"categories"`
	DateCreated  time.Time `json:"date_created"`
	HoursActual  float64   `json:"hours_actual_total"`
	LastActivity time.Time `json:"last_activity"`
	ClientCode   string    `json:"client"`
	AssigneeCode string    `json:"assignee"`
	Reason       string    `json:"reason"`
}

// HasCategories reports whether the ticket's categories equal want exactly,
// element by element. A ticket tagged ["9 REVIEW", "X"] does not have ["9 REVIEW"].
func (t TicketRecord) HasCategories(want []string) bool {
	return slices.Equal(t.Categories, want)
}

// IsPlaceholder reports whether the ticket is an unassigned placeholder.
func (t TicketRecord) IsPlaceholder() bool {
	return t.AssigneeCode == "" && t.HasCategories([]string{CategoryPlaceholder})
}

// PresentationRecord is one ticket row ready for display.
type PresentationRecord struct {
	Subject      string   `json:"Subject"`
	Category     []string `json:"Category"`
	DateCreated  string   `json:"Date Created"`
	HoursActual  float64  `json:"Hours (Actual)"`
	LastActivity string   `json:"Last Activity"`
}
