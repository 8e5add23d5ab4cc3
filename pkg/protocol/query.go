package protocol

// TicketField names a ticket attribute a store query can match exactly.
type TicketField string

const (
	FieldAssignee TicketField = "assignee"
	FieldClient   TicketField = "client"
)

// Orderings a store query can request.
const (
	OrderClientAsc       = "client"
	OrderDateCreatedDesc = "-date_created"
)

// TicketQuery describes the exact-match filter and ordering a ticket store
// should apply before handing records to a view.
type TicketQuery struct {
	Field   TicketField `json:"field"`
	Value   string      `json:"value"`
	Reasons []string    `json:"reasons,omitempty"`
	OrderBy []string    `json:"order_by,omitempty"`
}
