package view

import (
	"slices"
	"strings"

	"github.com/ticketview/ticketview/pkg/protocol"
)

const (
	deletedSubjectMarker = "-2DEL-"
	// subjectMarkerOffset is where a "#" follows the client code and ticket
	// number in subjects of internal-only tickets.
	subjectMarkerOffset = 12
)

// Variant is the filter and sort configuration for one audience.
type Variant struct {
	Name string
	// Match is the attribute compared to the view key.
	Match protocol.TicketField
	// Excluded lists category sequences removed from the own group. Each
	// entry is compared to a ticket's categories as a whole.
	Excluded [][]string
	// Reasons, when set, limits the own group to these reasons.
	Reasons []string
	// RejectDeleted drops subjects carrying the deletion marker.
	RejectDeleted bool
	// RejectSubjectMarker drops subjects with '#' at the marker offset.
	RejectSubjectMarker bool
	// Sort is the store-side ordering, before display reversal.
	Sort                []string
	IncludePlaceholders bool
}

var (
	AdminByAssignee = Variant{
		Name:                "admin-by-assignee",
		Match:               protocol.FieldAssignee,
		Excluded:            [][]string{{protocol.CategoryReview}},
		Sort:                []string{protocol.OrderClientAsc, protocol.OrderDateCreatedDesc},
		IncludePlaceholders: true,
	}
	AdminByClient = Variant{
		Name:                "admin-by-client",
		Match:               protocol.FieldClient,
		Excluded:            [][]string{{protocol.CategoryReview}},
		Sort:                []string{protocol.OrderClientAsc, protocol.OrderDateCreatedDesc},
		IncludePlaceholders: true,
	}
	EmployeeSelf = Variant{
		Name:                "employee-self",
		Match:               protocol.FieldAssignee,
		Excluded:            [][]string{{protocol.CategoryReview}, {protocol.CategoryTime}},
		Sort:                []string{protocol.OrderClientAsc, protocol.OrderDateCreatedDesc},
		IncludePlaceholders: true,
	}
	ClientPortal = Variant{
		Name:                "client-portal",
		Match:               protocol.FieldClient,
		Excluded:            [][]string{{protocol.CategoryReview}, {protocol.CategoryTime}},
		Reasons:             []string{protocol.ReasonSupport, protocol.ReasonBillable},
		RejectDeleted:       true,
		RejectSubjectMarker: true,
		Sort:                []string{protocol.OrderDateCreatedDesc},
	}
)

// Variants indexes the built-in variants by name.
var Variants = map[string]Variant{
	AdminByAssignee.Name: AdminByAssignee,
	AdminByClient.Name:   AdminByClient,
	EmployeeSelf.Name:    EmployeeSelf,
	ClientPortal.Name:    ClientPortal,
}

// NormalizeKey applies the store's case convention: assignee codes are
// lower case, client codes upper case.
func (v Variant) NormalizeKey(key string) string {
	if v.Match == protocol.FieldClient {
		return strings.ToUpper(key)
	}
	return strings.ToLower(key)
}

// OwnQuery describes the store query for the own group.
func (v Variant) OwnQuery(key string) protocol.TicketQuery {
	return protocol.TicketQuery{
		Field:   v.Match,
		Value:   v.NormalizeKey(key),
		Reasons: slices.Clone(v.Reasons),
		OrderBy: slices.Clone(v.Sort),
	}
}

// PlaceholderQuery describes the store query for unassigned tickets. The
// placeholder category is checked by the engine, not the store.
func (v Variant) PlaceholderQuery() protocol.TicketQuery {
	return protocol.TicketQuery{
		Field:   protocol.FieldAssignee,
		Value:   "",
		OrderBy: slices.Clone(v.Sort),
	}
}

// matches reports whether t belongs to the own group for an already
// normalized key. An empty key never matches, so placeholders stay disjoint.
func (v Variant) matches(t protocol.TicketRecord, key string) bool {
	if key == "" {
		return false
	}
	switch v.Match {
	case protocol.FieldClient:
		return t.ClientCode == key
	default:
		return t.AssigneeCode == key
	}
}

// keep applies the variant's exclusions to an own-group ticket.
func (v Variant) keep(t protocol.TicketRecord) bool {
	for _, cats := range v.Excluded {
		if t.HasCategories(cats) {
			return false
		}
	}
	if v.RejectDeleted && strings.Contains(t.Subject, deletedSubjectMarker) {
		return false
	}
	if len(v.Reasons) > 0 && !slices.Contains(v.Reasons, t.Reason) {
		return false
	}
	if v.RejectSubjectMarker && hasSubjectMarker(t.Subject) {
		return false
	}
	return true
}

// hasSubjectMarker reports a '#' at the marker offset. Subjects too short to
// reach the offset carry no marker.
func hasSubjectMarker(subject string) bool {
	runes := []rune(subject)
	if len(runes) <= subjectMarkerOffset {
		return false
	}
	return runes[subjectMarkerOffset] == '#'
}
