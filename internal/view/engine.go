// Package view turns raw ticket batches into ordered presentation lists for
// each audience.
package view

import (
	"cmp"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/ticketview/ticketview/internal/localtime"
	"github.com/ticketview/ticketview/pkg/protocol"
)

// Result is the outcome of one engine run.
type Result struct {
	Records []protocol.PresentationRecord
	// Skipped counts records dropped for missing required fields.
	Skipped int
}

// Engine filters, orders and formats tickets. It holds no per-run state.
type Engine struct {
	loc    *localtime.Localizer
	logger *slog.Logger
}

// NewEngine creates an engine that formats timestamps with loc.
func NewEngine(loc *localtime.Localizer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{loc: loc, logger: logger}
}

// Run builds the presentation list for key under variant v.
//
// Own tickets come first, then placeholders. Each group is in DisplayOrder.
// A record missing a required field is skipped and counted; a timestamp that
// cannot be localized fails the whole run.
func (e *Engine) Run(tickets iter.Seq[protocol.TicketRecord], v Variant, key string) (Result, error) {
	key = v.NormalizeKey(key)

	var res Result
	var own, placeholders []protocol.TicketRecord
	for t := range tickets {
		if field := missingField(t); field != "" {
			res.Skipped++
			e.logger.Warn("skipping malformed ticket", "id", t.ID, "missing", field, "variant", v.Name)
			continue
		}
		// A placeholder whose client matches the key is listed once, in the
		// placeholder group, keeping the two groups disjoint.
		if v.IncludePlaceholders && t.IsPlaceholder() {
			placeholders = append(placeholders, t)
			continue
		}
		if v.matches(t, key) && v.keep(t) {
			own = append(own, t)
		}
	}

	sortForDisplay(own, v.Sort)
	sortForDisplay(placeholders, v.Sort)

	res.Records = make([]protocol.PresentationRecord, 0, len(own)+len(placeholders))
	for _, t := range slices.Concat(own, placeholders) {
		rec, err := e.present(t)
		if err != nil {
			return Result{}, fmt.Errorf("view: %s: ticket %q: %w", v.Name, t.ID, err)
		}
		res.Records = append(res.Records, rec)
	}

	e.logger.Debug("view built",
		"variant", v.Name,
		"key", key,
		"own", len(own),
		"placeholders", len(placeholders),
		"skipped", res.Skipped,
	)
	return res, nil
}

func (e *Engine) present(t protocol.TicketRecord) (protocol.PresentationRecord, error) {
	created, err := e.loc.Localize(t.DateCreated, localtime.TicketPattern)
	if err != nil {
		return protocol.PresentationRecord{}, err
	}
	last, err := e.loc.Localize(t.LastActivity, localtime.TicketPattern)
	if err != nil {
		return protocol.PresentationRecord{}, err
	}
	cats := slices.Clone(t.Categories)
	if cats == nil {
		cats = []string{}
	}
	return protocol.PresentationRecord{
		Subject:      t.Subject,
		Category:     cats,
		DateCreated:  created,
		HoursActual:  t.HoursActual,
		LastActivity: last,
	}, nil
}

func missingField(t protocol.TicketRecord) string {
	switch {
	case t.Subject == "":
		return "subject"
	case t.DateCreated.IsZero():
		return "date_created"
	case t.LastActivity.IsZero():
		return "last_activity"
	}
	return ""
}

// QueryOrder compares tickets by the store-side ordering keys, e.g.
// client ascending then date created descending. Unknown keys are ignored.
func QueryOrder(keys []string) func(a, b protocol.TicketRecord) int {
	return func(a, b protocol.TicketRecord) int {
		for _, k := range keys {
			var c int
			switch k {
			case protocol.OrderClientAsc:
				c = cmp.Compare(a.ClientCode, b.ClientCode)
			case protocol.OrderDateCreatedDesc:
				c = b.DateCreated.Compare(a.DateCreated)
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
}

// DisplayOrder is the exact inverse of QueryOrder. With the default keys it
// yields client descending, then date created ascending within a client.
func DisplayOrder(keys []string) func(a, b protocol.TicketRecord) int {
	q := QueryOrder(keys)
	return func(a, b protocol.TicketRecord) int {
		return q(b, a)
	}
}

// sortForDisplay orders recs so the result equals stable-sorting by
// QueryOrder and then reversing the whole slice, ties included.
func sortForDisplay(recs []protocol.TicketRecord, keys []string) {
	slices.Reverse(recs)
	slices.SortStableFunc(recs, DisplayOrder(keys))
}
