// Package meeting summarizes the most recent calendar activity.
package meeting

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ticketview/ticketview/internal/localtime"
	"github.com/ticketview/ticketview/pkg/protocol"
)

const (
	// WindowSize is the number of recent meetings shown.
	WindowSize = 5
	// footerUnderscores is the underscore count at which a body is assumed
	// to carry an auto-appended meeting add-in footer.
	footerUnderscores = 10
)

// NoRecentActivity is the status reported for an empty window.
const NoRecentActivity = "no recent activity"

// Window is the display-ordered set of recent meetings, oldest first.
type Window struct {
	Events    []protocol.EventView
	latestEnd string
}

// Empty reports whether no meetings were found.
func (w Window) Empty() bool {
	return len(w.Events) == 0
}

// LatestEndTime returns the latest meeting end, formatted. The second result
// is false for an empty window.
func (w Window) LatestEndTime() (string, bool) {
	if w.Empty() {
		return "", false
	}
	return w.latestEnd, true
}

// Builder turns a most-recent-first calendar feed into a Window.
type Builder struct {
	loc    *localtime.Localizer
	logger *slog.Logger
}

// NewBuilder creates a builder that formats times with loc.
func NewBuilder(loc *localtime.Localizer, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{loc: loc, logger: logger}
}

// Build takes at most WindowSize events from a most-recent-first feed,
// cleans their bodies and returns them oldest first. Events past the
// window are never pulled from the feed.
func (b *Builder) Build(events iter.Seq[protocol.CalendarEventRecord]) (Window, error) {
	batch := make([]protocol.CalendarEventRecord, 0, WindowSize)
	for ev := range events {
		batch = append(batch, ev)
		if len(batch) == WindowSize {
			break
		}
	}
	if len(batch) == 0 {
		b.logger.Debug("no recent meetings")
		return Window{Events: []protocol.EventView{}}, nil
	}

	var latest time.Time
	for _, ev := range batch {
		if ev.End.After(latest) {
			latest = ev.End
		}
	}
	latestEnd, err := b.loc.Localize(latest, localtime.CalendarPattern)
	if err != nil {
		return Window{}, fmt.Errorf("meeting: latest end: %w", err)
	}

	slices.Reverse(batch)
	views := make([]protocol.EventView, 0, len(batch))
	for _, ev := range batch {
		v, err := b.present(ev)
		if err != nil {
			return Window{}, fmt.Errorf("meeting: %q: %w", ev.Subject, err)
		}
		views = append(views, v)
	}

	return Window{Events: views, latestEnd: latestEnd}, nil
}

func (b *Builder) present(ev protocol.CalendarEventRecord) (protocol.EventView, error) {
	start, err := b.loc.Localize(ev.Start, localtime.CalendarPattern)
	if err != nil {
		return protocol.EventView{}, err
	}
	end, err := b.loc.Localize(ev.End, localtime.CalendarPattern)
	if err != nil {
		return protocol.EventView{}, err
	}
	return protocol.EventView{
		Subject:  ev.Subject,
		Start:    start,
		End:      end,
		Location: ev.Location,
		Body:     CleanBody(ev.Body),
	}, nil
}

// CleanBody converts markup bodies to plain text and strips the add-in
// footer from them: converted text with ten or more underscores is cut
// before the first one. Plain-text bodies are returned unchanged.
func CleanBody(body string) string {
	if !HasMarkup(body) {
		return body
	}
	if text, err := HTMLToText(body); err == nil {
		body = text
	}
	if strings.Count(body, "_") >= footerUnderscores {
		body = body[:strings.IndexByte(body, '_')]
	}
	return body
}
