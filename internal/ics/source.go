package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/ticketview/ticketview/pkg/protocol"
)

const (
	// DefaultLookback bounds how far back recurring meetings are expanded.
	DefaultLookback = 90 * 24 * time.Hour
	maxFeedBytes    = 16 << 20
)

// Source locates a calendar feed. Path wins when both are set.
type Source struct {
	Name string
	Path string
	URL  string
}

// EventSink receives the expanded events of a feed.
type EventSink interface {
	ReplaceEvents(feed string, events []protocol.CalendarEventRecord) error
}

// Importer reads a feed and expands it relative to the current time.
type Importer struct {
	client   *http.Client
	lookback time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewImporter creates an importer with a 15 second HTTP timeout.
func NewImporter(logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		client:   &http.Client{Timeout: 15 * time.Second},
		lookback: DefaultLookback,
		now:      time.Now,
		logger:   logger,
	}
}

// Load reads src and returns the meetings that started within the lookback
// window, most recent first.
func (im *Importer) Load(ctx context.Context, src Source) ([]protocol.CalendarEventRecord, error) {
	body, err := im.read(ctx, src)
	if err != nil {
		return nil, err
	}
	vevents, err := Parse(body, im.logger)
	if err != nil {
		return nil, err
	}
	now := im.now()
	return Expand(vevents, now.Add(-im.lookback), now, im.logger), nil
}

// Sync loads src and replaces the feed's events in sink.
func (im *Importer) Sync(ctx context.Context, src Source, sink EventSink) (int, error) {
	events, err := im.Load(ctx, src)
	if err != nil {
		return 0, err
	}
	if err := sink.ReplaceEvents(src.Name, events); err != nil {
		return 0, err
	}
	im.logger.Info("calendar synced", "feed", src.Name, "events", len(events))
	return len(events), nil
}

func (im *Importer) read(ctx context.Context, src Source) ([]byte, error) {
	switch {
	case src.Path != "":
		body, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("ics: read: %w", err)
		}
		return body, nil
	case src.URL != "":
		return im.fetch(ctx, src.URL)
	default:
		return nil, errors.New("ics: source has neither path nor url")
	}
}

func (im *Importer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ics: fetch: %w", err)
	}
	im.logger.Debug("ics fetch", "url", redactURL(rawURL))

	resp, err := im.client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, feed token included.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactURL(ue.URL)
		}
		return nil, fmt.Errorf("ics: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics: fetch %s: unexpected status %d", redactURL(rawURL), resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("ics: fetch: %w", err)
	}
	return body, nil
}

// redactURL drops the query string, which often carries a feed token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
