package activity

import (
	"context"
	"log/slog"
)

// Handler is an slog.Handler that copies records at or above a level into
// a Feed and passes every record to an inner handler.
type Handler struct {
	inner  slog.Handler
	feed   *Feed
	min    slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewHandler wraps inner. Records below min still reach inner if it is
// enabled for them but are not captured.
func NewHandler(inner slog.Handler, feed *Feed, min slog.Level) *Handler {
	return &Handler{inner: inner, feed: feed, min: min}
}

func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.min || h.inner.Enabled(ctx, l)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.min {
		h.feed.Add(h.event(r))
	}
	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) event(r slog.Record) Event {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	// Bound attrs were qualified with their groups in WithAttrs.
	for _, a := range h.attrs {
		attrs[a.Key] = jsonValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.key(a.Key)] = jsonValue(a.Value)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}
	return Event{Time: r.Time, Level: r.Level, Message: r.Message, Attrs: attrs}
}

func (h *Handler) key(k string) string {
	for i := len(h.groups) - 1; i >= 0; i-- {
		k = h.groups[i] + "." + k
	}
	return k
}

// jsonValue keeps errors readable once the event is encoded.
func jsonValue(v slog.Value) any {
	raw := v.Resolve().Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scoped := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scoped[i] = slog.Attr{Key: h.key(a.Key), Value: a.Value}
	}
	return &Handler{
		inner:  h.inner.WithAttrs(attrs),
		feed:   h.feed,
		min:    h.min,
		attrs:  append(h.attrs[:len(h.attrs):len(h.attrs)], scoped...),
		groups: h.groups,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:  h.inner.WithGroup(name),
		feed:   h.feed,
		min:    h.min,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}
