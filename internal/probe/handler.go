package probe

import (
	"context"
	"log/slog"
)

// LevelDisabled is above every level slog emits; an event set to it is never logged
const LevelDisabled = slog.Level(1000)

// EventFilteringHandler applies per-event minimum levels to records carrying an
// "event" attribute, either on the record or bound earlier with Logger.With.
// Records without an event use the default level.
type EventFilteringHandler struct {
	next         slog.Handler
	eventLevels  map[string]slog.Level
	defaultLevel slog.Level
	minLevel     slog.Level
	event        string
}

// NewEventFilteringHandler wraps next. next should accept every level down to the
// lowest level in eventLevels, filtering is done here.
func NewEventFilteringHandler(next slog.Handler, defaultLevel slog.Level, eventLevels map[string]slog.Level) *EventFilteringHandler {
	minLevel := defaultLevel
	for _, level := range eventLevels {
		minLevel = min(minLevel, level)
	}
	return &EventFilteringHandler{
		next:         next,
		eventLevels:  eventLevels,
		defaultLevel: defaultLevel,
		minLevel:     minLevel,
	}
}

func (h *EventFilteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.event != "" {
		return level >= h.levelFor(h.event)
	}
	// The record may still carry an event attribute, Handle decides
	return level >= h.minLevel
}

func (h *EventFilteringHandler) Handle(ctx context.Context, record slog.Record) error {
	event := h.event
	if event == "" {
		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == "event" {
				event = attr.Value.String()
				return false
			}
			return true
		})
	}

	if record.Level < h.levelFor(event) {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *EventFilteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	for _, attr := range attrs {
		if attr.Key == "event" {
			clone.event = attr.Value.String()
		}
	}
	return &clone
}

func (h *EventFilteringHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

func (h *EventFilteringHandler) levelFor(event string) slog.Level {
	if level, ok := h.eventLevels[event]; ok {
		return level
	}
	return h.defaultLevel
}
