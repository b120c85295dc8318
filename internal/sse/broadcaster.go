package sse

import (
	"encoding/json"
	"log/slog"

	"github.com/mcoot/dicefunnel/internal/model"
)

// EventFunnel is the SSE event name for funnel stage transitions
const EventFunnel = "funnel-event"

// Broadcaster publishes funnel events to dashboard subscribers
type Broadcaster struct {
	hub    *Hub
	logger *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hub *Hub, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hub:    hub,
		logger: logger.With(slog.String("component", "sse-broadcaster")),
	}
}

// Publish broadcasts event as a funnel-event message. Delivery is
// at-most-once; slow subscribers miss messages.
func (b *Broadcaster) Publish(event *model.FunnelEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("sse failed to encode funnel event",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
		return
	}
	b.hub.BroadcastEvent(EventFunnel, string(data))
}
