package events

import "context"

// Streams
const (
	StreamActorStatus = "events:actor_status"
	StreamMonitor     = "events:monitor"
)

// Event types
const (
	EventActorStatusChanged  = "actor_status_changed"
	EventMonitorRunCompleted = "monitor_run_completed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
