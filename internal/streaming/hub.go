// Package streaming fans editor events out to live viewers (panel SSE
// clients, MCP notification sessions).
package streaming

import "context"

// GraphEvent is emitted after the editor changes the canvas.
type GraphEvent struct {
	DiagramID string `json:"diagram_id"`
	EventType string `json:"event_type"`
	Action    string `json:"action,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
	Revision  int64  `json:"revision,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	DiagramID  string   `json:"diagram_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for graph events.
type EventHub interface {
	Publish(ctx context.Context, event GraphEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan GraphEvent, func(), error)
}
