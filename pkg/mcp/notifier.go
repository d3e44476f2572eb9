package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/vsm/internal/streaming"
	"github.com/rendis/vsm/pkg/schema"
)

// notificationMethod is the MCP method used for canvas change pushes.
const notificationMethod = "notifications/message"

// ChangeNotifier pushes canvas changes to connected clients.
type ChangeNotifier interface {
	Notify(ctx context.Context, ev streaming.GraphEvent) error
}

// MCPNotifier implements ChangeNotifier over MCP session notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes to registered sessions.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends ev to every registered session. Best-effort: sessions that
// went away are dropped from the registry.
func (n *MCPNotifier) Notify(_ context.Context, ev streaming.GraphEvent) error {
	payload := map[string]any{
		"level":  "info",
		"logger": "vsm",
		"data": map[string]any{
			"diagram_id": ev.DiagramID,
			"event_type": ev.EventType,
			"action":     ev.Action,
			"node_id":    ev.NodeID,
			"revision":   ev.Revision,
		},
	}
	var errs []error
	for _, sid := range n.sessions.SessionIDs() {
		err := n.mcpServer.SendNotificationToSpecificClient(sid, notificationMethod, payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sid)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forward relays committed and restored canvas events from hub until ctx
// is cancelled.
func (n *MCPNotifier) Forward(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{schema.EventGraphCommitted, schema.EventGraphRestored},
	})
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			_ = n.Notify(ctx, ev)
		}
	}
}
