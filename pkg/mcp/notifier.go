package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/streaming"
)

// SessionNotifier forwards session stream events to the MCP client that owns the session.
type SessionNotifier struct {
	mcpServer *server.MCPServer
	owners    *SessionRegistry
}

// NewSessionNotifier creates a notifier that pushes via MCP notifications.
func NewSessionNotifier(mcpServer *server.MCPServer, owners *SessionRegistry) *SessionNotifier {
	return &SessionNotifier{mcpServer: mcpServer, owners: owners}
}

// Notify sends one event to its owning client.
// Best-effort: returns nil if the session has no known client.
func (n *SessionNotifier) Notify(_ context.Context, ev streaming.StreamEvent) error {
	clientID, ok := n.owners.ClientFor(ev.SessionID)
	if !ok {
		return nil
	}
	params := map[string]any{
		"level":  "info",
		"logger": "nodeflow",
		"data": map[string]any{
			"session_id": ev.SessionID,
			"node_id":    ev.NodeID,
			"event_type": ev.EventType,
			"payload":    ev.Payload,
			"timestamp":  ev.Timestamp,
		},
	}
	err := n.mcpServer.SendNotificationToSpecificClient(clientID, "notifications/message", params)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Client went away between lookup and send.
		n.owners.RemoveClient(clientID)
		return nil
	}
	return err
}

// Run subscribes to hub and forwards events until ctx is done.
func (n *SessionNotifier) Run(ctx context.Context, hub streaming.EventHub) error {
	events, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_ = n.Notify(ctx, ev)
		}
	}
}
