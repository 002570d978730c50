// Package dashboard - events.go bridges internal/eventlog's Postgres
// LISTEN/NOTIFY feed into the websocket Broadcaster: every notification
// becomes one WebSocketMessage pushed to every connected client.
package dashboard

import (
	"context"
	"log"
	"time"

	"github.com/ashare/tradeengine/internal/eventlog"
)

// EventBridge wires an eventlog.Listener's notifications into a
// Broadcaster, so engine-side state changes (fills, new positions, closed
// trades, tripped risk) reach connected dashboard clients without the
// dashboard process polling anything itself.
type EventBridge struct {
	listener    *eventlog.Listener
	broadcaster *Broadcaster
	logger      *log.Logger
}

// NewEventBridge builds an EventBridge over a fresh eventlog.Listener
// connected to dbURL.
func NewEventBridge(dbURL string, broadcaster *Broadcaster, logger *log.Logger) *EventBridge {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	eb := &EventBridge{
		listener:    eventlog.NewListener(dbURL, logger),
		broadcaster: broadcaster,
		logger:      logger,
	}
	eb.listener.Subscribe(eb.onNotification)
	return eb
}

// Start begins listening in the background.
func (eb *EventBridge) Start(ctx context.Context) {
	eb.listener.Start(ctx)
}

// Stop terminates the underlying listener.
func (eb *EventBridge) Stop() {
	eb.listener.Stop()
}

func (eb *EventBridge) onNotification(n eventlog.Notification) {
	eb.logger.Printf("dashboard: received notification on channel %q: %s", n.Channel, n.Payload)
	eb.broadcaster.Broadcast(WebSocketMessage{
		Type:      n.Channel,
		Data:      map[string]any{"event": n.Payload},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
