package presence

import (
	"context"

	"cardquest/server/logging"
)

const (
	// EventConnected is emitted when a session joins the hub.
	EventConnected logging.EventType = "presence.connected"
	// EventAnnounced is emitted when a session reports its first position.
	EventAnnounced logging.EventType = "presence.announced"
	// EventDisconnected is emitted when a session leaves the hub.
	EventDisconnected logging.EventType = "presence.disconnected"
)

// PositionPayload captures the announced coordinates.
type PositionPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Connected(ctx context.Context, pub logging.Publisher, id string) {
	publish(ctx, pub, EventConnected, id, nil)
}

func Announced(ctx context.Context, pub logging.Publisher, id string, x, y float64) {
	publish(ctx, pub, EventAnnounced, id, PositionPayload{X: x, Y: y})
}

func Disconnected(ctx context.Context, pub logging.Publisher, id string) {
	publish(ctx, pub, EventDisconnected, id, nil)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, id string, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Actor:    logging.EntityRef{ID: id, Kind: logging.EntityKindConnection},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPresence,
		Payload:  payload,
	})
}
