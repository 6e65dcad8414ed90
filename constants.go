package server

import "time"

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 2 * time.Second

	defaultSprite = "player"
)

// ProtocolVersion is bumped whenever the wire contract changes shape.
const ProtocolVersion = 1

// HeartbeatInterval reports the cadence clients are expected to ping at.
func HeartbeatInterval() time.Duration {
	return heartbeatInterval
}
