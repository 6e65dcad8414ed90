package server

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"cardquest/server/logging"
	presencelog "cardquest/server/logging/presence"
)

// Conn is the write side of one transport connection. The hub never reads;
// inbound intents arrive through the gateway calling the Handle* methods.
type Conn interface {
	Write(data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type subscriber struct {
	conn    Conn
	mu      sync.Mutex
	lastSeq uint64
	wrote   bool
}

// WriteMessage serializes writes so broadcasts and acks never interleave.
func (s *subscriber) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.Write(data)
}

// WriteSnapshot delivers a presence frame unless a newer one already went
// out. Snapshots are full replaces, so writing an older frame after a newer
// one would park the client on stale state; dropping it is always safe.
func (s *subscriber) WriteSnapshot(seq uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wrote && seq <= s.lastSeq {
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.Write(data); err != nil {
		return err
	}
	s.lastSeq = seq
	s.wrote = true
	return nil
}

type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	default:
		return "unknown"
	}
}

type session struct {
	id            string
	state         sessionState
	sub           *subscriber
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

// Hub owns all live sessions and drives presence synchronization: every
// accepted intent mutates the presence store and fans the full snapshot out
// to every subscriber.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session
	presence *PresenceStore
	seq      uint64

	logger    *log.Logger
	publisher logging.Publisher
	newID     func() string
}

// HubConfig carries optional collaborators; zero values fall back to
// log.Default, a nop publisher, and uuid identity.
type HubConfig struct {
	Logger    *log.Logger
	Publisher logging.Publisher
	NewID     func() string
}

func NewHub() *Hub {
	return NewHubWithConfig(HubConfig{})
}

func NewHubWithConfig(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Hub{
		sessions:  make(map[string]*session),
		presence:  NewPresenceStore(),
		logger:    logger,
		publisher: publisher,
		newID:     newID,
	}
}

// Join mints a connection id and registers a session in the connecting
// state. No presence entry exists until the client announces.
func (h *Hub) Join() joinResponse {
	id := h.newID()

	h.mu.Lock()
	h.sessions[id] = &session{id: id, state: stateConnecting, lastHeartbeat: time.Now()}
	h.mu.Unlock()

	presencelog.Connected(context.Background(), h.publisher, id)

	return joinResponse{Ver: ProtocolVersion, ID: id, Players: h.presence.Snapshot()}
}

// Subscribe attaches a transport connection to an existing session and
// returns the current snapshot, with its sequence, for the initial push.
// A second subscribe for the same id replaces (and closes) the previous
// connection.
func (h *Hub) Subscribe(id string, conn Conn) (*subscriber, map[string]Entry, uint64, bool) {
	h.mu.Lock()
	state, ok := h.sessions[id]
	if !ok {
		h.mu.Unlock()
		return nil, nil, 0, false
	}

	state.lastHeartbeat = time.Now()

	var stale *subscriber
	if state.sub != nil {
		stale = state.sub
	}
	sub := &subscriber{conn: conn}
	state.sub = sub
	snapshot := h.presence.Snapshot()
	seq := h.seq
	h.mu.Unlock()

	if stale != nil {
		stale.conn.Close()
	}

	return sub, snapshot, seq, true
}

// HandleAnnounce creates the presence entry for a connecting session and
// broadcasts the grown snapshot to everyone, the newcomer included.
func (h *Hub) HandleAnnounce(id string, x, y float64, sprite string) (map[string]Entry, bool) {
	if !validCoords(x, y) {
		h.logger.Printf("dropping announce with bad coordinates from %s", id)
		return nil, false
	}

	// Session check and presence mutation stay under one lock so an
	// announce racing a disconnect can never orphan an entry.
	h.mu.Lock()
	state, ok := h.sessions[id]
	if !ok {
		h.mu.Unlock()
		return nil, false
	}
	state.state = stateActive
	snapshot := h.presence.Upsert(id, x, y, sprite)
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	presencelog.Announced(context.Background(), h.publisher, id, x, y)
	go h.broadcast(seq, snapshot)
	return snapshot, true
}

// HandlePosition updates an active entry in place and broadcasts. Reports
// from sessions that never announced, or that already disconnected, are
// stale and ignored.
func (h *Hub) HandlePosition(id string, x, y float64) (map[string]Entry, bool) {
	if !validCoords(x, y) {
		h.logger.Printf("dropping position with bad coordinates from %s", id)
		return nil, false
	}

	h.mu.Lock()
	state, ok := h.sessions[id]
	if !ok || state.state != stateActive {
		h.mu.Unlock()
		return nil, false
	}
	snapshot, moved := h.presence.Move(id, x, y)
	var seq uint64
	if moved {
		h.seq++
		seq = h.seq
	}
	h.mu.Unlock()

	if !moved {
		return nil, false
	}
	go h.broadcast(seq, snapshot)
	return snapshot, true
}

// Disconnect tears the session down and broadcasts the shrunk snapshot to
// the remaining subscribers. Disconnecting twice is a no-op the second time.
func (h *Hub) Disconnect(id string) (map[string]Entry, bool) {
	h.mu.Lock()
	state, ok := h.sessions[id]
	var sub *subscriber
	var snapshot map[string]Entry
	var seq uint64
	removed := false
	if ok {
		sub = state.sub
		delete(h.sessions, id)
		snapshot, removed = h.presence.Remove(id)
		if removed {
			h.seq++
			seq = h.seq
		}
	}
	h.mu.Unlock()

	if !ok {
		return nil, false
	}

	if sub != nil {
		sub.conn.Close()
	}

	presencelog.Disconnected(context.Background(), h.publisher, id)

	if removed {
		go h.broadcast(seq, snapshot)
	}
	return snapshot, true
}

// UpdateHeartbeat records liveness and computes the round-trip estimate from
// the client-reported send time.
func (h *Hub) UpdateHeartbeat(id string, receivedAt time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.sessions[id]
	if !ok {
		return 0, false
	}

	state.lastHeartbeat = receivedAt

	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt := receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			state.lastRTT = rtt
		}
	}

	return state.lastRTT, true
}

// Snapshot exposes the current presence mapping.
func (h *Hub) Snapshot() map[string]Entry {
	return h.presence.Snapshot()
}

// DiagnosticsSnapshot exposes session liveness for the diagnostics endpoint.
func (h *Hub) DiagnosticsSnapshot() []diagnosticsSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions := make([]diagnosticsSession, 0, len(h.sessions))
	for _, state := range h.sessions {
		sessions = append(sessions, diagnosticsSession{
			Ver:           ProtocolVersion,
			ID:            state.id,
			State:         state.state.String(),
			LastHeartbeat: state.lastHeartbeat.UnixMilli(),
			RTTMillis:     state.lastRTT.Milliseconds(),
		})
	}
	return sessions
}

// MarshalPresence encodes a snapshot as the wire presence frame. The
// sequence lets receivers (and subscribers server-side) order full-replace
// frames that raced each other.
func (h *Hub) MarshalPresence(seq uint64, snapshot map[string]Entry) ([]byte, error) {
	if snapshot == nil {
		snapshot = h.presence.Snapshot()
	}
	return json.Marshal(presenceMessage{
		Ver:        ProtocolVersion,
		Type:       "presence",
		Sequence:   seq,
		Players:    snapshot,
		ServerTime: time.Now().UnixMilli(),
	})
}

// broadcast pushes the snapshot to every subscriber present at call time.
// Delivery order is enforced per subscriber by WriteSnapshot: a frame that
// lost the race to a newer one is dropped, never written late. A failed
// write evicts that subscriber and triggers a fresh broadcast so the
// remaining clients converge; one bad connection never stalls the rest.
func (h *Hub) broadcast(seq uint64, snapshot map[string]Entry) {
	data, err := h.MarshalPresence(seq, snapshot)
	if err != nil {
		h.logger.Printf("failed to marshal presence message: %v", err)
		return
	}

	h.mu.Lock()
	subs := make(map[string]*subscriber, len(h.sessions))
	for id, state := range h.sessions {
		if state.sub != nil {
			subs[id] = state.sub
		}
	}
	h.mu.Unlock()

	for id, sub := range subs {
		if err := sub.WriteSnapshot(seq, data); err != nil {
			h.logger.Printf("failed to send presence to %s: %v", id, err)
			h.Disconnect(id)
		}
	}
}

func validCoords(x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	return !math.IsInf(x, 0) && !math.IsInf(y, 0)
}
