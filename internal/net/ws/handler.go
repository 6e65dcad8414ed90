package ws

import (
	"context"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	server "cardquest/server"
	"cardquest/server/internal/ledger"
	"cardquest/server/internal/net/proto"
)

const ledgerTimeout = 10 * time.Second

type HandlerConfig struct {
	Logger *log.Logger
}

// Handler bridges websocket connections into the hub and ledger. It reads
// intents off the wire, validates them, and dispatches: presence intents run
// inline, ledger intents run on their own goroutine so durable-store latency
// never stalls position traffic.
type Handler struct {
	hub      *server.Hub
	ledger   *ledger.Service
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, svc *ledger.Service, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		ledger:   svc,
		logger:   logger,
		upgrader: upgrader,
	}
}

// wsConn adapts a gorilla connection to the hub's write-side contract.
type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) Write(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c wsConn) Close() error {
	return c.conn.Close()
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", id, err)
		return
	}

	sub, snapshot, seq, ok := h.hub.Subscribe(id, wsConn{conn: conn})
	if !ok {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown connection")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	// The initial push carries the subscribe-time sequence so a broadcast
	// racing the handshake can supersede it but never be shadowed by it.
	data, err := h.hub.MarshalPresence(seq, snapshot)
	if err != nil {
		h.logger.Printf("failed to marshal initial snapshot for %s: %v", id, err)
		h.hub.Disconnect(id)
		return
	}
	if err := sub.WriteSnapshot(seq, data); err != nil {
		h.hub.Disconnect(id)
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Disconnect(id)
			return
		}

		intent, err := proto.Decode(payload)
		if err != nil {
			h.logger.Printf("discarding malformed intent from %s: %v", id, err)
			continue
		}

		switch msg := intent.(type) {
		case proto.Announce:
			if _, ok := h.hub.HandleAnnounce(id, msg.X, msg.Y, msg.Sprite); !ok {
				h.logger.Printf("announce ignored for unknown connection %s", id)
			}
		case proto.Position:
			if _, ok := h.hub.HandlePosition(id, msg.X, msg.Y); !ok {
				h.logger.Printf("position ignored for stale connection %s", id)
			}
		case proto.CollectCard:
			go h.collectCard(id, msg)
		case proto.CombatResult:
			go h.applyCombatResult(id, msg)
		case proto.Heartbeat:
			now := time.Now()
			rtt, ok := h.hub.UpdateHeartbeat(id, now, msg.SentAt)
			if !ok {
				continue
			}
			ack, err := proto.HeartbeatAck(server.ProtocolVersion, now.UnixMilli(), msg.SentAt, rtt.Milliseconds())
			if err != nil {
				h.logger.Printf("failed to marshal heartbeat ack for %s: %v", id, err)
				continue
			}
			if err := sub.WriteMessage(ack); err != nil {
				h.hub.Disconnect(id)
				return
			}
		}
	}
}

// Ledger failures are fire-and-forget toward the client: logged here, never
// surfaced to peers, never allowed to break the presence loop.
func (h *Handler) collectCard(id string, msg proto.CollectCard) {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
	defer cancel()
	if _, err := h.ledger.CollectCard(ctx, msg.CardID, msg.Name, msg.AttackLife, id); err != nil {
		h.logger.Printf("collectCard %s failed for %s: %v", msg.CardID, id, err)
	}
}

func (h *Handler) applyCombatResult(id string, msg proto.CombatResult) {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
	defer cancel()
	if _, err := h.ledger.ApplyCombatResult(ctx, msg.CardID, id, msg.ExpGained); err != nil {
		h.logger.Printf("combatResult %s failed for %s: %v", msg.CardID, id, err)
	}
}
