package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

type recordingConn struct {
	mu        sync.Mutex
	frames    [][]byte
	deadlines []time.Time
	closed    bool
	failWrite bool
}

func (c *recordingConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errors.New("write refused")
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	c.frames = append(c.frames, copied)
	return nil
}

func (c *recordingConn) SetWriteDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, deadline)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// lastPresence decodes the most recent presence frame written to the conn.
func (c *recordingConn) lastPresence(t *testing.T) (map[string]Entry, bool) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil, false
	}
	var msg presenceMessage
	if err := json.Unmarshal(c.frames[len(c.frames)-1], &msg); err != nil {
		t.Fatalf("failed to decode presence frame: %v", err)
	}
	return msg.Players, true
}

// presenceFrames decodes every presence frame written to the conn, in
// delivery order.
func (c *recordingConn) presenceFrames(t *testing.T) []presenceMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([]presenceMessage, 0, len(c.frames))
	for _, raw := range c.frames {
		var msg presenceMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to decode presence frame: %v", err)
		}
		frames = append(frames, msg)
	}
	return frames
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestHub() *Hub {
	next := 0
	return NewHubWithConfig(HubConfig{
		NewID: func() string {
			next++
			return fmt.Sprintf("conn-%d", next)
		},
	})
}

func TestJoinStartsConnecting(t *testing.T) {
	hub := newTestHub()

	join := hub.Join()
	if join.ID == "" {
		t.Fatal("join must mint an id")
	}
	if len(join.Players) != 0 {
		t.Fatalf("no presence entry before announce, got %d", len(join.Players))
	}

	sessions := hub.DiagnosticsSnapshot()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].State != "connecting" {
		t.Fatalf("expected connecting state, got %q", sessions[0].State)
	}
}

func TestAnnounceCreatesEntryAndBroadcasts(t *testing.T) {
	hub := newTestHub()
	join := hub.Join()
	conn := &recordingConn{}
	if _, _, _, ok := hub.Subscribe(join.ID, conn); !ok {
		t.Fatal("subscribe failed for joined id")
	}

	snapshot, ok := hub.HandleAnnounce(join.ID, 10, 20, "")
	if !ok {
		t.Fatal("announce rejected for subscribed session")
	}
	entry, present := snapshot[join.ID]
	if !present {
		t.Fatal("announce did not create a presence entry")
	}
	if entry.X != 10 || entry.Y != 20 || entry.Sprite != defaultSprite {
		t.Fatalf("unexpected entry %+v", entry)
	}

	waitFor(t, "announcer to receive its own snapshot", func() bool {
		players, ok := conn.lastPresence(t)
		return ok && len(players) == 1
	})

	if _, ok := hub.HandleAnnounce("ghost", 1, 2, ""); ok {
		t.Fatal("announce for unknown id must be rejected")
	}
}

func TestPositionRequiresActiveSession(t *testing.T) {
	hub := newTestHub()
	join := hub.Join()

	// Connecting but never announced: position reports are premature.
	if _, ok := hub.HandlePosition(join.ID, 5, 5); ok {
		t.Fatal("position accepted before announce")
	}

	hub.HandleAnnounce(join.ID, 10, 20, "")
	snapshot, ok := hub.HandlePosition(join.ID, 30, 40)
	if !ok {
		t.Fatal("position rejected for active session")
	}
	if entry := snapshot[join.ID]; entry.X != 30 || entry.Y != 40 {
		t.Fatalf("position not applied: %+v", entry)
	}
}

func TestDisconnectRemovesEntryAndGoesStale(t *testing.T) {
	hub := newTestHub()
	join := hub.Join()
	hub.HandleAnnounce(join.ID, 10, 20, "")

	snapshot, ok := hub.Disconnect(join.ID)
	if !ok {
		t.Fatal("first disconnect must succeed")
	}
	if len(snapshot) != 0 {
		t.Fatalf("entry survived disconnect: %d entries", len(snapshot))
	}

	if _, ok := hub.Disconnect(join.ID); ok {
		t.Fatal("second disconnect must be a no-op")
	}
	if hub.presence.Len() != 0 {
		t.Fatal("second disconnect changed presence")
	}

	// Intents carrying a disconnected id are stale.
	if _, ok := hub.HandlePosition(join.ID, 1, 1); ok {
		t.Fatal("stale position accepted after disconnect")
	}
	if _, ok := hub.HandleAnnounce(join.ID, 1, 1, ""); ok {
		t.Fatal("stale announce accepted after disconnect")
	}
}

func TestTwoClientScenario(t *testing.T) {
	hub := newTestHub()

	joinA := hub.Join()
	connA := &recordingConn{}
	hub.Subscribe(joinA.ID, connA)
	hub.HandleAnnounce(joinA.ID, 10, 20, "")

	joinB := hub.Join()
	connB := &recordingConn{}
	hub.Subscribe(joinB.ID, connB)
	hub.HandleAnnounce(joinB.ID, 30, 40, "")

	bothVisible := func(conn *recordingConn) func() bool {
		return func() bool {
			players, ok := conn.lastPresence(t)
			if !ok || len(players) != 2 {
				return false
			}
			a, b := players[joinA.ID], players[joinB.ID]
			return a.X == 10 && a.Y == 20 && b.X == 30 && b.Y == 40
		}
	}
	waitFor(t, "client A to see both entries", bothVisible(connA))
	waitFor(t, "client B to see both entries", bothVisible(connB))

	hub.Disconnect(joinA.ID)

	waitFor(t, "client B to see only itself", func() bool {
		players, ok := connB.lastPresence(t)
		if !ok || len(players) != 1 {
			return false
		}
		_, onlyB := players[joinB.ID]
		return onlyB
	})
	if !connA.isClosed() {
		t.Fatal("disconnect must close the subscriber connection")
	}
}

func TestBroadcastEvictsFailedWriter(t *testing.T) {
	hub := newTestHub()

	joinBad := hub.Join()
	bad := &recordingConn{failWrite: true}
	hub.Subscribe(joinBad.ID, bad)
	hub.HandleAnnounce(joinBad.ID, 1, 1, "")

	joinGood := hub.Join()
	good := &recordingConn{}
	hub.Subscribe(joinGood.ID, good)
	hub.HandleAnnounce(joinGood.ID, 2, 2, "")

	waitFor(t, "failed writer to be evicted", func() bool {
		_, present := hub.Snapshot()[joinBad.ID]
		return !present && bad.isClosed()
	})
	waitFor(t, "survivor to converge on the shrunk snapshot", func() bool {
		players, ok := good.lastPresence(t)
		if !ok || len(players) != 1 {
			return false
		}
		_, present := players[joinGood.ID]
		return present
	})
}

func TestSubscribeReplacesExistingConn(t *testing.T) {
	hub := newTestHub()
	join := hub.Join()

	first := &recordingConn{}
	hub.Subscribe(join.ID, first)

	second := &recordingConn{}
	if _, _, _, ok := hub.Subscribe(join.ID, second); !ok {
		t.Fatal("resubscribe failed")
	}
	if !first.isClosed() {
		t.Fatal("stale connection must be closed on resubscribe")
	}
}

func TestMalformedCoordinatesAreDropped(t *testing.T) {
	hub := newTestHub()
	join := hub.Join()
	hub.HandleAnnounce(join.ID, 10, 20, "")

	if _, ok := hub.HandlePosition(join.ID, math.NaN(), 5); ok {
		t.Fatal("NaN coordinate accepted")
	}
	if _, ok := hub.HandlePosition(join.ID, 5, math.Inf(1)); ok {
		t.Fatal("Inf coordinate accepted")
	}

	entry := hub.Snapshot()[join.ID]
	if entry.X != 10 || entry.Y != 20 {
		t.Fatalf("malformed report corrupted the entry: %+v", entry)
	}
}

// Replaying the same per-connection intent sequences in two different
// interleavings must land on the same final presence mapping.
func TestInterleavingsConverge(t *testing.T) {
	type step struct {
		conn int
		x, y float64
	}

	perConn := [][]step{
		{{0, 10, 10}, {0, 11, 11}, {0, 12, 12}},
		{{1, 20, 20}, {1, 21, 21}},
		{{2, 30, 30}, {2, 31, 31}, {2, 32, 32}},
	}

	run := func(order []int) map[string]Entry {
		hub := newTestHub()
		ids := make([]string, len(perConn))
		cursor := make([]int, len(perConn))
		for i := range perConn {
			ids[i] = hub.Join().ID
		}
		for _, conn := range order {
			s := perConn[conn][cursor[conn]]
			cursor[conn]++
			if cursor[conn] == 1 {
				hub.HandleAnnounce(ids[conn], s.x, s.y, "")
			} else {
				hub.HandlePosition(ids[conn], s.x, s.y)
			}
		}
		return hub.Snapshot()
	}

	sequential := run([]int{0, 0, 0, 1, 1, 2, 2, 2})
	interleaved := run([]int{2, 0, 1, 2, 0, 1, 0, 2})

	if len(sequential) != len(interleaved) {
		t.Fatalf("diverging entry counts: %d vs %d", len(sequential), len(interleaved))
	}
	for id, want := range sequential {
		got, ok := interleaved[id]
		if !ok {
			t.Fatalf("entry %s missing from interleaved replay", id)
		}
		if got != want {
			t.Fatalf("entry %s diverged: %+v vs %+v", id, got, want)
		}
	}
}

// A burst of rapid mutations fans out on concurrent goroutines, so frames
// can race each other toward a subscriber. The last frame the subscriber
// holds must still describe the final store state, and delivered sequences
// must only ever move forward.
func TestBroadcastBurstDeliversFinalState(t *testing.T) {
	hub := newTestHub()
	join := hub.Join()
	conn := &recordingConn{}
	hub.Subscribe(join.ID, conn)

	const moves = 50
	hub.HandleAnnounce(join.ID, 0, 0, "")
	for i := 1; i <= moves; i++ {
		hub.HandlePosition(join.ID, float64(i), float64(i))
	}

	want := hub.Snapshot()[join.ID]
	if want.X != moves || want.Y != moves {
		t.Fatalf("store did not apply the burst: %+v", want)
	}

	waitFor(t, "subscriber to land on the final snapshot", func() bool {
		players, ok := conn.lastPresence(t)
		if !ok {
			return false
		}
		entry := players[join.ID]
		return entry.X == want.X && entry.Y == want.Y
	})

	var prev uint64
	for i, frame := range conn.presenceFrames(t) {
		if frame.Sequence <= prev && i > 0 {
			t.Fatalf("frame %d delivered out of order: sequence %d after %d", i, frame.Sequence, prev)
		}
		prev = frame.Sequence
	}
}

func TestUpdateHeartbeat(t *testing.T) {
	hub := newTestHub()
	join := hub.Join()

	now := time.Now()
	sent := now.Add(-25 * time.Millisecond).UnixMilli()
	rtt, ok := hub.UpdateHeartbeat(join.ID, now, sent)
	if !ok {
		t.Fatal("heartbeat rejected for live session")
	}
	if rtt <= 0 {
		t.Fatalf("expected positive rtt, got %v", rtt)
	}

	if _, ok := hub.UpdateHeartbeat("ghost", now, sent); ok {
		t.Fatal("heartbeat accepted for unknown session")
	}
}
