package server

import "sync"

// Entry is the transient state broadcast for one connected client.
type Entry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Sprite string  `json:"sprite"`
}

// PresenceStore owns the authoritative mapping of live connections to their
// transient state. It is never persisted; a restart empties it by design.
type PresenceStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{entries: make(map[string]Entry)}
}

// Upsert inserts or replaces the entry for id and returns the full mapping.
func (s *PresenceStore) Upsert(id string, x, y float64, sprite string) map[string]Entry {
	if sprite == "" {
		sprite = defaultSprite
	}
	s.mu.Lock()
	s.entries[id] = Entry{X: x, Y: y, Sprite: sprite}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return snapshot
}

// Move updates coordinates in place, keeping the stored sprite. It reports
// whether an entry existed; absent ids are left untouched.
func (s *PresenceStore) Move(id string, x, y float64) (map[string]Entry, bool) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	entry.X = x
	entry.Y = y
	s.entries[id] = entry
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return snapshot, true
}

// Remove deletes the entry if present and returns the remaining mapping.
// Removing an absent id is a no-op, not an error.
func (s *PresenceStore) Remove(id string) (map[string]Entry, bool) {
	s.mu.Lock()
	_, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return snapshot, ok
}

// Snapshot returns a point-in-time copy of all entries. Callers own the
// returned map; mutating it never touches the store.
func (s *PresenceStore) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *PresenceStore) snapshotLocked() map[string]Entry {
	snapshot := make(map[string]Entry, len(s.entries))
	for id, entry := range s.entries {
		snapshot[id] = entry
	}
	return snapshot
}

// Len reports the number of live entries.
func (s *PresenceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
