package ledger

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used in tests and when no MongoDB URI
// is configured. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	cards   map[string]Card
	players map[string]PlayerRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:   make(map[string]Card),
		players: make(map[string]PlayerRecord),
	}
}

func (s *MemoryStore) InsertCard(ctx context.Context, card Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cards[card.CardID]; exists {
		return ErrDuplicateCard
	}
	s.cards[card.CardID] = card
	return nil
}

func (s *MemoryStore) FindOwnedCard(ctx context.Context, cardID, owner string) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[cardID]
	if !ok || card.Owner != owner {
		return Card{}, ErrCardNotFound
	}
	return card, nil
}

func (s *MemoryStore) UpdateCard(ctx context.Context, card Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.cards[card.CardID]
	if !ok || existing.Owner != card.Owner {
		return ErrCardNotFound
	}
	s.cards[card.CardID] = card
	return nil
}

func (s *MemoryStore) DeleteCard(ctx context.Context, cardID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[cardID]
	if !ok || card.Owner != owner {
		return ErrCardNotFound
	}
	delete(s.cards, cardID)
	return nil
}

func (s *MemoryStore) UpsertPlayerCard(ctx context.Context, playerKey, displayName, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.players[playerKey]
	if !ok {
		record = PlayerRecord{PlayerKey: playerKey}
	}
	record.DisplayName = displayName
	for _, existing := range record.Cards {
		if existing == cardID {
			s.players[playerKey] = record
			return nil
		}
	}
	record.Cards = append(record.Cards, cardID)
	s.players[playerKey] = record
	return nil
}

func (s *MemoryStore) FindPlayer(ctx context.Context, playerKey string) (PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.players[playerKey]
	if !ok {
		return PlayerRecord{}, ErrPlayerNotFound
	}
	copied := record
	copied.Cards = append([]string(nil), record.Cards...)
	return copied, nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
