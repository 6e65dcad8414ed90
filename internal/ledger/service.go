package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"

	server "cardquest/server"
	"cardquest/server/logging"
	"cardquest/server/logging/ledgerlog"
)

// Service applies ledger operations one at a time. The mutation mutex keeps
// the find-then-update pair equivalent to a serial ordering even when several
// gateway goroutines submit intents concurrently.
type Service struct {
	mu        sync.Mutex
	store     Store
	logger    *log.Logger
	publisher logging.Publisher
}

type ServiceConfig struct {
	Logger    *log.Logger
	Publisher logging.Publisher
}

func NewService(store Store, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Service{store: store, logger: logger, publisher: publisher}
}

// CollectCard creates the card for the claimant and upserts the claimant's
// player record to reference it. Collecting an existing cardId fails with
// ErrDuplicateCard and leaves the stored card untouched.
func (s *Service) CollectCard(ctx context.Context, cardID, name string, attackLife int, claimant string) (Card, error) {
	if cardID == "" || claimant == "" {
		return Card{}, fmt.Errorf("ledger: collect requires cardId and claimant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	card := Card{
		CardID:         cardID,
		Name:           name,
		BaseAttackLife: attackLife,
		AttackLife:     attackLife,
		Experience:     0,
		Level:          1,
		Owner:          claimant,
	}

	if err := s.store.InsertCard(ctx, card); err != nil {
		ledgerlog.WriteFailed(ctx, s.publisher, claimant, err)
		return Card{}, err
	}

	if err := s.store.UpsertPlayerCard(ctx, claimant, displayName(claimant), cardID); err != nil {
		ledgerlog.WriteFailed(ctx, s.publisher, claimant, err)
		// The card went in but nothing references it; take it back out so
		// every stored card stays reachable from a player record.
		if delErr := s.store.DeleteCard(ctx, cardID, claimant); delErr != nil {
			s.logger.Printf("orphaned card %s left behind for %s: %v", cardID, claimant, delErr)
		}
		return Card{}, err
	}

	ledgerlog.CardCollected(ctx, s.publisher, claimant, cardPayload(card))
	return card, nil
}

// ApplyCombatResult credits experience to a card the claimant owns and
// recomputes level and attack-life from the stored base. Cards owned by a
// different claimant fail with ErrCardNotFound and stay unmodified.
func (s *Service) ApplyCombatResult(ctx context.Context, cardID, claimant string, expGained int) (Card, error) {
	if expGained < 0 {
		return Card{}, fmt.Errorf("ledger: negative experience gain %d", expGained)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.store.FindOwnedCard(ctx, cardID, claimant)
	if err != nil {
		return Card{}, err
	}

	card.Experience += expGained
	card.Level = server.LevelFor(card.Experience)
	card.AttackLife = server.AttackLifeFor(card.BaseAttackLife, card.Level)

	if err := s.store.UpdateCard(ctx, card); err != nil {
		ledgerlog.WriteFailed(ctx, s.publisher, claimant, err)
		return Card{}, err
	}

	ledgerlog.CombatApplied(ctx, s.publisher, claimant, cardPayload(card))
	return card, nil
}

// Player returns the durable record for a connection-derived identity.
func (s *Service) Player(ctx context.Context, playerKey string) (PlayerRecord, error) {
	return s.store.FindPlayer(ctx, playerKey)
}

func displayName(claimant string) string {
	short := claimant
	if len(short) > 4 {
		short = short[:4]
	}
	return "Player" + short
}

func cardPayload(card Card) ledgerlog.CardPayload {
	return ledgerlog.CardPayload{
		CardID:     card.CardID,
		Experience: card.Experience,
		Level:      card.Level,
		AttackLife: card.AttackLife,
	}
}
