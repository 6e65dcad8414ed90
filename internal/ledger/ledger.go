package ledger

import (
	"context"
	"errors"
)

// Card is a durable collectible. BaseAttackLife keeps the creation-time stat
// so level growth recomputes instead of compounding.
type Card struct {
	CardID         string `bson:"cardId" json:"cardId"`
	Name           string `bson:"name" json:"name"`
	BaseAttackLife int    `bson:"baseAttackLife" json:"baseAttackLife"`
	AttackLife     int    `bson:"attackLife" json:"attackLife"`
	Experience     int    `bson:"experience" json:"experience"`
	Level          int    `bson:"level" json:"level"`
	Owner          string `bson:"owner" json:"owner"`
}

// PlayerRecord associates a connection-derived identity with its claimed
// cards. It survives disconnects.
type PlayerRecord struct {
	PlayerKey   string   `bson:"playerKey" json:"playerKey"`
	DisplayName string   `bson:"displayName" json:"displayName"`
	Cards       []string `bson:"cards" json:"cards"`
}

var (
	// ErrDuplicateCard signals a collect for a cardId that already exists.
	ErrDuplicateCard = errors.New("ledger: card already exists")
	// ErrCardNotFound signals a combat result for a card the claimant does not own.
	ErrCardNotFound = errors.New("ledger: card not found for claimant")
	// ErrPlayerNotFound signals a lookup for an identity that never collected.
	ErrPlayerNotFound = errors.New("ledger: player not found")
	// ErrStoreUnavailable wraps durable-store I/O failures.
	ErrStoreUnavailable = errors.New("ledger: store unavailable")
)

// Store is the durable backing for cards and player records. Implementations
// must keep cardId globally unique.
type Store interface {
	InsertCard(ctx context.Context, card Card) error
	FindOwnedCard(ctx context.Context, cardID, owner string) (Card, error)
	UpdateCard(ctx context.Context, card Card) error
	DeleteCard(ctx context.Context, cardID, owner string) error
	UpsertPlayerCard(ctx context.Context, playerKey, displayName, cardID string) error
	FindPlayer(ctx context.Context, playerKey string) (PlayerRecord, error)
	Close(ctx context.Context) error
}
