package ledgerlog

import (
	"context"

	"cardquest/server/logging"
)

const (
	// EventCardCollected is emitted when a card is claimed.
	EventCardCollected logging.EventType = "ledger.card_collected"
	// EventCombatApplied is emitted when a combat result levels a card.
	EventCombatApplied logging.EventType = "ledger.combat_applied"
	// EventWriteFailed is emitted when a durable write is refused or errors.
	EventWriteFailed logging.EventType = "ledger.write_failed"
)

// CardPayload captures the card state after a ledger write.
type CardPayload struct {
	CardID     string `json:"cardId"`
	Experience int    `json:"experience"`
	Level      int    `json:"level"`
	AttackLife int    `json:"attackLife"`
}

func CardCollected(ctx context.Context, pub logging.Publisher, claimant string, payload CardPayload) {
	publish(ctx, pub, EventCardCollected, claimant, logging.SeverityInfo, payload)
}

func CombatApplied(ctx context.Context, pub logging.Publisher, claimant string, payload CardPayload) {
	publish(ctx, pub, EventCombatApplied, claimant, logging.SeverityInfo, payload)
}

func WriteFailed(ctx context.Context, pub logging.Publisher, claimant string, err error) {
	publish(ctx, pub, EventWriteFailed, claimant, logging.SeverityWarn, map[string]any{"error": err.Error()})
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, claimant string, severity logging.Severity, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Actor:    logging.EntityRef{ID: claimant, Kind: logging.EntityKindPlayer},
		Severity: severity,
		Category: logging.CategoryLedger,
		Payload:  payload,
	})
}
