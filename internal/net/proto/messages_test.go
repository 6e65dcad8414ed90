package proto

import (
	"errors"
	"testing"
)

func TestDecodeAnnounce(t *testing.T) {
	intent, err := Decode([]byte(`{"type":"announce","x":10,"y":20,"sprite":"wizard"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	announce, ok := intent.(Announce)
	if !ok {
		t.Fatalf("expected Announce, got %T", intent)
	}
	if announce.X != 10 || announce.Y != 20 || announce.Sprite != "wizard" {
		t.Fatalf("unexpected announce %+v", announce)
	}
}

func TestDecodePosition(t *testing.T) {
	intent, err := Decode([]byte(`{"type":"position","x":1.5,"y":-2.5}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	pos, ok := intent.(Position)
	if !ok {
		t.Fatalf("expected Position, got %T", intent)
	}
	if pos.X != 1.5 || pos.Y != -2.5 {
		t.Fatalf("unexpected position %+v", pos)
	}
}

func TestDecodeCollectCard(t *testing.T) {
	intent, err := Decode([]byte(`{"type":"collectCard","cardId":"#001","name":"Dragon","attackLife":50}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	collect, ok := intent.(CollectCard)
	if !ok {
		t.Fatalf("expected CollectCard, got %T", intent)
	}
	if collect.CardID != "#001" || collect.Name != "Dragon" || collect.AttackLife != 50 {
		t.Fatalf("unexpected collect %+v", collect)
	}
}

func TestDecodeCombatResult(t *testing.T) {
	intent, err := Decode([]byte(`{"type":"combatResult","winner":{"cardId":"#001"},"expGained":120}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	combat, ok := intent.(CombatResult)
	if !ok {
		t.Fatalf("expected CombatResult, got %T", intent)
	}
	if combat.CardID != "#001" || combat.ExpGained != 120 {
		t.Fatalf("unexpected combat result %+v", combat)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{{`},
		{"unknown type", `{"type":"teleport"}`},
		{"announce without coordinates", `{"type":"announce"}`},
		{"position missing y", `{"type":"position","x":1}`},
		{"position string coordinate", `{"type":"position","x":"a","y":2}`},
		{"collect without cardId", `{"type":"collectCard","name":"Dragon","attackLife":50}`},
		{"collect negative attackLife", `{"type":"collectCard","cardId":"#001","attackLife":-1}`},
		{"combat without winner", `{"type":"combatResult","expGained":10}`},
		{"combat negative exp", `{"type":"combatResult","winner":{"cardId":"#001"},"expGained":-1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.payload)); !errors.Is(err, ErrMalformedIntent) {
				t.Fatalf("expected ErrMalformedIntent, got %v", err)
			}
		})
	}
}

func TestSchemasCoverClientFrames(t *testing.T) {
	schemas := Schemas()
	for _, name := range []string{"clientFrame", "heartbeatAck"} {
		if schemas[name] == nil {
			t.Fatalf("schema %q missing", name)
		}
	}
}
