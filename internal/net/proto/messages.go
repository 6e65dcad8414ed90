package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedIntent signals a frame that fails validation; the gateway logs
// and drops these without touching hub or ledger state.
var ErrMalformedIntent = errors.New("proto: malformed intent")

// ClientFrame is the raw envelope read off the wire. Pointer fields
// distinguish absent from zero so validation can reject missing values
// instead of silently coercing them.
type ClientFrame struct {
	Ver        int        `json:"ver,omitempty"`
	Type       string     `json:"type"`
	X          *float64   `json:"x,omitempty"`
	Y          *float64   `json:"y,omitempty"`
	Sprite     string     `json:"sprite,omitempty"`
	CardID     string     `json:"cardId,omitempty"`
	Name       string     `json:"name,omitempty"`
	AttackLife *int       `json:"attackLife,omitempty"`
	Winner     *WinnerRef `json:"winner,omitempty"`
	ExpGained  *int       `json:"expGained,omitempty"`
	SentAt     int64      `json:"sentAt,omitempty"`
}

type WinnerRef struct {
	CardID string `json:"cardId"`
}

// Intent is the validated, typed form of one client frame.
type Intent interface {
	intent()
}

type Announce struct {
	X      float64
	Y      float64
	Sprite string
}

type Position struct {
	X float64
	Y float64
}

type CollectCard struct {
	CardID     string
	Name       string
	AttackLife int
}

type CombatResult struct {
	CardID    string
	ExpGained int
}

type Heartbeat struct {
	SentAt int64
}

func (Announce) intent()     {}
func (Position) intent()     {}
func (CollectCard) intent()  {}
func (CombatResult) intent() {}
func (Heartbeat) intent()    {}

// Decode parses and validates one frame. Anything that does not decode into
// a known intent with all required fields comes back as ErrMalformedIntent.
func Decode(payload []byte) (Intent, error) {
	var frame ClientFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIntent, err)
	}

	switch frame.Type {
	case "announce":
		x, y, err := coords(frame.X, frame.Y)
		if err != nil {
			return nil, err
		}
		return Announce{X: x, Y: y, Sprite: frame.Sprite}, nil
	case "position":
		x, y, err := coords(frame.X, frame.Y)
		if err != nil {
			return nil, err
		}
		return Position{X: x, Y: y}, nil
	case "collectCard":
		if frame.CardID == "" {
			return nil, fmt.Errorf("%w: collectCard requires cardId", ErrMalformedIntent)
		}
		if frame.AttackLife == nil || *frame.AttackLife < 0 {
			return nil, fmt.Errorf("%w: collectCard requires non-negative attackLife", ErrMalformedIntent)
		}
		return CollectCard{CardID: frame.CardID, Name: frame.Name, AttackLife: *frame.AttackLife}, nil
	case "combatResult":
		if frame.Winner == nil || frame.Winner.CardID == "" {
			return nil, fmt.Errorf("%w: combatResult requires winner.cardId", ErrMalformedIntent)
		}
		if frame.ExpGained == nil || *frame.ExpGained < 0 {
			return nil, fmt.Errorf("%w: combatResult requires non-negative expGained", ErrMalformedIntent)
		}
		return CombatResult{CardID: frame.Winner.CardID, ExpGained: *frame.ExpGained}, nil
	case "heartbeat":
		return Heartbeat{SentAt: frame.SentAt}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedIntent, frame.Type)
	}
}

func coords(x, y *float64) (float64, float64, error) {
	if x == nil || y == nil {
		return 0, 0, fmt.Errorf("%w: missing coordinates", ErrMalformedIntent)
	}
	for _, v := range []float64{*x, *y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, fmt.Errorf("%w: non-finite coordinate", ErrMalformedIntent)
		}
	}
	return *x, *y, nil
}

type heartbeatAck struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

// HeartbeatAck encodes the heartbeat reply frame.
func HeartbeatAck(ver int, serverTime, clientTime, rttMillis int64) ([]byte, error) {
	return json.Marshal(heartbeatAck{
		Ver:        ver,
		Type:       "heartbeat",
		ServerTime: serverTime,
		ClientTime: clientTime,
		RTTMillis:  rttMillis,
	})
}
