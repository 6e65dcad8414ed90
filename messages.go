package server

// joinResponse is returned from POST /join with the freshly minted id.
type joinResponse struct {
	Ver     int              `json:"ver"`
	ID      string           `json:"id"`
	Players map[string]Entry `json:"players"`
}

// presenceMessage carries the full snapshot pushed after every mutation.
// Sequence increases with every mutation; a frame replaces everything the
// receiver holds, so only the highest sequence seen matters.
type presenceMessage struct {
	Ver        int              `json:"ver"`
	Type       string           `json:"type"`
	Sequence   uint64           `json:"sequence"`
	Players    map[string]Entry `json:"players"`
	ServerTime int64            `json:"serverTime"`
}

type diagnosticsSession struct {
	Ver           int    `json:"ver"`
	ID            string `json:"id"`
	State         string `json:"state"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
}
