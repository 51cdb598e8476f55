package engine

import "github.com/google/uuid"

// Log actors that are not players.
const (
	ActorSystem = "system"
	ActorMarket = "market"
)

// PlayLogEntry is one line of a match's append-only history.
type PlayLogEntry struct {
	ID        string `json:"id"`
	Round     int    `json:"round"`
	Phase     Phase  `json:"phase"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// newID returns a fresh "prefix-<uuid>" identifier.
func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
