package persistence

import (
	"fmt"

	"github.com/talgya/market-disruption/internal/engine"
)

type logRow struct {
	EntryID string `db:"entry_id"`
	Round   int    `db:"round"`
	Phase   string `db:"phase"`
	Actor   string `db:"actor"`
	Action  string `db:"action"`
	Details string `db:"details"`
	TS      int64  `db:"ts"`
}

// RecentLog returns the last limit play log entries of a match, oldest first.
func (db *DB) RecentLog(matchID string, limit int) ([]engine.PlayLogEntry, error) {
	var rows []logRow
	err := db.conn.Select(&rows,
		`SELECT entry_id, round, phase, actor, action, details, ts FROM play_log
		WHERE match_id = ? ORDER BY seq DESC LIMIT ?`,
		matchID, limit,
	)
	if err != nil {
		return nil, err
	}

	out := make([]engine.PlayLogEntry, len(rows))
	for i, r := range rows {
		var phase engine.Phase
		if err := phase.UnmarshalText([]byte(r.Phase)); err != nil {
			return nil, fmt.Errorf("log entry %s: %w", r.EntryID, err)
		}
		out[len(rows)-1-i] = engine.PlayLogEntry{
			ID:        r.EntryID,
			Round:     r.Round,
			Phase:     phase,
			Actor:     r.Actor,
			Action:    r.Action,
			Details:   r.Details,
			Timestamp: r.TS,
		}
	}
	return out, nil
}
