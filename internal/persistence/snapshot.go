package persistence

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"

	"github.com/talgya/market-disruption/internal/engine"
)

// ErrNotFound is returned when a match has no saved snapshot.
var ErrNotFound = errors.New("persistence: match not found")

// ChainError reports the first snapshot whose hash does not verify.
type ChainError struct {
	MatchID string
	Seq     int
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("snapshot chain for match %s broken at seq %d", e.MatchID, e.Seq)
}

// MatchSummary is one row of the matches table.
type MatchSummary struct {
	ID        string `db:"id" json:"id"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
	Round     int    `db:"round" json:"round"`
	Phase     string `db:"phase" json:"phase"`
	Players   int    `db:"players" json:"players"`
	Ended     bool   `db:"ended" json:"ended"`
	Winner    string `db:"winner" json:"winner,omitempty"`
	Logged    int    `db:"logged" json:"-"`
}

type snapshotRow struct {
	Seq      int    `db:"seq"`
	State    []byte `db:"state"`
	Hash     string `db:"hash"`
	PrevHash string `db:"prev_hash"`
}

func compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(src []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
}

// chainHash links a snapshot to its predecessor.
func chainHash(state []byte, prevHash string) string {
	h := blake3.New(32, nil)
	h.Write(state)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// SaveMatch records the match row, appends a chained snapshot of the state
// and appends any play log entries not yet stored.
func (db *DB) SaveMatch(g *engine.GameState) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode match %s: %w", g.ID, err)
	}
	packed, err := compress(raw)
	if err != nil {
		return fmt.Errorf("compress match %s: %w", g.ID, err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var last snapshotRow
	err = tx.Get(&last, "SELECT seq, hash FROM snapshots WHERE match_id = ? ORDER BY seq DESC LIMIT 1", g.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read chain head: %w", err)
	}

	now := time.Now().Unix()
	ended := 0
	if g.GameEnded {
		ended = 1
	}
	_, err = tx.Exec(`INSERT INTO matches
		(id, created_at, updated_at, round, phase, players, ended, winner, logged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			round = excluded.round,
			phase = excluded.phase,
			players = excluded.players,
			ended = excluded.ended,
			winner = excluded.winner`,
		g.ID, now, now, g.Round, g.Phase.String(), len(g.Seats), ended, g.Winner,
	)
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", g.ID, err)
	}

	_, err = tx.Exec(`INSERT INTO snapshots
		(match_id, seq, round, state, hash, prev_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, last.Seq+1, g.Round, packed, chainHash(packed, last.Hash), last.Hash, now,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %s/%d: %w", g.ID, last.Seq+1, err)
	}

	var logged int
	if err := tx.Get(&logged, "SELECT logged FROM matches WHERE id = ?", g.ID); err != nil {
		return fmt.Errorf("read log offset: %w", err)
	}
	if logged < len(g.PlayLog) {
		stmt, err := tx.Preparex(`INSERT INTO play_log
			(match_id, seq, entry_id, round, phase, actor, action, details, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := logged; i < len(g.PlayLog); i++ {
			e := g.PlayLog[i]
			if _, err := stmt.Exec(g.ID, i, e.ID, e.Round, e.Phase.String(), e.Actor, e.Action, e.Details, e.Timestamp); err != nil {
				return fmt.Errorf("insert log entry %s: %w", e.ID, err)
			}
		}
		if _, err := tx.Exec("UPDATE matches SET logged = ? WHERE id = ?", len(g.PlayLog), g.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("match saved", "match", g.ID, "seq", last.Seq+1, "round", g.Round, "bytes", len(packed))
	return nil
}

func decodeState(packed []byte) (*engine.GameState, error) {
	raw, err := decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	var g engine.GameState
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &g, nil
}

// LoadMatch returns the latest saved state of a match.
func (db *DB) LoadMatch(id string) (*engine.GameState, error) {
	var packed []byte
	err := db.conn.Get(&packed, "SELECT state FROM snapshots WHERE match_id = ? ORDER BY seq DESC LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g, err := decodeState(packed)
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", id, err)
	}
	return g, nil
}

// LoadMatches returns the latest state of every unfinished match.
func (db *DB) LoadMatches() ([]*engine.GameState, error) {
	var ids []string
	if err := db.conn.Select(&ids, "SELECT id FROM matches WHERE ended = 0 ORDER BY created_at, id"); err != nil {
		return nil, err
	}
	out := make([]*engine.GameState, 0, len(ids))
	for _, id := range ids {
		g, err := db.LoadMatch(id)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// ListMatches returns a summary of every stored match, newest first.
func (db *DB) ListMatches() ([]MatchSummary, error) {
	var out []MatchSummary
	err := db.conn.Select(&out, "SELECT * FROM matches ORDER BY updated_at DESC, id")
	return out, err
}

// VerifyChain recomputes every snapshot hash of a match in order. It returns
// a *ChainError at the first mismatch.
func (db *DB) VerifyChain(matchID string) error {
	var rows []snapshotRow
	err := db.conn.Select(&rows, "SELECT seq, state, hash, prev_hash FROM snapshots WHERE match_id = ? ORDER BY seq", matchID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	prev := ""
	for _, r := range rows {
		if r.PrevHash != prev || chainHash(r.State, prev) != r.Hash {
			return &ChainError{MatchID: matchID, Seq: r.Seq}
		}
		prev = r.Hash
	}
	return nil
}
