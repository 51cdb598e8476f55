package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/engine"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newMatch(t *testing.T, id string) *engine.Match {
	t.Helper()
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	m, err := engine.NewMatch(id, 2, dice.NewSeeded(11), engine.WithClock(clock))
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	return m
}

func encode(t *testing.T, g *engine.GameState) []byte {
	t.Helper()
	b, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestMeta(t *testing.T) {
	db := openTest(t)
	if v, err := db.GetMeta("seed"); err != nil || v != "" {
		t.Fatalf("got %q %v for missing key", v, err)
	}
	if err := db.SaveMeta("seed", "42"); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
	if err := db.SaveMeta("seed", "43"); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
	if v, _ := db.GetMeta("seed"); v != "43" {
		t.Fatalf("got %q, want 43", v)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte(`{"market":[1,2,3]}`), 200)
	packed, err := compress(src)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(packed) >= len(src) {
		t.Fatalf("got %d bytes from %d, want smaller", len(packed), len(src))
	}
	out, err := decompress(packed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatalf("round trip changed the data")
	}
}

func TestSaveAndLoadMatch(t *testing.T) {
	db := openTest(t)
	m := newMatch(t, "m1")
	if err := db.SaveMatch(m.State()); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
	if _, err := m.Apply("0", engine.PartTimeWork{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := db.SaveMatch(m.State()); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}

	got, err := db.LoadMatch("m1")
	if err != nil {
		t.Fatalf("LoadMatch: %v", err)
	}
	if !bytes.Equal(encode(t, got), encode(t, m.State())) {
		t.Fatalf("loaded state differs from saved state")
	}
	if err := db.VerifyChain("m1"); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}

	if _, err := db.LoadMatch("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	list, err := db.ListMatches()
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(list) != 1 || list[0].ID != "m1" || list[0].Players != 2 || list[0].Phase != "action" || list[0].Ended {
		t.Fatalf("got %+v", list)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	db := openTest(t)
	m := newMatch(t, "m1")
	for range 3 {
		if err := db.SaveMatch(m.State()); err != nil {
			t.Fatalf("SaveMatch: %v", err)
		}
	}
	forged, err := compress([]byte(`{"id":"m1"}`))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if _, err := db.conn.Exec("UPDATE snapshots SET state = ? WHERE match_id = ? AND seq = 2", forged, "m1"); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	var chainErr *ChainError
	if err := db.VerifyChain("m1"); !errors.As(err, &chainErr) || chainErr.Seq != 2 {
		t.Fatalf("got %v, want chain broken at seq 2", err)
	}
	if err := db.VerifyChain("other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLoadMatchesSkipsFinished(t *testing.T) {
	db := openTest(t)
	live, done := newMatch(t, "live"), newMatch(t, "done")
	done.State().GameEnded = true
	done.State().Winner = "1"
	for _, m := range []*engine.Match{live, done} {
		if err := db.SaveMatch(m.State()); err != nil {
			t.Fatalf("SaveMatch: %v", err)
		}
	}
	got, err := db.LoadMatches()
	if err != nil {
		t.Fatalf("LoadMatches: %v", err)
	}
	if len(got) != 1 || got[0].ID != "live" {
		t.Fatalf("got %d matches, want only live", len(got))
	}
}

func TestRecentLog(t *testing.T) {
	db := openTest(t)
	m := newMatch(t, "m1")
	if err := db.SaveMatch(m.State()); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
	if _, err := m.Apply("0", engine.PartTimeWork{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := m.Apply("1", engine.DayLabor{}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := db.SaveMatch(m.State()); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}

	all := m.State().PlayLog
	got, err := db.RecentLog("m1", 2)
	if err != nil {
		t.Fatalf("RecentLog: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	for i, e := range got {
		if want := all[len(all)-2+i]; e != want {
			t.Fatalf("entry %d: got %+v, want %+v", i, e, want)
		}
	}

	got, err = db.RecentLog("m1", 100)
	if err != nil {
		t.Fatalf("RecentLog: %v", err)
	}
	if len(got) != len(all) {
		t.Fatalf("got %d entries, want %d", len(got), len(all))
	}
}
