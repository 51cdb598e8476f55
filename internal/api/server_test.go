package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/market-disruption/internal/config"
	"github.com/talgya/market-disruption/internal/dice"
	"github.com/talgya/market-disruption/internal/engine"
	"github.com/talgya/market-disruption/internal/persistence"
)

func testConfig() config.Server {
	return config.Server{
		AdminKey:  "secret",
		RateLimit: 1000,
		RateBurst: 1000,
		SaveEvery: true,
	}
}

func newTestServer(t *testing.T, cfg config.Server, db *persistence.DB) (*Server, *httptest.Server) {
	t.Helper()
	s := New(cfg, db)
	s.NewDice = func() dice.Source { return dice.NewSeeded(7) }
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func call(t *testing.T, method, url string, body any, header ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, body []byte, status int) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("got status %d, want %d (body %s)", resp.StatusCode, status, body)
	}
}

func wantErrorCode(t *testing.T, body []byte, code engine.Code) {
	t.Helper()
	if got := decode[errorBody](t, body).Code; got != code {
		t.Fatalf("got code %q, want %q", got, code)
	}
}

func createMatch(t *testing.T, ts *httptest.Server, players int) *engine.GameState {
	t.Helper()
	resp, body := call(t, http.MethodPost, ts.URL+"/api/v1/matches", map[string]int{"num_players": players})
	wantStatus(t, resp, body, http.StatusCreated)
	return decode[*engine.GameState](t, body)
}

func action(actor string, kind engine.ActionKind, params any) map[string]any {
	return map[string]any{"actor_id": actor, "type": kind, "params": params}
}

func TestCreateAndPlayRound(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), nil)
	g := createMatch(t, ts, 2)
	if g.Phase != engine.PhaseAction || len(g.Seats) != 2 || g.CurrentPlayerID() != "0" {
		t.Fatalf("got phase %s seats %v current %q", g.Phase, g.Seats, g.CurrentPlayerID())
	}
	base := ts.URL + "/api/v1/matches/" + g.ID

	resp, body := call(t, http.MethodPost, base+"/actions", action("0", engine.KindPartTimeWork, nil))
	wantStatus(t, resp, body, http.StatusOK)
	got := decode[actionResponse](t, body)
	if got.Result.Entry.Action != string(engine.KindPartTimeWork) {
		t.Fatalf("got log action %q", got.Result.Entry.Action)
	}
	if money := got.State.Player("0").Money; money != engine.StartingMoney+5 {
		t.Fatalf("got money %d, want %d", money, engine.StartingMoney+5)
	}

	resp, body = call(t, http.MethodPost, base+"/actions", action("1", engine.KindResearch, nil))
	wantStatus(t, resp, body, http.StatusConflict)
	wantErrorCode(t, body, engine.CodeNotYourTurn)

	resp, body = call(t, http.MethodPost, base+"/end-turn", map[string]string{"actor_id": "0"})
	wantStatus(t, resp, body, http.StatusOK)
	if rr := decode[roundResponse](t, body); rr.Report != nil || rr.State.CurrentPlayerID() != "1" {
		t.Fatalf("got report %v current %q, want no report and seat 1", rr.Report, rr.State.CurrentPlayerID())
	}

	resp, body = call(t, http.MethodPost, base+"/end-turn", map[string]string{"actor_id": "1"})
	wantStatus(t, resp, body, http.StatusOK)
	rr := decode[roundResponse](t, body)
	if rr.Report == nil || rr.Report.Round != 1 || rr.State.Round != 2 {
		t.Fatalf("got report %+v round %d, want round 1 report and round 2", rr.Report, rr.State.Round)
	}

	resp, body = call(t, http.MethodGet, base, nil)
	wantStatus(t, resp, body, http.StatusOK)
	if g := decode[*engine.GameState](t, body); g.Round != 2 {
		t.Fatalf("got round %d, want 2", g.Round)
	}
}

func TestLobbyJoinAndStart(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), nil)
	g := createMatch(t, ts, 0)
	if g.Phase != engine.PhaseLobby {
		t.Fatalf("got phase %s, want lobby", g.Phase)
	}
	base := ts.URL + "/api/v1/matches/" + g.ID

	resp, body := call(t, http.MethodPost, base+"/join", map[string]string{"name": "Ada"})
	wantStatus(t, resp, body, http.StatusCreated)
	p := decode[engine.Player](t, body)
	if p.ID != "0" || p.Name != "Ada" {
		t.Fatalf("got player %q %q", p.ID, p.Name)
	}

	resp, body = call(t, http.MethodPost, base+"/actions", action("0", engine.KindResearch, nil))
	wantStatus(t, resp, body, http.StatusConflict)
	wantErrorCode(t, body, engine.CodeNotStarted)

	resp, body = call(t, http.MethodPost, base+"/start", nil)
	wantStatus(t, resp, body, http.StatusOK)
	started := decode[*engine.GameState](t, body)
	if started.Phase != engine.PhaseAction || len(started.Player("0").Designs) != engine.StartingDesigns {
		t.Fatalf("got phase %s designs %d", started.Phase, len(started.Player("0").Designs))
	}

	resp, body = call(t, http.MethodPost, base+"/join", map[string]string{"name": "Late"})
	wantStatus(t, resp, body, http.StatusUnprocessableEntity)
}

func TestErrorStatuses(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), nil)
	g := createMatch(t, ts, 2)
	base := ts.URL + "/api/v1/matches/" + g.ID

	tests := []struct {
		name   string
		url    string
		body   any
		status int
		code   engine.Code
	}{
		{"unknown match", ts.URL + "/api/v1/matches/nope/actions", action("0", engine.KindResearch, nil), http.StatusNotFound, codeMatchNotFound},
		{"unknown action", base + "/actions", action("0", "teleport", nil), http.StatusBadRequest, engine.CodeUnknownAction},
		{"malformed params", base + "/actions", action("0", engine.KindSell, map[string]any{"price": "high"}), http.StatusBadRequest, engine.CodeBadRequest},
		{"rule violation", base + "/actions", action("0", engine.KindManufacture, map[string]string{"design_id": "missing"}), http.StatusUnprocessableEntity, engine.CodeInvalidMove},
		{"unknown player", base + "/actions", action("9", engine.KindResearch, nil), http.StatusNotFound, engine.CodePlayerNotFound},
		{"unknown seller", base + "/actions", action("0", engine.KindPurchase, map[string]string{"target_id": "ghost", "product_id": "x"}), http.StatusNotFound, engine.CodeTargetNotFound},
		{"wrong seat ends turn", base + "/end-turn", map[string]string{"actor_id": "1"}, http.StatusConflict, engine.CodeNotYourTurn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := call(t, http.MethodPost, tt.url, tt.body)
			wantStatus(t, resp, body, tt.status)
			wantErrorCode(t, body, tt.code)
		})
	}

	resp, body := call(t, http.MethodPost, base+"/actions", nil)
	wantStatus(t, resp, body, http.StatusBadRequest)

	resp, body = call(t, http.MethodPost, ts.URL+"/api/v1/matches", map[string]int{"num_players": 5})
	wantStatus(t, resp, body, http.StatusBadRequest)
}

func TestOrderResponsesIgnoreTurnOrder(t *testing.T) {
	g := engine.NewGameState("m")
	g.Phase = engine.PhaseAction
	g.Seats = []string{"0", "1"}
	g.Players["0"] = &engine.Player{ID: "0"}
	g.Players["1"] = &engine.Player{ID: "1"}

	if err := checkTurn(g, engine.ActionRequest{ActorID: "1", Type: engine.KindRespondToOrder}); err != nil {
		t.Fatalf("order response out of turn: %v", err)
	}
	err := checkTurn(g, engine.ActionRequest{ActorID: "1", Type: engine.KindResearch})
	if engine.CodeOf(err) != engine.CodeNotYourTurn {
		t.Fatalf("got %v, want NOT_YOUR_TURN", err)
	}
	if err := checkTurn(g, engine.ActionRequest{ActorID: "0", Type: engine.KindResearch}); err != nil {
		t.Fatalf("current seat rejected: %v", err)
	}
}

func TestAdvanceRequiresAdmin(t *testing.T) {
	noKey := testConfig()
	noKey.AdminKey = ""
	_, open := newTestServer(t, noKey, nil)
	g := createMatch(t, open, 1)
	resp, body := call(t, http.MethodPost, open.URL+"/api/v1/matches/"+g.ID+"/advance", nil, "Authorization", "Bearer secret")
	wantStatus(t, resp, body, http.StatusForbidden)

	_, ts := newTestServer(t, testConfig(), nil)
	g = createMatch(t, ts, 1)
	url := ts.URL + "/api/v1/matches/" + g.ID + "/advance"

	resp, body = call(t, http.MethodPost, url, nil, "Authorization", "Bearer wrong")
	wantStatus(t, resp, body, http.StatusUnauthorized)

	resp, body = call(t, http.MethodPost, url, nil, "Authorization", "Bearer secret")
	wantStatus(t, resp, body, http.StatusOK)
	if rr := decode[roundResponse](t, body); rr.State.Round != 2 {
		t.Fatalf("got round %d, want 2", rr.State.Round)
	}
}

func TestRateLimitOnPosts(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.01
	cfg.RateBurst = 2
	_, ts := newTestServer(t, cfg, nil)

	createMatch(t, ts, 1)
	createMatch(t, ts, 1)
	resp, body := call(t, http.MethodPost, ts.URL+"/api/v1/matches", map[string]int{"num_players": 1})
	wantStatus(t, resp, body, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	resp, body = call(t, http.MethodGet, ts.URL+"/api/v1/matches", nil)
	wantStatus(t, resp, body, http.StatusOK)
	if got := len(decode[[]persistence.MatchSummary](t, body)); got != 2 {
		t.Fatalf("got %d matches, want 2", got)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(r); got != "10.0.0.1" {
		t.Fatalf("got %q, want 10.0.0.1", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Fatalf("got %q, want 203.0.113.9", got)
	}
}

func TestPersistsAndServesStoredMatches(t *testing.T) {
	db, err := persistence.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, ts := newTestServer(t, testConfig(), db)
	g := createMatch(t, ts, 1)
	base := ts.URL + "/api/v1/matches/" + g.ID
	resp, body := call(t, http.MethodPost, base+"/actions", action("0", engine.KindPartTimeWork, nil))
	wantStatus(t, resp, body, http.StatusOK)

	stored, err := db.LoadMatch(g.ID)
	if err != nil {
		t.Fatalf("LoadMatch: %v", err)
	}
	if stored.Player("0").Money != engine.StartingMoney+5 {
		t.Fatalf("got stored money %d", stored.Player("0").Money)
	}
	if err := db.VerifyChain(g.ID); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}

	// A fresh server has nothing registered and reads through to the store.
	_, fresh := newTestServer(t, testConfig(), db)
	url := fresh.URL + "/api/v1/matches/" + g.ID
	resp, body = call(t, http.MethodGet, url, nil)
	wantStatus(t, resp, body, http.StatusOK)
	if got := decode[*engine.GameState](t, body); got.Player("0").Money != engine.StartingMoney+5 {
		t.Fatalf("got money %d from store", got.Player("0").Money)
	}
	resp, body = call(t, http.MethodGet, url+"/log?limit=1", nil)
	wantStatus(t, resp, body, http.StatusOK)
	entries := decode[[]engine.PlayLogEntry](t, body)
	if len(entries) != 1 || entries[0].Action != string(engine.KindPartTimeWork) {
		t.Fatalf("got log %+v", entries)
	}
}

func TestLogLimit(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), nil)
	g := createMatch(t, ts, 1)
	base := ts.URL + "/api/v1/matches/" + g.ID

	resp, body := call(t, http.MethodGet, base+"/log?limit=zero", nil)
	wantStatus(t, resp, body, http.StatusBadRequest)

	resp, body = call(t, http.MethodPost, base+"/actions", action("0", engine.KindResearch, nil))
	wantStatus(t, resp, body, http.StatusOK)
	resp, body = call(t, http.MethodGet, base+"/log?limit=1", nil)
	wantStatus(t, resp, body, http.StatusOK)
	if entries := decode[[]engine.PlayLogEntry](t, body); len(entries) != 1 || entries[0].Action != string(engine.KindResearch) {
		t.Fatalf("got %+v, want the research entry", entries)
	}
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.Origins = []string{"https://play.example"}
	_, ts := newTestServer(t, cfg, nil)

	resp, body := call(t, http.MethodOptions, ts.URL+"/api/v1/matches", nil, "Origin", "https://play.example")
	wantStatus(t, resp, body, http.StatusNoContent)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://play.example" {
		t.Fatalf("got allow-origin %q", got)
	}

	resp, _ = call(t, http.MethodGet, ts.URL+"/api/v1/status", nil, "Origin", "https://evil.example")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("got allow-origin %q for unlisted origin", got)
	}
}

func TestStreamPushesState(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), nil)
	g := createMatch(t, ts, 1)
	base := ts.URL + "/api/v1/matches/" + g.ID

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first engine.GameState
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.ID != g.ID {
		t.Fatalf("got match %q, want %q", first.ID, g.ID)
	}

	resp, body := call(t, http.MethodPost, base+"/actions", action("0", engine.KindPartTimeWork, nil))
	wantStatus(t, resp, body, http.StatusOK)

	var next engine.GameState
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Player("0").Money != engine.StartingMoney+5 {
		t.Fatalf("got money %d after update", next.Player("0").Money)
	}
}
