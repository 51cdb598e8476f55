package playtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/market-disruption/internal/engine"
)

// APIError is a non-2xx answer from a game endpoint.
type APIError struct {
	Status  int
	Code    engine.Code
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Rejected reports whether the server refused the move itself, as opposed to
// failing to process it.
func (e *APIError) Rejected() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}

// ActionOutcome is the response from POST .../actions.
type ActionOutcome struct {
	Result engine.Result     `json:"result"`
	State  *engine.GameState `json:"state"`
}

// TurnOutcome is the response from POST .../end-turn.
type TurnOutcome struct {
	Report *engine.RoundReport `json:"round_report,omitempty"`
	State  *engine.GameState   `json:"state"`
}

// Actor plays moves through the game API.
type Actor struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL.
func NewActor(baseURL string) *Actor {
	return &Actor{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateMatch starts a new match with the given number of seats.
func (a *Actor) CreateMatch(players int) (*engine.GameState, error) {
	var g engine.GameState
	if err := a.post("/api/v1/matches", map[string]int{"num_players": players}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Act sends one action for a match.
func (a *Actor) Act(matchID string, req engine.ActionRequest) (*ActionOutcome, error) {
	var out ActionOutcome
	if err := a.post("/api/v1/matches/"+matchID+"/actions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EndTurn passes play to the next seat.
func (a *Actor) EndTurn(matchID, actorID string) (*TurnOutcome, error) {
	var out TurnOutcome
	if err := a.post("/api/v1/matches/"+matchID+"/end-turn", map[string]string{"actor_id": actorID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Actor) post(path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
		var eb struct {
			Code    engine.Code `json:"code"`
			Message string      `json:"message"`
		}
		if json.Unmarshal(respBody, &eb) == nil && eb.Code != "" {
			apiErr.Code, apiErr.Message = eb.Code, eb.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
