// Package playtest drives matches through the HTTP API with simple bots.
// It observes match state, picks a legal-looking move for the seat whose
// turn it is, and acts through the public game endpoints.
package playtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/market-disruption/internal/engine"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Name        string `json:"name"`
	Uptime      string `json:"uptime"`
	Matches     int    `json:"matches"`
	Live        int    `json:"live"`
	Persistence bool   `json:"persistence"`
}

// Observer fetches match state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status fetches the server status.
func (o *Observer) Status() (*Status, error) {
	var st Status
	if err := o.fetchJSON("/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Match fetches the full state of one match.
func (o *Observer) Match(id string) (*engine.GameState, error) {
	var g engine.GameState
	if err := o.fetchJSON("/api/v1/matches/"+id, &g); err != nil {
		return nil, fmt.Errorf("fetch match: %w", err)
	}
	return &g, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
