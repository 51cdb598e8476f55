package entropy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNilClientFallsBack(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Fatalf("nil client reports enabled")
	}
	if NewClient("") != nil {
		t.Fatalf("empty key built a client")
	}
	// Two crypto seeds colliding would mean the fallback is broken.
	if c.Seed() == c.Seed() {
		t.Fatalf("fallback seeds repeat")
	}
}

func TestSeedFromRandomOrg(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Method != "generateIntegers" || req.Params["apiKey"] != "k" {
			t.Errorf("got method %q params %v", req.Method, req.Params)
		}
		w.Write([]byte(`{"jsonrpc":"2.0","result":{"random":{"data":[3,5]}},"id":1}`))
	}))
	defer ts.Close()

	c := NewClient("k")
	c.Endpoint = ts.URL
	if got, want := c.Seed(), int64(3<<30|5); got != want {
		t.Fatalf("got seed %d, want %d", got, want)
	}
}

func TestSeedFallsBackOnAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"message":"quota exceeded"},"id":1}`))
	}))
	defer ts.Close()

	c := NewClient("k")
	c.Endpoint = ts.URL
	if _, err := c.fetch(); err == nil {
		t.Fatalf("fetch accepted an API error")
	}
	// Still yields a seed.
	c.Seed()
}
