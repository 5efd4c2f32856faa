package gamma

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.URL,
		WithRetries(1, time.Millisecond),
		WithDelays(0, 0, 0),
	)
}

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://gamma.example.com", "https://clob.example.com")

		if c.gammaURL != "https://gamma.example.com" {
			t.Errorf("gammaURL = %q, want %q", c.gammaURL, "https://gamma.example.com")
		}
		if c.clobURL != "https://clob.example.com" {
			t.Errorf("clobURL = %q, want %q", c.clobURL, "https://clob.example.com")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
	})

	t.Run("with options", func(t *testing.T) {
		c := NewClient("", "", WithTimeout(5*time.Second), WithRetries(5, 2*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
		if c.maxRetries != 5 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 5)
		}
	})
}

func TestEvents(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("path = %q, want /events", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("closed") != "false" {
			t.Errorf("closed = %q, want false", q.Get("closed"))
		}
		if q.Get("order") != "volume" {
			t.Errorf("order = %q, want volume", q.Get("order"))
		}
		json.NewEncoder(w).Encode([]Event{
			{ID: "e1", Slug: "election", Volume: 1500},
		})
	}))

	events, err := c.Events(context.Background(), 0, 200)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Errorf("events = %+v, want one event e1", events)
	}
}

func TestAllEvents_Paginates(t *testing.T) {
	var pages atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pages.Add(1)
		if page == 1 {
			// Full page: keep paginating.
			full := make([]Event, 2)
			json.NewEncoder(w).Encode(full)
			return
		}
		json.NewEncoder(w).Encode([]Event{{ID: "last"}})
	}))

	events, err := c.AllEvents(context.Background(), 10, 2)
	if err != nil {
		t.Fatalf("AllEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Errorf("len(events) = %d, want 3", len(events))
	}
	if pages.Load() != 2 {
		t.Errorf("pages fetched = %d, want 2", pages.Load())
	}
}

func TestMarketsByIDs_Chunks(t *testing.T) {
	var requests atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		json.NewEncoder(w).Encode([]Market{{ID: "m"}})
	}))

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = "id"
	}

	markets, err := c.MarketsByIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("MarketsByIDs() error = %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2 (chunks of 100)", requests.Load())
	}
	if len(markets) != 2 {
		t.Errorf("len(markets) = %d, want 2", len(markets))
	}
}

func TestMarketsByIDs_RateLimitSkipsChunk(t *testing.T) {
	var requests atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([]Market{{ID: "ok"}})
	}))
	c.rateLimitPause = 0

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = "id"
	}

	markets, err := c.MarketsByIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("MarketsByIDs() error = %v", err)
	}
	// First chunk dropped, second chunk succeeded.
	if len(markets) != 1 {
		t.Errorf("len(markets) = %d, want 1", len(markets))
	}
}

func TestPrices(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prices" {
			t.Errorf("path = %q, want /prices", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]map[string]string{
			"tok1": {"BUY": "0.42", "SELL": "0.44"},
			"tok2": {"BUY": "0.58", "SELL": "0.60"},
		})
	}))

	prices, err := c.Prices(context.Background(), []string{"tok1", "tok2"})
	if err != nil {
		t.Fatalf("Prices() error = %v", err)
	}
	if got := prices["tok1"]; got.Buy != 0.42 || got.Sell != 0.44 {
		t.Errorf("tok1 = %+v, want {0.42 0.44}", got)
	}
	if got := prices["tok2"]; got.Buy != 0.58 {
		t.Errorf("tok2.Buy = %v, want 0.58", got.Buy)
	}
}

func TestErrorBudget(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ctx := context.Background()
	var lastErr error
	for i := 0; i < errorBudget; i++ {
		_, lastErr = c.Events(ctx, 0, 10)
		if lastErr == nil {
			t.Fatal("expected error from failing server")
		}
	}

	if !errors.Is(lastErr, ErrBudgetExhausted) {
		t.Errorf("after %d failures, error = %v, want ErrBudgetExhausted", errorBudget, lastErr)
	}

	c.ResetBudget()
	if c.ConsecutiveErrors() != 0 {
		t.Errorf("ConsecutiveErrors after reset = %d, want 0", c.ConsecutiveErrors())
	}
}

func TestBudgetResetOnSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode([]Event{})
	}))

	ctx := context.Background()
	c.Events(ctx, 0, 10)
	if c.ConsecutiveErrors() == 0 {
		t.Fatal("expected consecutive errors after failure")
	}

	fail.Store(false)
	if _, err := c.Events(ctx, 0, 10); err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if c.ConsecutiveErrors() != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0 after success", c.ConsecutiveErrors())
	}
}
