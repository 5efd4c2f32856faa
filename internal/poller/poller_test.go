package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/polysignal/polymarket-data/internal/gamma"
	"github.com/polysignal/polymarket-data/internal/model"
	"github.com/polysignal/polymarket-data/internal/signals"
	"github.com/polysignal/polymarket-data/internal/store"
)

type fakeFetcher struct {
	events      []gamma.Event
	eventsErr   error
	closed      []gamma.Market
	byID        map[string]gamma.Market
	byIDCalls   [][]string
	budgetReset int
}

func (f *fakeFetcher) AllEvents(context.Context, int, int) ([]gamma.Event, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeFetcher) Markets(_ context.Context, opts gamma.MarketsOptions) ([]gamma.Market, error) {
	if opts.Offset > 0 {
		return nil, nil
	}
	return f.closed, nil
}

func (f *fakeFetcher) MarketsByIDs(_ context.Context, ids []string) ([]gamma.Market, error) {
	f.byIDCalls = append(f.byIDCalls, ids)
	var out []gamma.Market
	for _, id := range ids {
		if m, ok := f.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeFetcher) ResetBudget() { f.budgetReset++ }

type fakeStore struct {
	upserts     [][]model.Market
	skipFlags   []bool
	positionIDs []string
	existingIDs []string
	urgentIDs   []string
	highIDs     []string
	mediumIDs   []string
	smallIDs    []string
	proposed    []string
	resolved    map[string]int
	lastSync    *time.Time
	webhooks    []string
	sweeps      int
	promotions  int
}

func (s *fakeStore) UpsertMarkets(_ context.Context, rows []model.Market, skip bool) (int, error) {
	s.upserts = append(s.upserts, rows)
	s.skipFlags = append(s.skipFlags, skip)
	return len(rows), nil
}

func (s *fakeStore) MarketIDsByVolumeTier(_ context.Context, minVol, _ float64, _ int) ([]string, error) {
	switch {
	case minVol >= highVolumeFloor:
		return s.highIDs, nil
	case minVol >= mediumVolumeFloor:
		return s.mediumIDs, nil
	default:
		return s.smallIDs, nil
	}
}

func (s *fakeStore) MarketIDsByExpiry(context.Context, time.Duration, int) ([]string, error) {
	return s.urgentIDs, nil
}

func (s *fakeStore) UserPositionMarketIDs(context.Context) ([]string, error) {
	return s.positionIDs, nil
}

func (s *fakeStore) ExistingMarketIDs(context.Context, bool) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	for _, id := range s.existingIDs {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *fakeStore) MarkExpiredClosed(context.Context) (int64, error) {
	s.sweeps++
	return 0, nil
}

func (s *fakeStore) PromotePendingToProposed(context.Context) (int64, error) {
	s.promotions++
	return 0, nil
}

func (s *fakeStore) ProposedCandidates(context.Context, int) ([]string, error) {
	return s.proposed, nil
}

func (s *fakeStore) ResolveMarket(_ context.Context, id string, winner int, _ []float64, _ float64) (bool, error) {
	if s.resolved == nil {
		s.resolved = make(map[string]int)
	}
	s.resolved[id] = winner
	return true, nil
}

func (s *fakeStore) SetLastSync(_ context.Context, ts time.Time) error {
	s.lastSync = &ts
	return nil
}

func (s *fakeStore) FreshnessHistogram(context.Context) (store.Freshness, error) {
	return store.Freshness{}, nil
}

func (s *fakeStore) AppendWebhookEvent(_ context.Context, marketID, event string, _ any) error {
	s.webhooks = append(s.webhooks, marketID+":"+event)
	return nil
}

func testPoller(rest Fetcher, st Store) (*Poller, *signals.Bus) {
	cfg := DefaultConfig()
	cfg.HealthEvery = 0
	bus := signals.NewBus(16, nil)
	return New(cfg, rest, st, bus, nil), bus
}

func rawMarket(id string, volume float64, prices string) gamma.Market {
	return gamma.Market{
		ID:            id,
		Slug:          "slug-" + id,
		Active:        true,
		OutcomePrices: json.RawMessage(prices),
		Outcomes:      json.RawMessage(`["Yes","No"]`),
		ClobTokenIDs:  json.RawMessage(`["t-` + id + `-0","t-` + id + `-1"]`),
		Volume:        gamma.FlexFloat(volume),
		EndDate:       time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	}
}

func TestCycleEventsSweep(t *testing.T) {
	rest := &fakeFetcher{
		events: []gamma.Event{{
			ID:   "e1",
			Slug: "big-event",
			Markets: []gamma.Market{
				rawMarket("m-low", 100, `["0.5","0.5"]`),
				rawMarket("m-high", 9000, `["0.7","0.3"]`),
				rawMarket("m-invalid", 500, `[]`),
			},
		}},
		byID: map[string]gamma.Market{},
	}
	st := &fakeStore{}
	p, _ := testPoller(rest, st)

	p.runCycle(context.Background())

	if len(st.upserts) == 0 {
		t.Fatal("no upserts recorded")
	}
	rows := st.upserts[0]
	if len(rows) != 2 {
		t.Fatalf("pass 1 rows = %d, want 2 (invalid filtered)", len(rows))
	}
	// Sorted by volume descending.
	if rows[0].MarketID != "m-high" || rows[1].MarketID != "m-low" {
		t.Errorf("sort order = %s, %s", rows[0].MarketID, rows[1].MarketID)
	}
	// The enclosing event is attached to the nested market.
	if len(rows[0].Events) != 1 || rows[0].Events[0].EventID != "e1" {
		t.Errorf("events = %+v", rows[0].Events)
	}
	if rows[0].PolymarketURL != "https://polymarket.com/event/big-event" {
		t.Errorf("url = %q", rows[0].PolymarketURL)
	}
	if st.lastSync == nil {
		t.Error("last sync not written")
	}
	if st.sweeps != 1 || st.promotions != 1 {
		t.Errorf("sweeps = %d, promotions = %d, want 1 each", st.sweeps, st.promotions)
	}
}

func TestCycleTierCandidates(t *testing.T) {
	rest := &fakeFetcher{byID: map[string]gamma.Market{
		"pos-1":  rawMarket("pos-1", 50, `["0.5","0.5"]`),
		"urg-1":  rawMarket("urg-1", 60, `["0.5","0.5"]`),
		"high-1": rawMarket("high-1", 200000, `["0.5","0.5"]`),
	}}
	st := &fakeStore{
		positionIDs: []string{"pos-1"},
		urgentIDs:   []string{"urg-1", "pos-1"}, // overlap with tier 0
		highIDs:     []string{"high-1"},
	}
	p, _ := testPoller(rest, st)

	p.runCycle(context.Background())

	if len(rest.byIDCalls) == 0 {
		t.Fatal("no bulk fetch issued")
	}
	ids := rest.byIDCalls[0]
	want := map[string]bool{"pos-1": true, "urg-1": true, "high-1": true}
	if len(ids) != len(want) {
		t.Fatalf("bulk ids = %v, want deduped set of 3", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected id %q", id)
		}
	}
}

func TestCycleProposedResolution(t *testing.T) {
	rest := &fakeFetcher{byID: map[string]gamma.Market{
		"prop-1": {
			ID:            "prop-1",
			Closed:        true,
			OutcomePrices: json.RawMessage(`["0.995","0.005"]`),
			Outcomes:      json.RawMessage(`["Yes","No"]`),
			Volume:        gamma.FlexFloat(4000),
		},
		"prop-2": {
			ID:            "prop-2",
			Closed:        true,
			OutcomePrices: json.RawMessage(`["0.6","0.4"]`),
			Outcomes:      json.RawMessage(`["Yes","No"]`),
		},
	}}
	st := &fakeStore{proposed: []string{"prop-1", "prop-2"}}
	p, bus := testPoller(rest, st)

	p.runCycle(context.Background())

	if winner, ok := st.resolved["prop-1"]; !ok || winner != 0 {
		t.Errorf("prop-1 resolution = (%d, %v), want (0, true)", winner, ok)
	}
	if _, ok := st.resolved["prop-2"]; ok {
		t.Error("prop-2 resolved despite non-extreme prices")
	}

	select {
	case ev := <-bus.Events():
		if ev.Kind != signals.KindMarketResolved || ev.MarketID != "prop-1" || ev.WinningOutcome != 0 {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no MARKET_RESOLVED signal emitted")
	}

	if len(st.webhooks) != 1 || st.webhooks[0] != "prop-1:market_resolved" {
		t.Errorf("webhooks = %v", st.webhooks)
	}
}

func TestCycleBudgetAbort(t *testing.T) {
	rest := &fakeFetcher{
		eventsErr: fmt.Errorf("events page 3: %w", gamma.ErrBudgetExhausted),
	}
	st := &fakeStore{highIDs: []string{"high-1"}}
	p, _ := testPoller(rest, st)

	p.runCycle(context.Background())

	if rest.budgetReset != 1 {
		t.Errorf("budget resets = %d, want 1", rest.budgetReset)
	}
	if p.BudgetAborts() != 1 {
		t.Errorf("BudgetAborts() = %d, want 1", p.BudgetAborts())
	}
	if len(rest.byIDCalls) != 0 {
		t.Error("later passes ran after the abort")
	}
	if st.lastSync != nil {
		t.Error("aborted cycle recorded a completed sync")
	}
}

func TestCycleClosedSweepSkipsFilter(t *testing.T) {
	closed := rawMarket("closed-1", 0, `["0.2","0.8"]`)
	closed.Closed = true
	closed.Active = false
	closed.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	rest := &fakeFetcher{closed: []gamma.Market{closed}, byID: map[string]gamma.Market{}}
	st := &fakeStore{}
	p, _ := testPoller(rest, st)

	p.runCycle(context.Background())

	// Find the pass 3 upsert: the one with the skip flag set.
	found := false
	for i, skip := range st.skipFlags {
		if skip {
			found = true
			if len(st.upserts[i]) != 1 || st.upserts[i][0].MarketID != "closed-1" {
				t.Errorf("closed upsert rows = %+v", st.upserts[i])
			}
		}
	}
	if !found {
		t.Error("no skip-filter upsert issued for closed markets")
	}
}
