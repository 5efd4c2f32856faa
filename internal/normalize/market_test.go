package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/polysignal/polymarket-data/internal/gamma"
	"github.com/polysignal/polymarket-data/internal/model"
)

func TestFromGamma(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	src := gamma.Market{
		ID:              "515123",
		ConditionID:     "0xabc123",
		Slug:            "will-it-rain-tomorrow",
		Question:        "Will it rain tomorrow?",
		Category:        "Weather",
		Active:          true,
		AcceptingOrders: true,
		EnableOrderBook: true,
		Outcomes:        json.RawMessage(`"[\"Yes\", \"No\"]"`),
		OutcomePrices:   json.RawMessage(`"[\"0.62\", \"0.38\"]"`),
		ClobTokenIDs:    json.RawMessage(`["tok-yes","tok-no"]`),
		Events: []gamma.Event{
			{ID: "9001", Slug: "weather-week", Title: "Weather Week"},
		},
		Volume:     gamma.FlexFloat(152340.5),
		Volume24hr: gamma.FlexFloat(8100.25),
		BestBid:    gamma.FlexFloat(0.61),
		BestAsk:    gamma.FlexFloat(0.63),
		EndDate:    "2025-06-16T12:00:00Z",
		CreatedAt:  "2025-06-01T00:00:00Z",
		UpdatedAt:  "2025-06-15T11:59:00Z",
	}

	m := FromGamma(src, now)

	if m.MarketID != "515123" || m.ConditionID != "0xabc123" {
		t.Errorf("identity = (%s, %s)", m.MarketID, m.ConditionID)
	}
	if m.Status != model.StatusActive || m.ResolutionStatus != model.ResolutionPending {
		t.Errorf("lifecycle = (%s, %s), want (ACTIVE, PENDING)", m.Status, m.ResolutionStatus)
	}
	if len(m.Outcomes) != 2 || m.Outcomes[0] != "Yes" {
		t.Errorf("Outcomes = %v", m.Outcomes)
	}
	if len(m.OutcomePrices) != 2 || m.OutcomePrices[0] != 0.62 {
		t.Errorf("OutcomePrices = %v", m.OutcomePrices)
	}
	if len(m.Tokens) != 2 || m.Tokens[0].TokenID != "tok-yes" || m.Tokens[0].Outcome != "Yes" {
		t.Errorf("Tokens = %+v", m.Tokens)
	}
	if m.LastMid != 0.62 {
		t.Errorf("LastMid = %v, want 0.62", m.LastMid)
	}
	if !m.Tradeable || !m.AcceptingOrders {
		t.Error("expected tradeable, accepting orders")
	}
	if m.PolymarketURL != "https://polymarket.com/event/weather-week" {
		t.Errorf("PolymarketURL = %q", m.PolymarketURL)
	}
	if m.EndDate == nil || !m.EndDate.Equal(time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("EndDate = %v", m.EndDate)
	}
	if !m.ArraysConsistent() {
		t.Error("expected consistent parallel arrays")
	}
}

func TestFromGammaResolved(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	src := gamma.Market{
		ID:            "616",
		Slug:          "resolved-market",
		Closed:        true,
		Outcomes:      json.RawMessage(`["Yes","No"]`),
		OutcomePrices: json.RawMessage(`["0.995","0.005"]`),
		ClobTokenIDs:  json.RawMessage(`["t0","t1"]`),
		EndDate:       "2025-06-10T00:00:00Z",
	}

	m := FromGamma(src, now)

	if m.Status != model.StatusClosed || m.ResolutionStatus != model.ResolutionResolved {
		t.Fatalf("lifecycle = (%s, %s), want (CLOSED, RESOLVED)", m.Status, m.ResolutionStatus)
	}
	if m.WinningOutcome == nil || *m.WinningOutcome != 0 {
		t.Errorf("WinningOutcome = %v, want 0", m.WinningOutcome)
	}
	if m.ResolutionDate == nil || !m.ResolutionDate.Equal(now) {
		t.Errorf("ResolutionDate = %v, want %v", m.ResolutionDate, now)
	}
	if !m.Tokens[0].Winner || m.Tokens[1].Winner {
		t.Errorf("token winners = %v/%v, want true/false", m.Tokens[0].Winner, m.Tokens[1].Winner)
	}
	if m.Tradeable || m.AcceptingOrders {
		t.Error("resolved market must not be tradeable")
	}
	if m.PolymarketURL != "https://polymarket.com/market/resolved-market" {
		t.Errorf("PolymarketURL = %q", m.PolymarketURL)
	}
}

func TestFromGammaLiveFavorite(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// A heavy favorite trading at extremes days before settlement must stay
	// live; RESOLVED would be terminal in the store.
	src := gamma.Market{
		ID:              "717",
		Slug:            "heavy-favorite",
		Active:          true,
		AcceptingOrders: true,
		EnableOrderBook: true,
		Outcomes:        json.RawMessage(`["Yes","No"]`),
		OutcomePrices:   json.RawMessage(`["0.995","0.005"]`),
		EndDate:         now.Add(72 * time.Hour).Format(time.RFC3339),
	}

	m := FromGamma(src, now)

	if m.Status != model.StatusActive || m.ResolutionStatus != model.ResolutionPending {
		t.Fatalf("lifecycle = (%s, %s), want (ACTIVE, PENDING)", m.Status, m.ResolutionStatus)
	}
	if m.WinningOutcome != nil {
		t.Errorf("WinningOutcome = %d, want nil", *m.WinningOutcome)
	}
	if !m.Tradeable || !m.AcceptingOrders {
		t.Error("live favorite must remain tradeable")
	}
}

func TestFromGammaStatCaps(t *testing.T) {
	src := gamma.Market{
		ID:                 "1",
		Volume:             gamma.FlexFloat(250000000),
		Spread:             gamma.FlexFloat(-0.5),
		OneHourPriceChange: gamma.FlexFloat(-0.5),
		OneDayPriceChange:  gamma.FlexFloat(250000000),
	}

	m := FromGamma(src, time.Now())

	if m.Volume != 99999999.9999 {
		t.Errorf("Volume = %v, want cap", m.Volume)
	}
	if m.Spread != 0 {
		t.Errorf("Spread = %v, want 0", m.Spread)
	}
	if m.PriceChange1h != 0 {
		t.Errorf("PriceChange1h = %v, want 0", m.PriceChange1h)
	}
	if m.PriceChange1d != 99999999.9999 {
		t.Errorf("PriceChange1d = %v, want cap", m.PriceChange1d)
	}
}

func TestBookMid(t *testing.T) {
	if got := bookMid(0.61, 0.63); got != 0.62 {
		t.Errorf("bookMid = %v, want 0.62", got)
	}
	// One-sided book yields no mid.
	if got := bookMid(0, 0.63); got != 0 {
		t.Errorf("bookMid one-sided = %v, want 0", got)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-06-16T12:00:00Z", "2025-06-16T12:00:00Z"},
		{"2025-06-16T12:00:00.123456Z", "2025-06-16T12:00:00Z"},
		{"2025-06-16", "2025-06-16T00:00:00Z"},
		{"", ""},
		{"not a time", ""},
	}

	for _, tt := range tests {
		got := parseTime(tt.in)
		if tt.want == "" {
			if got != nil {
				t.Errorf("parseTime(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		want, _ := time.Parse(time.RFC3339, tt.want)
		if got == nil || !got.Truncate(time.Second).Equal(want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, want)
		}
	}
}
