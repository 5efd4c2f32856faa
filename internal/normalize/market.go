package normalize

import (
	"time"

	"github.com/polysignal/polymarket-data/internal/gamma"
	"github.com/polysignal/polymarket-data/internal/model"
)

// FromGamma builds a canonical Market row from a raw Gamma payload.
// now is the classification reference time; the row's UpdatedAt is set by
// the store on write, not here.
func FromGamma(src gamma.Market, now time.Time) model.Market {
	outcomes := ParseStringList(src.Outcomes)
	prices := ParseFloatList(src.OutcomePrices)
	tokenIDs := ParseStringList(src.ClobTokenIDs)

	winner := ExtractOutcome(src, prices, now)
	status, resolution := Classify(winner != nil, src.Closed, parseTime(src.EndDate), now)

	m := model.Market{
		MarketID:    src.ID,
		ConditionID: src.ConditionID,
		Slug:        src.Slug,
		Title:       src.Question,
		Description: src.Description,
		Category:    src.Category,
		MarketType:  src.MarketType,
		Restricted:  src.Restricted,

		Status:           status,
		ResolutionStatus: resolution,
		WinningOutcome:   winner,

		AcceptingOrders: src.AcceptingOrders && status == model.StatusActive,
		Archived:        src.Archived,
		Tradeable:       src.EnableOrderBook && status == model.StatusActive,

		Outcomes:      outcomes,
		OutcomePrices: capAll(prices),
		ClobTokenIDs:  tokenIDs,
		Tokens:        buildTokens(outcomes, prices, tokenIDs, winner),

		Volume:     Cap(src.Volume.Float64()),
		Volume24hr: Cap(src.Volume24hr.Float64()),
		Volume1wk:  Cap(src.Volume1wk.Float64()),
		Volume1mo:  Cap(src.Volume1mo.Float64()),
		Liquidity:  Cap(src.Liquidity.Float64()),
		Spread:     Cap(src.Spread.Float64()),
		LastMid:    bookMid(src.BestBid.Float64(), src.BestAsk.Float64()),

		PriceChange1h: Cap(src.OneHourPriceChange.Float64()),
		PriceChange1d: Cap(src.OneDayPriceChange.Float64()),
		PriceChange1w: Cap(src.OneWeekPriceChange.Float64()),

		CreatedAt:         parseTime(src.CreatedAt),
		EndDate:           parseTime(src.EndDate),
		UpstreamUpdatedAt: parseTime(src.UpdatedAt),

		Events:        buildEvents(src.Events),
		PolymarketURL: BuildURL(src),
	}

	if resolution == model.ResolutionResolved {
		t := now
		m.ResolutionDate = &t
	}

	return m
}

// BuildURL derives the public page URL: the parent event's page when the
// market belongs to one, the standalone market page otherwise.
func BuildURL(src gamma.Market) string {
	if len(src.Events) > 0 && src.Events[0].Slug != "" {
		return "https://polymarket.com/event/" + src.Events[0].Slug
	}
	return "https://polymarket.com/market/" + src.Slug
}

// bookMid is the midpoint of the top of book. Zero when either side is
// missing; a mid is never synthesized from outcome prices.
func bookMid(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return Cap((bid + ask) / 2)
}

func capAll(vs []float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = Cap(v)
	}
	return out
}

func buildTokens(outcomes []string, prices []float64, tokenIDs []string, winner *int) []model.Token {
	if len(tokenIDs) == 0 {
		return nil
	}
	tokens := make([]model.Token, len(tokenIDs))
	for i, id := range tokenIDs {
		t := model.Token{TokenID: id}
		if i < len(outcomes) {
			t.Outcome = outcomes[i]
		}
		if i < len(prices) {
			t.Price = prices[i]
		}
		if winner != nil && *winner == i {
			t.Winner = true
		}
		tokens[i] = t
	}
	return tokens
}

func buildEvents(events []gamma.Event) []model.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]model.Event, len(events))
	for i, e := range events {
		out[i] = model.Event{
			EventID:  e.ID,
			Slug:     e.Slug,
			Title:    e.Title,
			Category: e.Category,
		}
	}
	return out
}

// parseTime accepts the timestamp shapes the Gamma API emits.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999-07",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}
