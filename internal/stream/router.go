package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/polysignal/polymarket-data/internal/model"
	"github.com/polysignal/polymarket-data/internal/store"
)

// routeTTL is how long a condition_id -> market routing entry stays cached.
const routeTTL = 30 * time.Second

// MarketStore is the subset of the store the router needs.
type MarketStore interface {
	MarketByConditionID(ctx context.Context, conditionID string) (*model.Market, error)
	UpsertMarketWS(ctx context.Context, marketID string, fields store.WSFields) error
}

// Router translates inbound frames into markets_ws writes.
type Router struct {
	store  MarketStore
	logger *slog.Logger

	mu     sync.Mutex
	routes map[string]routeEntry
}

type routeEntry struct {
	market  *model.Market
	expires time.Time
}

// NewRouter creates a Router.
func NewRouter(st MarketStore, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:  st,
		logger: logger.With("component", "router"),
		routes: make(map[string]routeEntry),
	}
}

// Dispatch handles one raw WebSocket message, which may be a single frame
// or an array of frames. Unparseable input is logged and dropped; a bad
// frame never stops the stream.
func (r *Router) Dispatch(ctx context.Context, data []byte) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return
	}

	if data[0] == '[' {
		var frames []json.RawMessage
		if err := json.Unmarshal(data, &frames); err != nil {
			r.logger.Debug("unparseable frame array", "error", err)
			return
		}
		for _, raw := range frames {
			r.dispatchOne(ctx, raw)
		}
		return
	}

	r.dispatchOne(ctx, data)
}

func (r *Router) dispatchOne(ctx context.Context, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		r.logger.Debug("unparseable frame", "error", err)
		return
	}

	switch {
	case f.EventType == "price_change" || len(f.PriceChanges) > 0:
		r.handlePriceChange(ctx, f)
	case f.Type == "trade":
		r.handleTrade(ctx, f)
	case f.Type == "book" || f.Type == "orderbook" || f.Type == "snapshot" || f.Type == "delta":
		r.handleBook(ctx, f)
	default:
		r.logger.Debug("unknown frame", "event_type", f.EventType, "type", f.Type)
	}
}

// handlePriceChange applies per-asset price updates to the market routed by
// condition_id.
func (r *Router) handlePriceChange(ctx context.Context, f Frame) {
	market := r.route(ctx, f.Market)
	if market == nil || market.Status != model.StatusActive {
		return
	}

	prices := make(map[string]float64, len(f.PriceChanges))
	for _, change := range f.PriceChanges {
		price, ok := assetPrice(change)
		if !ok {
			continue
		}

		i := market.TokenIndex(change.AssetID)
		if i < 0 || i >= len(market.Outcomes) {
			r.logger.Debug("unknown asset in price_change",
				"market_id", market.MarketID, "asset_id", change.AssetID)
			continue
		}

		prices[market.Outcomes[i]] = price
	}
	if len(prices) == 0 {
		return
	}

	fields := store.WSFields{OutcomePrices: prices}
	setBinaryConvenience(&fields, prices)

	if err := r.store.UpsertMarketWS(ctx, market.MarketID, fields); err != nil {
		r.logger.Error("ws price write failed", "market_id", market.MarketID, "error", err)
	}
}

func (r *Router) handleTrade(ctx context.Context, f Frame) {
	market := r.route(ctx, f.Market)
	if market == nil {
		return
	}

	price, ok := numValue(f.Price)
	if !ok {
		return
	}

	fields := store.WSFields{LastTradePrice: &price}
	if err := r.store.UpsertMarketWS(ctx, market.MarketID, fields); err != nil {
		r.logger.Error("ws trade write failed", "market_id", market.MarketID, "error", err)
	}
}

// handleBook writes the top of book. The midpoint is sourced only from
// orderbook bid/ask; it is never derived from outcome prices.
func (r *Router) handleBook(ctx context.Context, f Frame) {
	market := r.route(ctx, f.Market)
	if market == nil {
		return
	}

	bid, hasBid := numValue(f.BestBid)
	ask, hasAsk := numValue(f.BestAsk)

	// Snapshot frames carry levels instead of explicit best bid/ask.
	if !hasBid && len(f.Bids) > 0 {
		bid, hasBid = numValue(f.Bids[0].Price)
	}
	if !hasAsk && len(f.Asks) > 0 {
		ask, hasAsk = numValue(f.Asks[0].Price)
	}

	var fields store.WSFields
	if hasBid {
		fields.LastBB = &bid
	}
	if hasAsk {
		fields.LastBA = &ask
	}
	if hasBid && hasAsk {
		mid := (bid + ask) / 2
		fields.LastMid = &mid
	}
	if fields.LastBB == nil && fields.LastBA == nil {
		return
	}

	if err := r.store.UpsertMarketWS(ctx, market.MarketID, fields); err != nil {
		r.logger.Error("ws book write failed", "market_id", market.MarketID, "error", err)
	}
}

// route resolves condition_id to a market through a short-lived cache.
func (r *Router) route(ctx context.Context, conditionID string) *model.Market {
	if conditionID == "" {
		return nil
	}

	r.mu.Lock()
	entry, hit := r.routes[conditionID]
	r.mu.Unlock()
	if hit && time.Now().Before(entry.expires) {
		return entry.market
	}

	market, err := r.store.MarketByConditionID(ctx, conditionID)
	if err != nil {
		r.logger.Error("condition id lookup failed", "condition_id", conditionID, "error", err)
		return nil
	}

	r.mu.Lock()
	r.routes[conditionID] = routeEntry{market: market, expires: time.Now().Add(routeTTL)}
	r.mu.Unlock()

	return market
}

// assetPrice prefers the bid/ask midpoint, falling back to the last price.
func assetPrice(change PriceChange) (float64, bool) {
	bid, hasBid := numValue(change.BestBid)
	ask, hasAsk := numValue(change.BestAsk)
	if hasBid && hasAsk {
		return (bid + ask) / 2, true
	}
	return numValue(change.Price)
}

// setBinaryConvenience fills the last_yes_price / last_no_price columns for
// binary Yes/No and Up/Down markets.
func setBinaryConvenience(fields *store.WSFields, prices map[string]float64) {
	for name, price := range prices {
		p := price
		switch strings.ToLower(name) {
		case "yes", "up":
			fields.LastYesPrice = &p
		case "no", "down":
			fields.LastNoPrice = &p
		}
	}
}

func numValue(n json.Number) (float64, bool) {
	if n == "" {
		return 0, false
	}
	v, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return v, true
}
