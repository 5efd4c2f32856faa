package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polysignal/polymarket-data/internal/model"
	"github.com/polysignal/polymarket-data/internal/signals"
)

// redeemFee is the fee applied to a winning redemption, 1%.
var redeemFee = decimal.RequireFromString("0.01")

// ResolutionStore resolves condition ids for the detector.
type ResolutionStore interface {
	ResolvedMarketByConditionID(ctx context.Context, conditionID string) (*model.Market, error)
}

// Position is one on-chain holding supplied by the external wallet layer.
type Position struct {
	ConditionID string
	Outcome     string
	TokensHeld  float64
	AvgPrice    float64
}

// Winning is a redeemable-winning candidate with its computed value.
type Winning struct {
	ConditionID string
	MarketID    string
	TokensHeld  float64
	NetValue    float64
	PnL         float64
	PnLPct      float64
}

// Classification splits positions into redeemable-winning candidates and
// redeemable-losing condition ids. Unresolved positions appear in neither.
type Classification struct {
	Winning []Winning
	Losing  []string
}

// Detector classifies on-chain positions against resolved markets, with a
// short-lived per-user cache.
type Detector struct {
	store  ResolutionStore
	bus    *signals.Bus
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	result  Classification
	userID  int64
	expires time.Time
}

// NewDetector creates a Detector. bus may be nil when signal emission is
// not wanted.
func NewDetector(st ResolutionStore, bus *signals.Bus, ttl time.Duration, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Detector{
		store:  st,
		bus:    bus,
		ttl:    ttl,
		logger: logger.With("component", "redeem"),
		cache:  make(map[string]cacheEntry),
	}
}

// Classify runs the detection for one user's positions. Results are cached
// per (user, wallet) for the configured TTL.
func (d *Detector) Classify(ctx context.Context, userID int64, wallet string, positions []Position) (Classification, error) {
	key := cacheKey(userID, wallet)

	d.mu.Lock()
	entry, hit := d.cache[key]
	d.mu.Unlock()
	if hit && time.Now().Before(entry.expires) {
		return entry.result, nil
	}

	var result Classification
	for _, pos := range positions {
		market, err := d.store.ResolvedMarketByConditionID(ctx, pos.ConditionID)
		if err != nil {
			return Classification{}, fmt.Errorf("classify %s: %w", pos.ConditionID, err)
		}
		// Unknown to the store, or not yet redeemable.
		if market == nil || !market.IsResolved() || market.WinningOutcome == nil {
			continue
		}

		if market.OutcomeIndex(pos.Outcome) == *market.WinningOutcome {
			result.Winning = append(result.Winning, winningValue(pos, market.MarketID))
		} else {
			result.Losing = append(result.Losing, pos.ConditionID)
		}
	}

	d.mu.Lock()
	d.cache[key] = cacheEntry{result: result, userID: userID, expires: time.Now().Add(d.ttl)}
	d.mu.Unlock()

	if d.bus != nil && len(result.Winning) > 0 {
		conditionIDs := make([]string, len(result.Winning))
		for i, w := range result.Winning {
			conditionIDs[i] = w.ConditionID
		}
		d.bus.RedeemableAvailable(userID, conditionIDs)
	}

	return result, nil
}

// Invalidate drops the cached result for one (user, wallet).
func (d *Detector) Invalidate(userID int64, wallet string) {
	d.mu.Lock()
	delete(d.cache, cacheKey(userID, wallet))
	d.mu.Unlock()
}

// InvalidateUser drops every cached result for a user, across wallets.
// Called on any TP/SL trigger or user trade.
func (d *Detector) InvalidateUser(userID int64) {
	d.mu.Lock()
	for key, entry := range d.cache {
		if entry.userID == userID {
			delete(d.cache, key)
		}
	}
	d.mu.Unlock()
}

// winningValue computes net value and PnL for a winning position. Each
// winning token redeems for 1.0 less the fee.
func winningValue(pos Position, marketID string) Winning {
	tokens := decimal.NewFromFloat(pos.TokensHeld)
	net := tokens.Mul(decimal.NewFromInt(1).Sub(redeemFee))
	cost := tokens.Mul(decimal.NewFromFloat(pos.AvgPrice))
	pnl := net.Sub(cost)

	w := Winning{
		ConditionID: pos.ConditionID,
		MarketID:    marketID,
		TokensHeld:  pos.TokensHeld,
	}
	w.NetValue, _ = net.Round(4).Float64()
	w.PnL, _ = pnl.Round(4).Float64()
	if cost.IsPositive() {
		w.PnLPct, _ = pnl.Div(cost).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	}
	return w
}

func cacheKey(userID int64, wallet string) string {
	return fmt.Sprintf("%d:%s", userID, wallet)
}
