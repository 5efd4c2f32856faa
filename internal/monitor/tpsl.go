package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polysignal/polymarket-data/internal/gamma"
	"github.com/polysignal/polymarket-data/internal/model"
	"github.com/polysignal/polymarket-data/internal/signals"
)

// TPSLStore is the persistence surface the TP/SL monitor reads and writes.
type TPSLStore interface {
	ActiveTPSLOrders(ctx context.Context) ([]model.TPSLOrder, error)
	CurrentOutcomePrice(ctx context.Context, marketID, outcome string) (*float64, error)
	MarketLifecycle(ctx context.Context, marketID string) (model.Status, model.ResolutionStatus, error)
	PositionTokens(ctx context.Context, userID int64, marketID, outcome string) (float64, error)
	MarkTPSLTriggered(ctx context.Context, id int64, triggerType string, executionPrice float64) (bool, error)
	CancelTPSL(ctx context.Context, id int64, reason string) error
}

// PriceFetcher is the REST fallback for tokens neither the stream nor the
// poll table has a price for.
type PriceFetcher interface {
	Prices(ctx context.Context, tokenIDs []string) (map[string]gamma.TokenPrice, error)
}

// CacheInvalidator drops cached redeemable classifications when a trigger
// changes a user's position set.
type CacheInvalidator interface {
	InvalidateUser(userID int64)
}

// TPSLMonitor checks active take-profit / stop-loss orders on a fixed tick.
type TPSLMonitor struct {
	interval   time.Duration
	store      TPSLStore
	rest       PriceFetcher
	bus        *signals.Bus
	invalidate CacheInvalidator
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTPSLMonitor creates the monitor. rest and invalidate may be nil.
func NewTPSLMonitor(interval time.Duration, st TPSLStore, rest PriceFetcher, bus *signals.Bus, invalidate CacheInvalidator, logger *slog.Logger) *TPSLMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &TPSLMonitor{
		interval:   interval,
		store:      st,
		rest:       rest,
		bus:        bus,
		invalidate: invalidate,
		logger:     logger.With("component", "tpsl"),
	}
}

// Start launches the tick loop.
func (m *TPSLMonitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("tpsl monitor started", "interval", m.interval)
	return nil
}

// Stop shuts the loop down.
func (m *TPSLMonitor) Stop(ctx context.Context) error {
	m.logger.Info("stopping tpsl monitor")

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("tpsl monitor stopped")
	case <-ctx.Done():
		m.logger.Warn("tpsl monitor stop timed out")
	}
	return nil
}

func (m *TPSLMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.tick(m.ctx)
		}
	}
}

// tick checks every active order once. One failing order never stops the
// sweep.
func (m *TPSLMonitor) tick(ctx context.Context) {
	orders, err := m.store.ActiveTPSLOrders(ctx)
	if err != nil {
		m.logger.Error("active orders unavailable", "error", err)
		return
	}

	for i := range orders {
		if ctx.Err() != nil {
			return
		}
		m.checkOrder(ctx, &orders[i])
	}
}

func (m *TPSLMonitor) checkOrder(ctx context.Context, order *model.TPSLOrder) {
	price, err := m.store.CurrentOutcomePrice(ctx, order.MarketID, order.Outcome)
	if err != nil {
		m.logger.Error("price lookup failed", "order_id", order.ID, "error", err)
		return
	}
	// Market not monitored on either path: try the REST quote, then skip
	// this tick. An order is never cancelled on a missing price.
	if price == nil {
		price = m.restPrice(ctx, order)
	}
	if price == nil {
		return
	}

	if reason := m.cancelReason(ctx, order); reason != "" {
		if err := m.store.CancelTPSL(ctx, order.ID, reason); err != nil {
			m.logger.Error("cancel failed", "order_id", order.ID, "error", err)
			return
		}
		m.logger.Info("order cancelled", "order_id", order.ID, "reason", reason)
		return
	}

	switch {
	case order.TakeProfitPrice != nil && *price >= *order.TakeProfitPrice:
		m.trigger(ctx, order, model.TriggerTypeTakeProfit, *price)
	case order.StopLossPrice != nil && *price <= *order.StopLossPrice:
		m.trigger(ctx, order, model.TriggerTypeStopLoss, *price)
	}
}

// restPrice fetches a midpoint quote for the order's token from the CLOB
// prices endpoint.
func (m *TPSLMonitor) restPrice(ctx context.Context, order *model.TPSLOrder) *float64 {
	if m.rest == nil || order.TokenID == "" {
		return nil
	}
	prices, err := m.rest.Prices(ctx, []string{order.TokenID})
	if err != nil {
		m.logger.Debug("rest price lookup failed", "order_id", order.ID, "error", err)
		return nil
	}
	p, ok := prices[order.TokenID]
	if !ok {
		return nil
	}

	var mid float64
	switch {
	case p.Buy > 0 && p.Sell > 0:
		mid = (p.Buy + p.Sell) / 2
	case p.Buy > 0:
		mid = p.Buy
	case p.Sell > 0:
		mid = p.Sell
	default:
		return nil
	}
	return &mid
}

// cancelReason runs the cancellation sweeps in priority order, returning
// the first applicable reason code or empty.
func (m *TPSLMonitor) cancelReason(ctx context.Context, order *model.TPSLOrder) string {
	status, resolution, err := m.store.MarketLifecycle(ctx, order.MarketID)
	if err != nil {
		m.logger.Error("lifecycle lookup failed", "order_id", order.ID, "error", err)
		return ""
	}
	if resolution == model.ResolutionResolved {
		return model.CancelReasonMarketResolved
	}
	if status == model.StatusClosed {
		return model.CancelReasonMarketClosed
	}

	tokens, err := m.store.PositionTokens(ctx, order.UserID, order.MarketID, order.Outcome)
	if err != nil {
		m.logger.Error("position lookup failed", "order_id", order.ID, "error", err)
		return ""
	}
	if order.MonitoredTokens > tokens {
		if tokens > 0 {
			return model.CancelReasonInsufficientTokens
		}
		return model.CancelReasonPositionClosed
	}

	if order.TakeProfitPrice == nil && order.StopLossPrice == nil {
		return model.CancelReasonBothNull
	}
	return ""
}

func (m *TPSLMonitor) trigger(ctx context.Context, order *model.TPSLOrder, triggerType string, price float64) {
	ok, err := m.store.MarkTPSLTriggered(ctx, order.ID, triggerType, price)
	if err != nil {
		m.logger.Error("trigger write failed", "order_id", order.ID, "error", err)
		return
	}
	// A concurrent sweep got there first.
	if !ok {
		return
	}

	if triggerType == model.TriggerTypeTakeProfit {
		m.bus.TPTriggered(order.ID, price)
	} else {
		m.bus.SLTriggered(order.ID, price)
	}
	if m.invalidate != nil {
		m.invalidate.InvalidateUser(order.UserID)
	}

	m.logger.Info("order triggered",
		"order_id", order.ID,
		"type", triggerType,
		"execution_price", price,
	)
}
