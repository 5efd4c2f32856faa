package poller

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polysignal/polymarket-data/internal/gamma"
	"github.com/polysignal/polymarket-data/internal/model"
	"github.com/polysignal/polymarket-data/internal/normalize"
	"github.com/polysignal/polymarket-data/internal/signals"
	"github.com/polysignal/polymarket-data/internal/store"
)

// Volume tier boundaries, USD.
const (
	highVolumeFloor   = 100_000
	mediumVolumeFloor = 10_000
	smallVolumeFloor  = 1_000
)

// tierQueryLimit bounds the candidate list a rotated tier is drawn from.
const tierQueryLimit = 10_000

// interChunkSleep paces upsert chunks within a pass.
const interChunkSleep = 100 * time.Millisecond

// maxClosedPages bounds the Pass 3 closed-markets pagination.
const maxClosedPages = 10

// Fetcher is the upstream REST surface the poller consumes.
type Fetcher interface {
	AllEvents(ctx context.Context, maxPages, pageSize int) ([]gamma.Event, error)
	Markets(ctx context.Context, opts gamma.MarketsOptions) ([]gamma.Market, error)
	MarketsByIDs(ctx context.Context, ids []string) ([]gamma.Market, error)
	ResetBudget()
}

// Store is the persistence surface the poller writes through.
type Store interface {
	UpsertMarkets(ctx context.Context, rows []model.Market, skipLifecycleFilter bool) (int, error)
	MarketIDsByVolumeTier(ctx context.Context, minVol, maxVol float64, limit int) ([]string, error)
	MarketIDsByExpiry(ctx context.Context, window time.Duration, limit int) ([]string, error)
	UserPositionMarketIDs(ctx context.Context) ([]string, error)
	ExistingMarketIDs(ctx context.Context, useCache bool) (map[string]struct{}, error)
	MarkExpiredClosed(ctx context.Context) (int64, error)
	PromotePendingToProposed(ctx context.Context) (int64, error)
	ProposedCandidates(ctx context.Context, limit int) ([]string, error)
	ResolveMarket(ctx context.Context, marketID string, winner int, prices []float64, volume float64) (bool, error)
	SetLastSync(ctx context.Context, ts time.Time) error
	FreshnessHistogram(ctx context.Context) (store.Freshness, error)
	AppendWebhookEvent(ctx context.Context, marketID, event string, payload any) error
}

// Config holds poller tuning.
type Config struct {
	Interval      time.Duration
	EventsPages   int
	PageSize      int
	UpsertChunk   int
	UrgentWindow  time.Duration
	UrgentLimit   int
	HighCount     int
	MediumCount   int
	SmallCount    int
	SmallEvery    int
	ProposedLimit int
	HealthEvery   int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      60 * time.Second,
		EventsPages:   200,
		PageSize:      200,
		UpsertChunk:   500,
		UrgentWindow:  2 * time.Hour,
		UrgentLimit:   50,
		HighCount:     12,
		MediumCount:   3,
		SmallCount:    1,
		SmallEvery:    3,
		ProposedLimit: 1000,
		HealthEvery:   60,
	}
}

// Poller runs the four-pass ingestion cycle.
type Poller struct {
	cfg    Config
	rest   Fetcher
	store  Store
	bus    *signals.Bus
	logger *slog.Logger

	cycle        int
	budgetAborts atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Poller.
func New(cfg Config, rest Fetcher, st Store, bus *signals.Bus, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		rest:   rest,
		store:  st,
		bus:    bus,
		logger: logger.With("component", "poller"),
	}
}

// Start launches the cycle loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop shuts the loop down, waiting up to ctx for the current cycle.
func (p *Poller) Stop(ctx context.Context) error {
	p.logger.Info("stopping poller")

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller stopped")
	case <-ctx.Done():
		p.logger.Warn("poller stop timed out")
	}
	return nil
}

func (p *Poller) run() {
	defer p.wg.Done()

	for {
		start := time.Now()
		p.runCycle(p.ctx)
		if p.ctx.Err() != nil {
			return
		}

		elapsed := time.Since(start)
		wait := p.cfg.Interval - elapsed
		if wait < 0 {
			wait = 0
		}

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runCycle executes Passes 1-4 in order. An exhausted upstream error budget
// aborts the remainder of the cycle; the budget is reset so the next cycle
// starts from scratch.
func (p *Poller) runCycle(ctx context.Context) {
	cycle := p.cycle
	p.cycle++

	start := time.Now()
	p.logger.Info("cycle start", "cycle", cycle)

	passes := []struct {
		name string
		fn   func(context.Context, int) error
	}{
		{"events_sweep", p.passEvents},
		{"tiered_refresh", p.passTiers},
		{"closed_sweep", p.passClosed},
		{"proposed_reeval", p.passProposed},
	}

	for _, pass := range passes {
		if ctx.Err() != nil {
			return
		}
		if err := pass.fn(ctx, cycle); err != nil {
			if errors.Is(err, gamma.ErrBudgetExhausted) {
				p.budgetAborts.Add(1)
				p.logger.Error("error budget exhausted, aborting cycle",
					"cycle", cycle, "pass", pass.name,
					"aborted_cycles", p.budgetAborts.Load())
				p.rest.ResetBudget()
				return
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error("pass failed", "cycle", cycle, "pass", pass.name, "error", err)
		}
	}

	if err := p.store.SetLastSync(ctx, time.Now()); err != nil {
		p.logger.Error("last sync write failed", "error", err)
	}

	if p.cfg.HealthEvery > 0 && cycle > 0 && cycle%p.cfg.HealthEvery == 0 {
		p.healthSweep(ctx)
	}

	p.logger.Info("cycle complete", "cycle", cycle, "duration", time.Since(start))
}

// passEvents is the full-coverage sweep over /events.
func (p *Poller) passEvents(ctx context.Context, cycle int) error {
	events, err := p.rest.AllEvents(ctx, p.cfg.EventsPages, p.cfg.PageSize)
	if err != nil {
		return err
	}

	now := time.Now()
	var rows []model.Market
	for _, event := range events {
		for _, raw := range event.Markets {
			// The nested market payload omits the enclosing event.
			if len(raw.Events) == 0 {
				raw.Events = []gamma.Event{{
					ID:       event.ID,
					Slug:     event.Slug,
					Title:    event.Title,
					Category: event.Category,
				}}
			}
			m := normalize.FromGamma(raw, now)
			if len(m.OutcomePrices) == 0 {
				continue
			}
			rows = append(rows, m)
		}
	}

	// Highest volume first; upstream recency breaks ties.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Volume != rows[j].Volume {
			return rows[i].Volume > rows[j].Volume
		}
		return laterUpstream(rows[i].UpstreamUpdatedAt, rows[j].UpstreamUpdatedAt)
	})

	newMarkets := 0
	if existing, err := p.store.ExistingMarketIDs(ctx, true); err == nil {
		for i := range rows {
			if _, known := existing[rows[i].MarketID]; !known {
				newMarkets++
			}
		}
	}

	written, err := p.upsertPaced(ctx, rows, false)
	p.logger.Info("events sweep done",
		"cycle", cycle, "events", len(events), "markets", len(rows),
		"new", newMarkets, "written", written)
	return err
}

// passTiers refreshes markets already in the store, by priority tier.
func (p *Poller) passTiers(ctx context.Context, cycle int) error {
	var ids []string

	positions, err := p.store.UserPositionMarketIDs(ctx)
	if err != nil {
		return err
	}
	ids = append(ids, positions...)

	urgent, err := p.store.MarketIDsByExpiry(ctx, p.cfg.UrgentWindow, p.cfg.UrgentLimit)
	if err != nil {
		return err
	}
	ids = append(ids, urgent...)

	high, err := p.store.MarketIDsByVolumeTier(ctx, highVolumeFloor, math.MaxFloat64, tierQueryLimit)
	if err != nil {
		return err
	}
	ids = append(ids, rotate(high, cycle, p.cfg.HighCount)...)

	medium, err := p.store.MarketIDsByVolumeTier(ctx, mediumVolumeFloor, highVolumeFloor, tierQueryLimit)
	if err != nil {
		return err
	}
	ids = append(ids, rotate(medium, cycle, p.cfg.MediumCount)...)

	if p.cfg.SmallEvery > 0 && cycle%p.cfg.SmallEvery == 0 {
		small, err := p.store.MarketIDsByVolumeTier(ctx, smallVolumeFloor, mediumVolumeFloor, tierQueryLimit)
		if err != nil {
			return err
		}
		ids = append(ids, rotate(small, cycle, p.cfg.SmallCount)...)
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}

	fetched, err := p.rest.MarketsByIDs(ctx, ids)
	if err != nil {
		return err
	}

	now := time.Now()
	rows := make([]model.Market, 0, len(fetched))
	for _, raw := range fetched {
		rows = append(rows, normalize.FromGamma(raw, now))
	}

	written, err := p.upsertPaced(ctx, rows, false)
	p.logger.Info("tiered refresh done",
		"cycle", cycle, "candidates", len(ids), "fetched", len(fetched), "written", written)
	return err
}

// passClosed runs the lifecycle sweeps and refreshes recently updated
// closed markets.
func (p *Poller) passClosed(ctx context.Context, cycle int) error {
	swept, err := p.store.MarkExpiredClosed(ctx)
	if err != nil {
		return err
	}

	closed := true
	cutoff := time.Now().Add(-24 * time.Hour)
	now := time.Now()

	var rows []model.Market
	for page := 0; page < maxClosedPages; page++ {
		fetched, err := p.rest.Markets(ctx, gamma.MarketsOptions{
			Limit:  p.cfg.PageSize,
			Offset: page * p.cfg.PageSize,
			Closed: &closed,
			Order:  "id",
		})
		if err != nil {
			return err
		}

		recent := 0
		for _, raw := range fetched {
			m := normalize.FromGamma(raw, now)
			if m.UpstreamUpdatedAt == nil || m.UpstreamUpdatedAt.Before(cutoff) {
				continue
			}
			recent++
			rows = append(rows, m)
		}

		// Newest ids first; a page with nothing recent ends the scan.
		if recent == 0 || len(fetched) < p.cfg.PageSize {
			break
		}
	}

	written, err := p.upsertPaced(ctx, rows, true)
	p.logger.Info("closed sweep done",
		"cycle", cycle, "swept", swept, "refreshed", len(rows), "written", written)
	return err
}

// passProposed promotes expired PENDING rows and re-evaluates PROPOSED
// rows against fresh upstream data.
func (p *Poller) passProposed(ctx context.Context, cycle int) error {
	promoted, err := p.store.PromotePendingToProposed(ctx)
	if err != nil {
		return err
	}

	candidates, err := p.store.ProposedCandidates(ctx, p.cfg.ProposedLimit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		p.logger.Debug("no proposed candidates", "cycle", cycle, "promoted", promoted)
		return nil
	}

	fetched, err := p.rest.MarketsByIDs(ctx, candidates)
	if err != nil {
		return err
	}

	now := time.Now()
	resolved := 0
	for _, raw := range fetched {
		prices := normalize.ParseFloatList(raw.OutcomePrices)
		winner := normalize.ExtractOutcome(raw, prices, now)
		if winner == nil {
			continue
		}

		ok, err := p.store.ResolveMarket(ctx, raw.ID, *winner,
			capAll(prices), normalize.Cap(raw.Volume.Float64()))
		if err != nil {
			p.logger.Error("resolve failed", "market_id", raw.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		resolved++

		p.bus.MarketResolved(raw.ID, *winner)
		if err := p.store.AppendWebhookEvent(ctx, raw.ID, "market_resolved", map[string]any{
			"market_id":       raw.ID,
			"winning_outcome": *winner,
			"outcome_prices":  prices,
		}); err != nil {
			p.logger.Warn("webhook log write failed", "market_id", raw.ID, "error", err)
		}
	}

	p.logger.Info("proposed re-evaluation done",
		"cycle", cycle, "promoted", promoted, "candidates", len(candidates), "resolved", resolved)
	return nil
}

// BudgetAborts reports how many cycles were aborted on an exhausted
// upstream error budget, for the health endpoint.
func (p *Poller) BudgetAborts() int64 {
	return p.budgetAborts.Load()
}

// healthSweep logs the freshness histogram.
func (p *Poller) healthSweep(ctx context.Context) {
	f, err := p.store.FreshnessHistogram(ctx)
	if err != nil {
		p.logger.Error("health sweep failed", "error", err)
		return
	}
	p.logger.Info("market freshness",
		"under_5m", f.Under5Min,
		"under_1h", f.Under1Hour,
		"under_6h", f.Under6Hour,
		"over_24h", f.Over24Hour,
		"total", f.Total,
	)
}

// upsertPaced writes rows in configured chunks with a pacing sleep between
// them.
func (p *Poller) upsertPaced(ctx context.Context, rows []model.Market, skipFilter bool) (int, error) {
	chunk := p.cfg.UpsertChunk
	if chunk <= 0 {
		chunk = 500
	}

	written := 0
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}

		n, err := p.store.UpsertMarkets(ctx, rows[start:end], skipFilter)
		written += n
		if err != nil {
			return written, err
		}

		if end < len(rows) {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(interChunkSleep):
			}
		}
	}
	return written, nil
}

func capAll(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i, v := range prices {
		out[i] = normalize.Cap(v)
	}
	return out
}

func laterUpstream(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
