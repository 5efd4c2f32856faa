package monitor

import (
	"context"
	"testing"

	"github.com/polysignal/polymarket-data/internal/gamma"
	"github.com/polysignal/polymarket-data/internal/model"
	"github.com/polysignal/polymarket-data/internal/signals"
)

type fakeTPSLStore struct {
	orders     []model.TPSLOrder
	prices     map[string]*float64 // marketID:outcome -> price
	status     model.Status
	resolution model.ResolutionStatus
	tokens     float64

	triggered map[int64]string
	cancelled map[int64]string
}

func newFakeTPSLStore() *fakeTPSLStore {
	return &fakeTPSLStore{
		prices:     make(map[string]*float64),
		status:     model.StatusActive,
		resolution: model.ResolutionPending,
		tokens:     100,
		triggered:  make(map[int64]string),
		cancelled:  make(map[int64]string),
	}
}

func (f *fakeTPSLStore) ActiveTPSLOrders(context.Context) ([]model.TPSLOrder, error) {
	return f.orders, nil
}

func (f *fakeTPSLStore) CurrentOutcomePrice(_ context.Context, marketID, outcome string) (*float64, error) {
	return f.prices[marketID+":"+outcome], nil
}

func (f *fakeTPSLStore) MarketLifecycle(context.Context, string) (model.Status, model.ResolutionStatus, error) {
	return f.status, f.resolution, nil
}

func (f *fakeTPSLStore) PositionTokens(context.Context, int64, string, string) (float64, error) {
	return f.tokens, nil
}

func (f *fakeTPSLStore) MarkTPSLTriggered(_ context.Context, id int64, triggerType string, _ float64) (bool, error) {
	f.triggered[id] = triggerType
	return true, nil
}

func (f *fakeTPSLStore) CancelTPSL(_ context.Context, id int64, reason string) error {
	f.cancelled[id] = reason
	return nil
}

func ptrF(v float64) *float64 { return &v }

func order(id int64, tp, sl *float64) model.TPSLOrder {
	return model.TPSLOrder{
		ID:              id,
		UserID:          1,
		MarketID:        "m1",
		Outcome:         "Yes",
		EntryPrice:      0.50,
		TakeProfitPrice: tp,
		StopLossPrice:   sl,
		MonitoredTokens: 50,
		Status:          model.TPSLActive,
	}
}

func newTestMonitor(st TPSLStore) (*TPSLMonitor, *signals.Bus) {
	bus := signals.NewBus(16, nil)
	return NewTPSLMonitor(0, st, nil, bus, nil, nil), bus
}

func TestTakeProfitTrigger(t *testing.T) {
	st := newFakeTPSLStore()
	st.orders = []model.TPSLOrder{order(7, ptrF(0.65), nil)}
	st.prices["m1:Yes"] = ptrF(0.66)

	m, bus := newTestMonitor(st)
	m.tick(context.Background())

	if got := st.triggered[7]; got != model.TriggerTypeTakeProfit {
		t.Errorf("triggered[7] = %q, want take_profit", got)
	}

	select {
	case ev := <-bus.Events():
		if ev.Kind != signals.KindTPTriggered || ev.OrderID != 7 || ev.ExecutionPrice != 0.66 {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no TP_TRIGGERED signal emitted")
	}
}

func TestStopLossTrigger(t *testing.T) {
	st := newFakeTPSLStore()
	st.orders = []model.TPSLOrder{order(8, nil, ptrF(0.40))}
	st.prices["m1:Yes"] = ptrF(0.38)

	m, bus := newTestMonitor(st)
	m.tick(context.Background())

	if got := st.triggered[8]; got != model.TriggerTypeStopLoss {
		t.Errorf("triggered[8] = %q, want stop_loss", got)
	}

	ev := <-bus.Events()
	if ev.Kind != signals.KindSLTriggered || ev.ExecutionPrice != 0.38 {
		t.Errorf("event = %+v", ev)
	}
}

func TestNoTriggerInsideBand(t *testing.T) {
	st := newFakeTPSLStore()
	st.orders = []model.TPSLOrder{order(9, ptrF(0.65), ptrF(0.40))}
	st.prices["m1:Yes"] = ptrF(0.55)

	m, _ := newTestMonitor(st)
	m.tick(context.Background())

	if len(st.triggered) != 0 || len(st.cancelled) != 0 {
		t.Errorf("triggered = %v, cancelled = %v, want neither", st.triggered, st.cancelled)
	}
}

func TestNullPriceSkipsOrder(t *testing.T) {
	st := newFakeTPSLStore()
	st.orders = []model.TPSLOrder{order(10, ptrF(0.65), nil)}
	// Resolved market, but price unknown: the order must be left alone.
	st.resolution = model.ResolutionResolved

	m, _ := newTestMonitor(st)
	m.tick(context.Background())

	if len(st.cancelled) != 0 {
		t.Errorf("cancelled = %v, want none when price is null", st.cancelled)
	}
}

type fakePrices struct {
	prices map[string]gamma.TokenPrice
	calls  int
}

func (f *fakePrices) Prices(_ context.Context, _ []string) (map[string]gamma.TokenPrice, error) {
	f.calls++
	return f.prices, nil
}

func TestRestPriceFallback(t *testing.T) {
	st := newFakeTPSLStore()
	o := order(12, ptrF(0.65), nil)
	o.TokenID = "tok-12"
	st.orders = []model.TPSLOrder{o}
	// No stored price on either table; the CLOB quote crosses the threshold.
	rest := &fakePrices{prices: map[string]gamma.TokenPrice{
		"tok-12": {Buy: 0.68, Sell: 0.66},
	}}

	bus := signals.NewBus(16, nil)
	m := NewTPSLMonitor(0, st, rest, bus, nil, nil)
	m.tick(context.Background())

	if rest.calls != 1 {
		t.Fatalf("rest calls = %d, want 1", rest.calls)
	}
	if got := st.triggered[12]; got != model.TriggerTypeTakeProfit {
		t.Errorf("triggered[12] = %q, want take_profit", got)
	}
}

func TestCancellationSweeps(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*fakeTPSLStore, *model.TPSLOrder)
		wantReason string
	}{
		{
			name: "resolved market",
			mutate: func(st *fakeTPSLStore, _ *model.TPSLOrder) {
				st.status = model.StatusClosed
				st.resolution = model.ResolutionResolved
			},
			wantReason: model.CancelReasonMarketResolved,
		},
		{
			name: "closed market",
			mutate: func(st *fakeTPSLStore, _ *model.TPSLOrder) {
				st.status = model.StatusClosed
			},
			wantReason: model.CancelReasonMarketClosed,
		},
		{
			name: "insufficient tokens",
			mutate: func(st *fakeTPSLStore, _ *model.TPSLOrder) {
				st.tokens = 10
			},
			wantReason: model.CancelReasonInsufficientTokens,
		},
		{
			name: "position closed",
			mutate: func(st *fakeTPSLStore, _ *model.TPSLOrder) {
				st.tokens = 0
			},
			wantReason: model.CancelReasonPositionClosed,
		},
		{
			name: "both thresholds null",
			mutate: func(_ *fakeTPSLStore, o *model.TPSLOrder) {
				o.TakeProfitPrice = nil
				o.StopLossPrice = nil
			},
			wantReason: model.CancelReasonBothNull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeTPSLStore()
			o := order(11, ptrF(0.65), nil)
			tt.mutate(st, &o)
			st.orders = []model.TPSLOrder{o}
			st.prices["m1:Yes"] = ptrF(0.55)

			m, _ := newTestMonitor(st)
			m.tick(context.Background())

			if got := st.cancelled[11]; got != tt.wantReason {
				t.Errorf("cancel reason = %q, want %q", got, tt.wantReason)
			}
			if len(st.triggered) != 0 {
				t.Errorf("order triggered despite cancellation: %v", st.triggered)
			}
		})
	}
}
