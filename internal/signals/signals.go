// Package signals carries pipeline events to the external trading layer
// over an in-process channel. The receiver owns durability; a full buffer
// drops the event with a warning rather than blocking a worker.
package signals

import (
	"log/slog"
	"time"
)

// Kind discriminates pipeline events.
type Kind string

const (
	KindTPTriggered         Kind = "TP_TRIGGERED"
	KindSLTriggered         Kind = "SL_TRIGGERED"
	KindMarketResolved      Kind = "MARKET_RESOLVED"
	KindRedeemableAvailable Kind = "REDEEMABLE_AVAILABLE"
)

// Event is one pipeline notification.
type Event struct {
	Kind Kind
	At   time.Time

	// TP/SL trigger fields
	OrderID        int64
	ExecutionPrice float64

	// Resolution fields
	MarketID       string
	WinningOutcome int

	// Redeemable fields
	UserID       int64
	ConditionIDs []string
}

// Bus is a buffered fan-in of pipeline events with a single consumer.
type Bus struct {
	ch     chan Event
	logger *slog.Logger
}

// NewBus creates a bus with the given buffer size.
func NewBus(size int, logger *slog.Logger) *Bus {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		ch:     make(chan Event, size),
		logger: logger.With("component", "signals"),
	}
}

// Events is the consumer side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Publish enqueues an event without blocking. Dropped events are logged;
// the consumer re-reads durable state on its next pass.
func (b *Bus) Publish(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case b.ch <- ev:
		return true
	default:
		b.logger.Warn("signal buffer full, dropping event", "kind", ev.Kind)
		return false
	}
}

// TPTriggered publishes a take-profit trigger.
func (b *Bus) TPTriggered(orderID int64, executionPrice float64) {
	b.Publish(Event{Kind: KindTPTriggered, OrderID: orderID, ExecutionPrice: executionPrice})
}

// SLTriggered publishes a stop-loss trigger.
func (b *Bus) SLTriggered(orderID int64, executionPrice float64) {
	b.Publish(Event{Kind: KindSLTriggered, OrderID: orderID, ExecutionPrice: executionPrice})
}

// MarketResolved publishes a resolution notification.
func (b *Bus) MarketResolved(marketID string, winningOutcome int) {
	b.Publish(Event{Kind: KindMarketResolved, MarketID: marketID, WinningOutcome: winningOutcome})
}

// RedeemableAvailable publishes newly redeemable positions for a user.
func (b *Bus) RedeemableAvailable(userID int64, conditionIDs []string) {
	b.Publish(Event{Kind: KindRedeemableAvailable, UserID: userID, ConditionIDs: conditionIDs})
}
