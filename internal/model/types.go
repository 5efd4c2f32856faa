package model

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Status enums
// -----------------------------------------------------------------------------

// Status is the trading status of a market.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

// ResolutionStatus tracks a market through the resolution pipeline.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "PENDING"  // awaiting expiry
	ResolutionProposed ResolutionStatus = "PROPOSED" // expired, awaiting oracle
	ResolutionResolved ResolutionStatus = "RESOLVED" // oracle determined winner (terminal)
)

// TPSLStatus is the lifecycle status of a take-profit / stop-loss order.
type TPSLStatus string

const (
	TPSLActive    TPSLStatus = "ACTIVE"
	TPSLTriggered TPSLStatus = "TRIGGERED"
	TPSLCancelled TPSLStatus = "CANCELLED"
)

// Cancellation reason codes for TP/SL orders.
const (
	CancelReasonMarketResolved     = "market_resolved"
	CancelReasonMarketClosed       = "market_closed"
	CancelReasonInsufficientTokens = "insufficient_tokens"
	CancelReasonPositionClosed     = "position_closed"
	CancelReasonBothNull           = "both_null"
)

// Triggered types for TP/SL orders.
const (
	TriggerTypeTakeProfit = "take_profit"
	TriggerTypeStopLoss   = "stop_loss"
)

// -----------------------------------------------------------------------------
// Market
// -----------------------------------------------------------------------------

// Token is a per-outcome token descriptor, parallel to ClobTokenIDs.
type Token struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// Event is an upstream grouping of related markets under a shared topic.
type Event struct {
	EventID  string `json:"event_id"`
	Slug     string `json:"event_slug"`
	Title    string `json:"event_title"`
	Category string `json:"event_category"`
}

// Market is the canonical market record, keyed by MarketID.
//
// The ordered slices Outcomes, OutcomePrices, ClobTokenIDs and Tokens are
// parallel arrays: index i describes the same outcome in each. A length
// mismatch is stored anyway but logged as anomalous.
type Market struct {
	// Identity
	MarketID    string
	ConditionID string // on-chain identifier, secondary lookup key
	Slug        string
	Title       string
	Description string

	// Classification
	Category   string
	MarketType string
	Restricted bool

	// Lifecycle
	Status           Status
	ResolutionStatus ResolutionStatus
	WinningOutcome   *int // index into Outcomes, nil until resolved
	ResolutionDate   *time.Time

	// Trading surface
	AcceptingOrders bool
	Archived        bool
	Tradeable       bool
	Outcomes        []string
	OutcomePrices   []float64
	ClobTokenIDs    []string
	Tokens          []Token

	// Market stats (USD, capped at 99,999,999.9999)
	Volume     float64
	Volume24hr float64
	Volume1wk  float64
	Volume1mo  float64
	Liquidity  float64
	Spread     float64
	LastMid    float64

	PriceChange1h float64
	PriceChange1d float64
	PriceChange1w float64

	// Temporal
	CreatedAt *time.Time
	EndDate   *time.Time
	UpdatedAt time.Time // always server-now on write

	// Grouping (preserved from DB when upstream omits)
	Events []Event

	// Derived
	PolymarketURL string

	// Upstream sort key, used only during fetch prioritization.
	UpstreamUpdatedAt *time.Time
}

// IsResolved reports whether the market has reached its terminal state.
func (m *Market) IsResolved() bool {
	return m.ResolutionStatus == ResolutionResolved
}

// IsBinary reports whether the market has exactly two outcomes.
func (m *Market) IsBinary() bool {
	return len(m.Outcomes) == 2
}

// OutcomeIndex returns the index of the named outcome (case-insensitive),
// or -1 if not present.
func (m *Market) OutcomeIndex(outcome string) int {
	for i, o := range m.Outcomes {
		if strings.EqualFold(o, outcome) {
			return i
		}
	}
	return -1
}

// TokenIndex returns the index of the given CLOB token ID, or -1 if not present.
func (m *Market) TokenIndex(tokenID string) int {
	for i, id := range m.ClobTokenIDs {
		if id == tokenID {
			return i
		}
	}
	return -1
}

// ArraysConsistent reports whether the non-empty parallel arrays agree in length.
func (m *Market) ArraysConsistent() bool {
	n := len(m.Outcomes)
	if len(m.OutcomePrices) > 0 && len(m.OutcomePrices) != n {
		return false
	}
	if len(m.ClobTokenIDs) > 0 && len(m.ClobTokenIDs) != n {
		return false
	}
	if len(m.Tokens) > 0 && len(m.Tokens) != n {
		return false
	}
	return true
}

// -----------------------------------------------------------------------------
// External-layer rows the core reads
// -----------------------------------------------------------------------------

// UserPosition is a user's holding in one market outcome. Owned by the
// external trading layer; the core only reads it.
type UserPosition struct {
	UserID     int64
	MarketID   string
	Outcome    string
	TokenCount float64
	EntryPrice float64
}

// WatchedMarket marks a market with at least one active user position.
// Written by the external trading layer.
type WatchedMarket struct {
	MarketID        string
	ConditionID     string
	Title           string
	ActivePositions int
	LastPositionAt  *time.Time
	UpdatedAt       time.Time
}

// TPSLOrder is a user-configured take-profit / stop-loss rule.
// At least one of TakeProfitPrice / StopLossPrice must be non-nil for the
// row to be active.
type TPSLOrder struct {
	ID              int64
	UserID          int64
	MarketID        string
	TokenID         string
	Outcome         string
	EntryPrice      float64
	TakeProfitPrice *float64
	StopLossPrice   *float64
	MonitoredTokens float64 // position size this rule covers
	Status          TPSLStatus
	TriggeredType   string // take_profit or stop_loss, set on trigger
	ExecutionPrice  *float64
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Active reports whether the order should still be monitored.
func (o *TPSLOrder) Active() bool {
	return o.Status == TPSLActive
}
