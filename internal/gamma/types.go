package gamma

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexFloat decodes a JSON field that may arrive as a number, a quoted
// numeric string, or null.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Malformed numeric field: substitute zero rather than failing the row.
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// Float64 returns the value as a plain float64.
func (f FlexFloat) Float64() float64 { return float64(f) }

// FlexString decodes a JSON field that may arrive as a string, a number, a
// bool, or null, converging on its string form.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = FlexString(str)
		return nil
	}
	*s = FlexString(strings.Trim(raw, `"`))
	return nil
}

// String returns the value as a plain string.
func (s FlexString) String() string { return string(s) }

// Market is the wire representation of a market from the Gamma API.
//
// The list-valued fields (Outcomes, OutcomePrices, ClobTokenIDs, Events)
// may arrive as native JSON arrays or as JSON-encoded strings, sometimes
// doubly escaped. They are kept raw here; package normalize converges them
// to canonical slices.
type Market struct {
	ID          string `json:"id"`
	ConditionID string `json:"conditionId"`
	Slug        string `json:"slug"`
	Question    string `json:"question"`
	Description string `json:"description"`
	Category    string `json:"category"`
	MarketType  string `json:"marketType"`

	Active          bool `json:"active"`
	Closed          bool `json:"closed"`
	Archived        bool `json:"archived"`
	Restricted      bool `json:"restricted"`
	AcceptingOrders bool `json:"acceptingOrders"`
	EnableOrderBook bool `json:"enableOrderBook"`

	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`
	Events        []Event         `json:"events,omitempty"`

	// Resolution signals
	Outcome               FlexString      `json:"outcome"`
	UMAResolutionStatuses json.RawMessage `json:"umaResolutionStatuses"`

	Volume     FlexFloat `json:"volume"`
	Volume24hr FlexFloat `json:"volume24hr"`
	Volume1wk  FlexFloat `json:"volume1wk"`
	Volume1mo  FlexFloat `json:"volume1mo"`
	Liquidity  FlexFloat `json:"liquidity"`
	Spread     FlexFloat `json:"spread"`
	BestBid    FlexFloat `json:"bestBid"`
	BestAsk    FlexFloat `json:"bestAsk"`

	OneHourPriceChange FlexFloat `json:"oneHourPriceChange"`
	OneDayPriceChange  FlexFloat `json:"oneDayPriceChange"`
	OneWeekPriceChange FlexFloat `json:"oneWeekPriceChange"`

	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Event is the wire representation of an event from the Gamma API.
type Event struct {
	ID       string    `json:"id"`
	Slug     string    `json:"slug"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Volume   FlexFloat `json:"volume"`
	Closed   bool      `json:"closed"`
	Markets  []Market  `json:"markets"`
}

// TokenPrice is the current top of book for one token from the CLOB
// prices endpoint.
type TokenPrice struct {
	Buy  float64
	Sell float64
}

// tokenPriceWire is the CLOB /prices value shape: {"BUY": "0.42", "SELL": "0.44"}.
type tokenPriceWire struct {
	Buy  FlexFloat `json:"BUY"`
	Sell FlexFloat `json:"SELL"`
}

// MarketsOptions configures a Markets listing request.
type MarketsOptions struct {
	Limit     int
	Offset    int
	Closed    *bool
	Order     string // "id" or "volume"
	Ascending bool
}
