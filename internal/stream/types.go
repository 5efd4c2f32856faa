package stream

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw frame data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// SubscribeFrame is the outbound subscription message. Unsubscribe is the
// same shape with Action = "unsubscribe".
type SubscribeFrame struct {
	Action   string   `json:"action"`
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// Frame is the inbound message envelope. Frames arrive as single objects
// or arrays of objects; the router flattens arrays before dispatch.
type Frame struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`

	// price_change payload
	Market       string        `json:"market"` // condition_id
	PriceChanges []PriceChange `json:"price_changes"`
	Timestamp    json.Number   `json:"timestamp"`

	// trade payload
	AssetID string      `json:"asset_id"`
	Price   json.Number `json:"price"`

	// orderbook / snapshot / delta payload
	BestBid json.Number `json:"best_bid"`
	BestAsk json.Number `json:"best_ask"`
	Bids    []BookLevel `json:"bids"`
	Asks    []BookLevel `json:"asks"`
}

// PriceChange is one per-asset update inside a price_change frame.
type PriceChange struct {
	AssetID string      `json:"asset_id"`
	BestBid json.Number `json:"best_bid"`
	BestAsk json.Number `json:"best_ask"`
	Price   json.Number `json:"price"`
}

// BookLevel is one orderbook level in a snapshot frame.
type BookLevel struct {
	Price json.Number `json:"price"`
	Size  json.Number `json:"size"`
}

// ClientConfig configures one WebSocket connection.
type ClientConfig struct {
	URL          string
	APIKey       string
	Secret       string
	Passphrase   string
	PingInterval time.Duration
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
	MaxFrameSize int64
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
		MaxFrameSize: 10 << 20,
	}
}
