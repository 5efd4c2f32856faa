package gamma

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// errorBudget is the number of consecutive failed requests after which the
// current cycle is aborted.
const errorBudget = 5

// Client provides access to the Gamma and CLOB REST APIs.
type Client struct {
	gammaURL   string
	clobURL    string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	pageDelay      time.Duration // sleep between listing pages
	bulkDelay      time.Duration // sleep between bulk-by-id chunks
	priceDelay     time.Duration // sleep between price chunks
	rateLimitPause time.Duration // pause after a 429

	consecutive atomic.Int32
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(gammaURL, clobURL string, opts ...ClientOption) *Client {
	c := &Client{
		gammaURL: gammaURL,
		clobURL:  clobURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:         slog.Default(),
		maxRetries:     3,
		retryBackoff:   time.Second,
		pageDelay:      50 * time.Millisecond,
		bulkDelay:      100 * time.Millisecond,
		priceDelay:     50 * time.Millisecond,
		rateLimitPause: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDelays overrides the inter-page and inter-chunk sleeps (used in tests).
func WithDelays(page, bulk, price time.Duration) ClientOption {
	return func(c *Client) {
		c.pageDelay = page
		c.bulkDelay = bulk
		c.priceDelay = price
	}
}

// ConsecutiveErrors returns the current consecutive-error count.
func (c *Client) ConsecutiveErrors() int {
	return int(c.consecutive.Load())
}

// ResetBudget clears the consecutive-error counter. The poller calls this
// before retrying a cycle from scratch.
func (c *Client) ResetBudget() {
	c.consecutive.Store(0)
}

// recordFailure bumps the consecutive-error counter and reports whether the
// budget is exhausted.
func (c *Client) recordFailure() bool {
	return c.consecutive.Add(1) >= errorBudget
}

func (c *Client) recordSuccess() {
	c.consecutive.Store(0)
}
