package gamma

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// priceChunkSize is the maximum number of token IDs per prices request.
const priceChunkSize = 100

// Prices fetches current bid/ask for the given token IDs from the CLOB API,
// in chunks of at most 100, sleeping between chunks.
func (c *Client) Prices(ctx context.Context, tokenIDs []string) (map[string]TokenPrice, error) {
	prices := make(map[string]TokenPrice, len(tokenIDs))

	for start := 0; start < len(tokenIDs); start += priceChunkSize {
		end := start + priceChunkSize
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		chunk := tokenIDs[start:end]

		query := url.Values{}
		query.Set("tokenIds", strings.Join(chunk, ","))

		var wire map[string]tokenPriceWire
		err := c.get(ctx, c.clobURL, "/prices", query, &wire)
		switch {
		case err == nil:
			for token, p := range wire {
				prices[token] = TokenPrice{
					Buy:  p.Buy.Float64(),
					Sell: p.Sell.Float64(),
				}
			}
		case isRateLimited(err):
			c.logger.Debug("rate limited on prices, skipping chunk", "size", len(chunk))
			if err := sleep(ctx, c.rateLimitPause); err != nil {
				return prices, err
			}
		case errors.Is(err, ErrBudgetExhausted) || errors.Is(err, context.Canceled):
			return prices, err
		default:
			c.logger.Debug("prices chunk failed", "size", len(chunk), "err", err)
		}

		if end < len(tokenIDs) {
			if err := sleep(ctx, c.priceDelay); err != nil {
				return prices, err
			}
		}
	}

	return prices, nil
}
