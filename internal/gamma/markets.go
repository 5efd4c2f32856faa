package gamma

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// bulkChunkSize is the maximum number of market IDs per bulk-by-id request.
const bulkChunkSize = 100

// Markets fetches one page of standalone markets.
func (c *Client) Markets(ctx context.Context, opts MarketsOptions) ([]Market, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Closed != nil {
		query.Set("closed", strconv.FormatBool(*opts.Closed))
	}
	if opts.Order != "" {
		query.Set("order", opts.Order)
	}
	query.Set("ascending", strconv.FormatBool(opts.Ascending))

	var markets []Market
	if err := c.get(ctx, c.gammaURL, "/markets", query, &markets); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}

	return markets, nil
}

// MarketsByIDs fetches specific markets in chunks of at most 100 IDs,
// sleeping between chunks. A rate-limited chunk pauses and is skipped; a
// failed chunk is skipped unless the error budget is exhausted.
func (c *Client) MarketsByIDs(ctx context.Context, ids []string) ([]Market, error) {
	var all []Market

	for start := 0; start < len(ids); start += bulkChunkSize {
		end := start + bulkChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		query := url.Values{}
		query.Set("id", strings.Join(chunk, ","))
		query.Set("limit", strconv.Itoa(len(chunk)))

		var markets []Market
		err := c.get(ctx, c.gammaURL, "/markets", query, &markets)
		switch {
		case err == nil:
			all = append(all, markets...)
		case isRateLimited(err):
			c.logger.Debug("rate limited on bulk fetch, skipping chunk", "size", len(chunk))
			if err := sleep(ctx, c.rateLimitPause); err != nil {
				return all, err
			}
		case errors.Is(err, ErrBudgetExhausted) || errors.Is(err, context.Canceled):
			return all, err
		default:
			c.logger.Debug("bulk chunk failed", "size", len(chunk), "err", err)
		}

		if end < len(ids) {
			if err := sleep(ctx, c.bulkDelay); err != nil {
				return all, err
			}
		}
	}

	return all, nil
}

// Market fetches a single market by ID.
func (c *Client) Market(ctx context.Context, id string) (*Market, error) {
	var market Market
	if err := c.get(ctx, c.gammaURL, "/markets/"+id, nil, &market); err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return &market, nil
}
