package gamma

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Events fetches one page of open events, sorted by volume descending.
func (c *Client) Events(ctx context.Context, offset, limit int) ([]Event, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("closed", "false")
	query.Set("order", "volume")
	query.Set("ascending", "false")

	var events []Event
	if err := c.get(ctx, c.gammaURL, "/events", query, &events); err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	return events, nil
}

// AllEvents paginates the events listing up to maxPages pages of pageSize
// each, sleeping between pages. A failed page ends pagination with whatever
// was collected; an exhausted error budget aborts with ErrBudgetExhausted.
func (c *Client) AllEvents(ctx context.Context, maxPages, pageSize int) ([]Event, error) {
	var all []Event

	for page := 0; page < maxPages; page++ {
		events, err := c.Events(ctx, page*pageSize, pageSize)
		if err != nil {
			if errors.Is(err, ErrBudgetExhausted) || errors.Is(err, context.Canceled) {
				return all, err
			}
			c.logger.Debug("events page failed", "page", page, "err", err)
			break
		}

		all = append(all, events...)

		if len(events) < pageSize {
			break
		}
		if err := sleep(ctx, c.pageDelay); err != nil {
			return all, err
		}
	}

	return all, nil
}
