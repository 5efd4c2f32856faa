package normalize

import (
	"strings"
	"time"

	"github.com/polysignal/polymarket-data/internal/gamma"
	"github.com/polysignal/polymarket-data/internal/model"
)

// proposedGrace is how long past end_date a market stays PENDING before
// being treated as PROPOSED (awaiting the oracle).
const proposedGrace = time.Hour

// ExtractOutcome determines the winning outcome index for a binary market,
// trying signals in priority order: the upstream explicit outcome field,
// then extreme prices backed by the UMA oracle, then extreme prices on a
// market that is closed or past its end date. Returns nil when the market
// is not yet resolvable. A live market is never resolved on prices alone:
// a heavy favorite can trade at 0.995 long before it settles.
func ExtractOutcome(m gamma.Market, outcomePrices []float64, now time.Time) *int {
	if idx := explicitOutcome(m.Outcome.String()); idx != nil {
		return idx
	}

	extreme := extremeOutcome(outcomePrices)
	if extreme == nil {
		return nil
	}
	if umaResolved(m.UMAResolutionStatuses) {
		return extreme
	}
	if m.Closed || expired(parseTime(m.EndDate), now) {
		return extreme
	}
	return nil
}

func expired(endDate *time.Time, now time.Time) bool {
	return endDate != nil && endDate.Before(now)
}

func explicitOutcome(outcome string) *int {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "yes", "1", "true", "up":
		return ptr(0)
	case "no", "0", "false", "down":
		return ptr(1)
	}
	return nil
}

// extremeOutcome returns the winner index when one binary price is >= 0.99
// and the other is <= 0.01.
func extremeOutcome(prices []float64) *int {
	if len(prices) != 2 {
		return nil
	}
	if prices[0] >= 0.99 && prices[1] <= 0.01 {
		return ptr(0)
	}
	if prices[1] >= 0.99 && prices[0] <= 0.01 {
		return ptr(1)
	}
	return nil
}

// umaResolved reports whether the UMA oracle lists the market as resolved.
// Matched on whole status words so "unresolved" does not count.
func umaResolved(raw []byte) bool {
	statuses := ParseStringList(raw)
	if statuses == nil {
		statuses = []string{strings.Trim(strings.TrimSpace(string(unwrap(raw))), `"`)}
	}
	for _, status := range statuses {
		if strings.EqualFold(status, "resolved") {
			return true
		}
	}
	return false
}

// Classify derives (status, resolution_status) from the resolution signal,
// the upstream closed flag, and end_date.
func Classify(resolved bool, closed bool, endDate *time.Time, now time.Time) (model.Status, model.ResolutionStatus) {
	if resolved {
		return model.StatusClosed, model.ResolutionResolved
	}

	expired := endDate != nil && endDate.Before(now)
	if !closed && !expired {
		return model.StatusActive, model.ResolutionPending
	}

	// Closed but unresolved: PROPOSED once the grace hour has passed.
	if endDate != nil && endDate.Add(proposedGrace).Before(now) {
		return model.StatusClosed, model.ResolutionProposed
	}
	return model.StatusClosed, model.ResolutionPending
}

func ptr(i int) *int { return &i }
