package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/polysignal/polymarket-data/internal/model"
)

// MarketIDsByVolumeTier returns non-RESOLVED market ids with volume in
// [minVol, maxVol). Rows that are PROPOSED and expired within the last day
// rank first, then volume descending.
func (s *Store) MarketIDsByVolumeTier(ctx context.Context, minVol, maxVol float64, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT market_id
		FROM markets_poll
		WHERE resolution_status <> 'RESOLVED'
		  AND volume >= $1 AND volume < $2
		ORDER BY
			CASE WHEN resolution_status = 'PROPOSED'
			      AND end_date > now() - interval '24 hours'
			     THEN 0 ELSE 1 END,
			volume DESC
		LIMIT $3
	`, minVol, maxVol, limit)
	if err != nil {
		return nil, fmt.Errorf("query volume tier: %w", err)
	}
	return scanIDs(rows)
}

// MarketIDsByExpiry returns non-RESOLVED market ids whose end_date falls in
// (now, now+window), soonest first.
func (s *Store) MarketIDsByExpiry(ctx context.Context, window time.Duration, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT market_id
		FROM markets_poll
		WHERE resolution_status <> 'RESOLVED'
		  AND end_date > now()
		  AND end_date < now() + $1::interval
		ORDER BY end_date ASC
		LIMIT $2
	`, window.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query expiry tier: %w", err)
	}
	return scanIDs(rows)
}

// UserPositionMarketIDs returns non-RESOLVED market ids with at least one
// active user position.
func (s *Store) UserPositionMarketIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.market_id
		FROM markets_poll m
		JOIN watched_markets w ON w.market_id = m.market_id
		WHERE m.resolution_status <> 'RESOLVED'
		  AND w.active_positions > 0
	`)
	if err != nil {
		return nil, fmt.Errorf("query position markets: %w", err)
	}
	return scanIDs(rows)
}

// ActivePositionTokenIDs returns the flattened CLOB token ids of all
// non-RESOLVED markets with active user positions. This is the desired set
// for WebSocket subscriptions.
func (s *Store) ActivePositionTokenIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.clob_token_ids
		FROM markets_poll m
		JOIN watched_markets w ON w.market_id = m.market_id
		WHERE m.resolution_status <> 'RESOLVED'
		  AND w.active_positions > 0
		  AND m.clob_token_ids IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("query position tokens: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var tokens []string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan token ids: %w", err)
		}
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			continue
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup || id == "" {
				continue
			}
			seen[id] = struct{}{}
			tokens = append(tokens, id)
			if limit > 0 && len(tokens) >= limit {
				return tokens, rows.Err()
			}
		}
	}
	return tokens, rows.Err()
}

// ExistingMarketIDs returns the set of non-RESOLVED market ids, cached for
// five minutes when useCache is set.
func (s *Store) ExistingMarketIDs(ctx context.Context, useCache bool) (map[string]struct{}, error) {
	if useCache {
		s.idCache.Lock()
		if s.idCache.ids != nil && time.Now().Before(s.idCache.expires) {
			ids := s.idCache.ids
			s.idCache.Unlock()
			return ids, nil
		}
		s.idCache.Unlock()
	}

	rows, err := s.db.Query(ctx, `
		SELECT market_id FROM markets_poll WHERE resolution_status <> 'RESOLVED'
	`)
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.idCache.Lock()
	s.idCache.ids = ids
	s.idCache.expires = time.Now().Add(existingIDsTTL)
	s.idCache.Unlock()

	return ids, nil
}

// MarketByConditionID returns the routing subset of a market row, or nil
// when the condition id is unknown.
func (s *Store) MarketByConditionID(ctx context.Context, conditionID string) (*model.Market, error) {
	var (
		m          model.Market
		status     string
		resolution string
		tokenIDs   []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT market_id, condition_id, status, resolution_status, outcomes, clob_token_ids
		FROM markets_poll
		WHERE condition_id = $1
	`, conditionID).Scan(&m.MarketID, &m.ConditionID, &status, &resolution, &m.Outcomes, &tokenIDs)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query by condition id: %w", err)
	}

	m.Status = model.Status(status)
	m.ResolutionStatus = model.ResolutionStatus(resolution)
	if len(tokenIDs) > 0 {
		_ = json.Unmarshal(tokenIDs, &m.ClobTokenIDs)
	}
	return &m, nil
}

// MarkExpiredClosed runs the lifecycle sweeps: expired ACTIVE rows become
// CLOSED (PENDING promoted to PROPOSED), and ACTIVE rows untouched for
// three days are force-closed. Returns total rows affected.
func (s *Store) MarkExpiredClosed(ctx context.Context) (int64, error) {
	expired, err := s.db.Exec(ctx, `
		UPDATE markets_poll
		SET status = 'CLOSED',
		    tradeable = false,
		    accepting_orders = false,
		    resolution_status = CASE WHEN resolution_status = 'PENDING'
		                             THEN 'PROPOSED' ELSE resolution_status END,
		    updated_at = now()
		WHERE status = 'ACTIVE' AND end_date < now()
	`)
	if err != nil {
		return 0, fmt.Errorf("expired sweep: %w", err)
	}

	stale, err := s.db.Exec(ctx, `
		UPDATE markets_poll
		SET status = 'CLOSED',
		    tradeable = false,
		    accepting_orders = false,
		    updated_at = now()
		WHERE status = 'ACTIVE' AND updated_at < now() - interval '3 days'
	`)
	if err != nil {
		return expired.RowsAffected(), fmt.Errorf("stale sweep: %w", err)
	}

	return expired.RowsAffected() + stale.RowsAffected(), nil
}

// PromotePendingToProposed moves PENDING rows expired for over an hour to
// PROPOSED. Returns rows affected.
func (s *Store) PromotePendingToProposed(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE markets_poll
		SET resolution_status = 'PROPOSED',
		    status = 'CLOSED',
		    tradeable = false,
		    accepting_orders = false,
		    updated_at = now()
		WHERE resolution_status = 'PENDING'
		  AND end_date < now() - interval '1 hour'
	`)
	if err != nil {
		return 0, fmt.Errorf("promote pending: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ProposedCandidates returns binary PROPOSED markets awaiting an outcome,
// prioritized by has-user-position, then expired within the last day, then
// oldest expiry first. Concurrent instances may pick the same candidates;
// the winning_outcome guard in ResolveMarket keeps resolution single-shot.
func (s *Store) ProposedCandidates(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.market_id
		FROM markets_poll m
		LEFT JOIN watched_markets w
		       ON w.market_id = m.market_id AND w.active_positions > 0
		WHERE m.resolution_status = 'PROPOSED'
		  AND m.winning_outcome IS NULL
		  AND m.end_date < now() - interval '1 hour'
		  AND array_length(m.outcome_prices, 1) = 2
		ORDER BY
			CASE WHEN w.market_id IS NOT NULL THEN 0
			     WHEN m.end_date > now() - interval '24 hours' THEN 1
			     ELSE 2 END,
			m.end_date ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query proposed candidates: %w", err)
	}
	return scanIDs(rows)
}

// resolveMarketSQL transitions a market to RESOLVED. The winning_outcome
// guard makes the transition single-shot even across instances sharing the
// database.
const resolveMarketSQL = `
	UPDATE markets_poll
	SET resolution_status = 'RESOLVED',
	    winning_outcome = $2,
	    resolution_date = now(),
	    status = 'CLOSED',
	    tradeable = false,
	    accepting_orders = false,
	    outcome_prices = CASE WHEN $3::numeric[] IS NULL OR $3::numeric[] = '{}'
	                          THEN outcome_prices ELSE $3::numeric[] END,
	    volume = GREATEST(volume, $4),
	    updated_at = now()
	WHERE market_id = $1 AND winning_outcome IS NULL
`

// ResolveMarket marks a market RESOLVED with the winning outcome and fresh
// prices. A row that already has a winner is left untouched.
func (s *Store) ResolveMarket(ctx context.Context, marketID string, winner int, prices []float64, volume float64) (bool, error) {
	tag, err := s.db.Exec(ctx, resolveMarketSQL, marketID, winner, prices, volume)
	if err != nil {
		return false, fmt.Errorf("resolve market: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// LastSync returns the timestamp of the most recent completed poll cycle,
// or nil before the first one.
func (s *Store) LastSync(ctx context.Context) (*time.Time, error) {
	var ts time.Time
	err := s.db.QueryRow(ctx, `SELECT last_sync FROM poller_state WHERE id = 1`).Scan(&ts)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query last sync: %w", err)
	}
	return &ts, nil
}

// SetLastSync records cycle completion.
func (s *Store) SetLastSync(ctx context.Context, ts time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO poller_state (id, last_sync, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET last_sync = EXCLUDED.last_sync, updated_at = now()
	`, ts)
	if err != nil {
		return fmt.Errorf("set last sync: %w", err)
	}
	return nil
}

// Freshness is the health-sweep histogram over non-RESOLVED rows.
type Freshness struct {
	Under5Min  int64
	Under1Hour int64
	Under6Hour int64
	Over24Hour int64
	Total      int64
}

// FreshnessHistogram computes how recently non-RESOLVED rows were updated.
func (s *Store) FreshnessHistogram(ctx context.Context) (Freshness, error) {
	var f Freshness
	err := s.db.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE updated_at > now() - interval '5 minutes'),
			count(*) FILTER (WHERE updated_at > now() - interval '1 hour'),
			count(*) FILTER (WHERE updated_at > now() - interval '6 hours'),
			count(*) FILTER (WHERE updated_at < now() - interval '24 hours'),
			count(*)
		FROM markets_poll
		WHERE resolution_status <> 'RESOLVED'
	`).Scan(&f.Under5Min, &f.Under1Hour, &f.Under6Hour, &f.Over24Hour, &f.Total)
	if err != nil {
		return Freshness{}, fmt.Errorf("freshness histogram: %w", err)
	}
	return f, nil
}
