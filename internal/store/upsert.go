package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/polysignal/polymarket-data/internal/model"
)

// upsertChunkSize is the maximum rows per upsert transaction.
const upsertChunkSize = 500

// batchTimeout bounds one upsert transaction; on timeout the chunk is
// retried row by row so one poison row does not poison the cycle.
const batchTimeout = 30 * time.Second

// upsertMarketSQL writes one market row. The CASE expressions implement the
// field preservation rule: an empty incoming clob_token_ids, tokens, events,
// or category never overwrites a non-empty stored value. A RESOLVED row is
// terminal; a later upsert cannot revert its resolution.
const upsertMarketSQL = `
	INSERT INTO markets_poll (
		market_id, condition_id, slug, title, description,
		category, market_type, restricted,
		status, resolution_status, winning_outcome, resolution_date,
		accepting_orders, archived, tradeable,
		outcomes, outcome_prices, clob_token_ids, tokens,
		volume, volume_24hr, volume_1wk, volume_1mo, liquidity, spread, last_mid,
		price_change_1h, price_change_1d, price_change_1w,
		created_at, end_date, events, polymarket_url, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8,
		$9, $10, $11, $12,
		$13, $14, $15,
		$16, $17, $18, $19,
		$20, $21, $22, $23, $24, $25, $26,
		$27, $28, $29,
		$30, $31, $32, $33, now()
	)
	ON CONFLICT (market_id) DO UPDATE SET
		condition_id = CASE
			WHEN EXCLUDED.condition_id = '' THEN markets_poll.condition_id
			ELSE EXCLUDED.condition_id END,
		slug = EXCLUDED.slug,
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		category = CASE
			WHEN EXCLUDED.category IS NULL OR EXCLUDED.category = '' THEN markets_poll.category
			ELSE EXCLUDED.category END,
		market_type = EXCLUDED.market_type,
		restricted = EXCLUDED.restricted,
		status = CASE
			WHEN markets_poll.resolution_status = 'RESOLVED' THEN markets_poll.status
			ELSE EXCLUDED.status END,
		resolution_status = CASE
			WHEN markets_poll.resolution_status = 'RESOLVED' THEN markets_poll.resolution_status
			ELSE EXCLUDED.resolution_status END,
		winning_outcome = CASE
			WHEN markets_poll.winning_outcome IS NOT NULL THEN markets_poll.winning_outcome
			ELSE EXCLUDED.winning_outcome END,
		resolution_date = CASE
			WHEN markets_poll.resolution_date IS NOT NULL THEN markets_poll.resolution_date
			ELSE EXCLUDED.resolution_date END,
		accepting_orders = CASE
			WHEN markets_poll.resolution_status = 'RESOLVED' THEN false
			ELSE EXCLUDED.accepting_orders END,
		archived = EXCLUDED.archived,
		tradeable = CASE
			WHEN markets_poll.resolution_status = 'RESOLVED' THEN false
			ELSE EXCLUDED.tradeable END,
		outcomes = CASE
			WHEN EXCLUDED.outcomes IS NULL OR EXCLUDED.outcomes = '{}' THEN markets_poll.outcomes
			ELSE EXCLUDED.outcomes END,
		outcome_prices = CASE
			WHEN EXCLUDED.outcome_prices IS NULL OR EXCLUDED.outcome_prices = '{}' THEN markets_poll.outcome_prices
			ELSE EXCLUDED.outcome_prices END,
		clob_token_ids = CASE
			WHEN EXCLUDED.clob_token_ids IS NULL OR EXCLUDED.clob_token_ids::text IN ('null', '[]') THEN markets_poll.clob_token_ids
			ELSE EXCLUDED.clob_token_ids END,
		tokens = CASE
			WHEN EXCLUDED.tokens IS NULL OR EXCLUDED.tokens::text IN ('null', '[]') THEN markets_poll.tokens
			ELSE EXCLUDED.tokens END,
		volume = EXCLUDED.volume,
		volume_24hr = EXCLUDED.volume_24hr,
		volume_1wk = EXCLUDED.volume_1wk,
		volume_1mo = EXCLUDED.volume_1mo,
		liquidity = EXCLUDED.liquidity,
		spread = EXCLUDED.spread,
		last_mid = CASE
			WHEN EXCLUDED.last_mid = 0 THEN markets_poll.last_mid
			ELSE EXCLUDED.last_mid END,
		price_change_1h = EXCLUDED.price_change_1h,
		price_change_1d = EXCLUDED.price_change_1d,
		price_change_1w = EXCLUDED.price_change_1w,
		created_at = COALESCE(markets_poll.created_at, EXCLUDED.created_at),
		end_date = COALESCE(EXCLUDED.end_date, markets_poll.end_date),
		events = CASE
			WHEN EXCLUDED.events IS NULL OR EXCLUDED.events::text IN ('null', '[]') THEN markets_poll.events
			ELSE EXCLUDED.events END,
		polymarket_url = EXCLUDED.polymarket_url,
		updated_at = now()
`

// UpsertMarkets writes normalized rows in chunks of at most 500, each chunk
// in one transaction. Unless skipLifecycleFilter is set, rows that are not
// ACTIVE and carry zero volume are dropped before writing. Returns the
// number of rows written.
func (s *Store) UpsertMarkets(ctx context.Context, rows []model.Market, skipLifecycleFilter bool) (int, error) {
	if !skipLifecycleFilter {
		rows = filterDead(rows)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(rows); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		n, err := s.upsertChunk(ctx, chunk)
		written += n
		if err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			s.logger.Error("chunk upsert failed, retrying row by row",
				"size", len(chunk), "error", err)
			written += s.upsertRowByRow(ctx, chunk)
		}
	}

	return written, nil
}

// upsertChunk writes one chunk inside a transaction with a statement
// timeout.
func (s *Store) upsertChunk(ctx context.Context, rows []model.Market) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", batchTimeout.Milliseconds())); err != nil {
		return 0, fmt.Errorf("set timeout: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range rows {
		if !rows[i].ArraysConsistent() {
			// Stored anyway, but worth a trace.
			s.logger.Warn("parallel arrays inconsistent",
				"market_id", rows[i].MarketID,
				"outcomes", len(rows[i].Outcomes),
				"prices", len(rows[i].OutcomePrices),
				"token_ids", len(rows[i].ClobTokenIDs),
			)
		}
		args, err := upsertArgs(&rows[i])
		if err != nil {
			s.logger.Warn("skipping unencodable row", "market_id", rows[i].MarketID, "error", err)
			continue
		}
		batch.Queue(upsertMarketSQL, args...)
	}

	results := tx.SendBatch(ctx, batch)
	written := 0
	var execErr error
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			execErr = err
			break
		}
		written++
	}
	if closeErr := results.Close(); execErr == nil && closeErr != nil {
		execErr = closeErr
	}
	if execErr != nil {
		return 0, execErr
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// upsertRowByRow is the fallback after a failed chunk: each row gets its
// own statement so the failing one can be identified and skipped.
func (s *Store) upsertRowByRow(ctx context.Context, rows []model.Market) int {
	written := 0
	for i := range rows {
		args, err := upsertArgs(&rows[i])
		if err != nil {
			continue
		}
		if _, err := s.db.Exec(ctx, upsertMarketSQL, args...); err != nil {
			s.logger.Error("row upsert failed", "market_id", rows[i].MarketID, "error", err)
			continue
		}
		written++
	}
	return written
}

func upsertArgs(m *model.Market) ([]any, error) {
	tokenIDs, err := json.Marshal(m.ClobTokenIDs)
	if err != nil {
		return nil, err
	}
	tokens, err := json.Marshal(m.Tokens)
	if err != nil {
		return nil, err
	}
	events, err := json.Marshal(m.Events)
	if err != nil {
		return nil, err
	}

	return []any{
		m.MarketID, m.ConditionID, m.Slug, m.Title, m.Description,
		m.Category, m.MarketType, m.Restricted,
		string(m.Status), string(m.ResolutionStatus), m.WinningOutcome, m.ResolutionDate,
		m.AcceptingOrders, m.Archived, m.Tradeable,
		m.Outcomes, m.OutcomePrices, string(tokenIDs), string(tokens),
		m.Volume, m.Volume24hr, m.Volume1wk, m.Volume1mo, m.Liquidity, m.Spread, m.LastMid,
		m.PriceChange1h, m.PriceChange1d, m.PriceChange1w,
		m.CreatedAt, m.EndDate, string(events), m.PolymarketURL,
	}, nil
}

// filterDead drops rows that are neither ACTIVE nor carrying any volume.
func filterDead(rows []model.Market) []model.Market {
	kept := rows[:0:0]
	for _, m := range rows {
		if m.Status != model.StatusActive && m.Volume == 0 && m.Volume24hr == 0 {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
