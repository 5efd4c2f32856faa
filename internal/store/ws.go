package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// WSFields is a partial update delivered by the stream. Nil fields are not
// touched; OutcomePrices entries are merged into the stored JSON object.
type WSFields struct {
	LastBB         *float64
	LastBA         *float64
	LastMid        *float64
	LastTradePrice *float64
	LastYesPrice   *float64
	LastNoPrice    *float64
	OutcomePrices  map[string]float64
}

// UpsertMarketWS writes stream-delivered fields into the markets_ws table,
// keyed by market_id. Only supplied fields are touched.
func (s *Store) UpsertMarketWS(ctx context.Context, marketID string, fields WSFields) error {
	var prices []byte
	if len(fields.OutcomePrices) > 0 {
		var err error
		prices, err = json.Marshal(fields.OutcomePrices)
		if err != nil {
			return fmt.Errorf("encode outcome prices: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO markets_ws (
			market_id, last_bb, last_ba, last_mid, last_trade_price,
			last_yes_price, last_no_price, outcome_prices, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (market_id) DO UPDATE SET
			last_bb = COALESCE(EXCLUDED.last_bb, markets_ws.last_bb),
			last_ba = COALESCE(EXCLUDED.last_ba, markets_ws.last_ba),
			last_mid = COALESCE(EXCLUDED.last_mid, markets_ws.last_mid),
			last_trade_price = COALESCE(EXCLUDED.last_trade_price, markets_ws.last_trade_price),
			last_yes_price = COALESCE(EXCLUDED.last_yes_price, markets_ws.last_yes_price),
			last_no_price = COALESCE(EXCLUDED.last_no_price, markets_ws.last_no_price),
			outcome_prices = CASE
				WHEN EXCLUDED.outcome_prices IS NULL THEN markets_ws.outcome_prices
				ELSE COALESCE(markets_ws.outcome_prices, '{}'::jsonb) || EXCLUDED.outcome_prices
			END,
			updated_at = now()
	`, marketID,
		fields.LastBB, fields.LastBA, fields.LastMid, fields.LastTradePrice,
		fields.LastYesPrice, fields.LastNoPrice, prices)
	if err != nil {
		return fmt.Errorf("upsert markets_ws: %w", err)
	}
	return nil
}

// CurrentOutcomePrice returns the freshest known price for (market_id,
// outcome): the stream table first, the poll table as fallback. Nil when
// the market is not monitored on either path.
func (s *Store) CurrentOutcomePrice(ctx context.Context, marketID, outcome string) (*float64, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT outcome_prices FROM markets_ws WHERE market_id = $1
	`, marketID).Scan(&raw)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("query ws prices: %w", err)
	}
	if len(raw) > 0 {
		var prices map[string]float64
		if err := json.Unmarshal(raw, &prices); err == nil {
			for name, p := range prices {
				if strings.EqualFold(name, outcome) {
					v := p
					return &v, nil
				}
			}
		}
	}

	var (
		outcomes []string
		poll     []float64
	)
	err = s.db.QueryRow(ctx, `
		SELECT outcomes, outcome_prices FROM markets_poll WHERE market_id = $1
	`, marketID).Scan(&outcomes, &poll)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query poll prices: %w", err)
	}

	for i, name := range outcomes {
		if strings.EqualFold(name, outcome) && i < len(poll) {
			v := poll[i]
			return &v, nil
		}
	}
	return nil, nil
}
