package store

import (
	"context"
	"fmt"

	"github.com/polysignal/polymarket-data/internal/model"
)

// ActiveTPSLOrders returns every take-profit / stop-loss order still being
// monitored.
func (s *Store) ActiveTPSLOrders(ctx context.Context) ([]model.TPSLOrder, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, market_id, token_id, outcome, entry_price,
		       take_profit_price, stop_loss_price, monitored_tokens,
		       status, created_at, updated_at
		FROM tpsl_orders
		WHERE status = 'ACTIVE'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query active tpsl orders: %w", err)
	}
	defer rows.Close()

	var orders []model.TPSLOrder
	for rows.Next() {
		var (
			o      model.TPSLOrder
			status string
		)
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.MarketID, &o.TokenID, &o.Outcome, &o.EntryPrice,
			&o.TakeProfitPrice, &o.StopLossPrice, &o.MonitoredTokens,
			&status, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tpsl order: %w", err)
		}
		o.Status = model.TPSLStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// MarkTPSLTriggered transitions an order to TRIGGERED with the execution
// price. Returns false if the order was no longer ACTIVE.
func (s *Store) MarkTPSLTriggered(ctx context.Context, id int64, triggerType string, executionPrice float64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tpsl_orders
		SET status = 'TRIGGERED',
		    triggered_type = $2,
		    execution_price = $3,
		    updated_at = now()
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, triggerType, executionPrice)
	if err != nil {
		return false, fmt.Errorf("mark tpsl triggered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelTPSL transitions an order to CANCELLED with a reason code.
func (s *Store) CancelTPSL(ctx context.Context, id int64, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tpsl_orders
		SET status = 'CANCELLED',
		    cancel_reason = $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("cancel tpsl order: %w", err)
	}
	return nil
}

// PositionTokens returns the user's current holding for (market, outcome).
func (s *Store) PositionTokens(ctx context.Context, userID int64, marketID, outcome string) (float64, error) {
	var tokens float64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(token_count), 0)
		FROM user_positions
		WHERE user_id = $1 AND market_id = $2 AND lower(outcome) = lower($3)
	`, userID, marketID, outcome).Scan(&tokens)
	if err != nil {
		return 0, fmt.Errorf("query position tokens: %w", err)
	}
	return tokens, nil
}

// MarketLifecycle returns (status, resolution_status) for one market, used
// by the TP/SL cancellation sweep.
func (s *Store) MarketLifecycle(ctx context.Context, marketID string) (model.Status, model.ResolutionStatus, error) {
	var status, resolution string
	err := s.db.QueryRow(ctx, `
		SELECT status, resolution_status FROM markets_poll WHERE market_id = $1
	`, marketID).Scan(&status, &resolution)
	if err != nil {
		if isNoRows(err) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("query market lifecycle: %w", err)
	}
	return model.Status(status), model.ResolutionStatus(resolution), nil
}

// ResolvedMarketByConditionID returns the resolution fields needed by the
// redeemable detector, or nil when the condition id is unknown.
func (s *Store) ResolvedMarketByConditionID(ctx context.Context, conditionID string) (*model.Market, error) {
	var (
		m          model.Market
		status     string
		resolution string
	)
	err := s.db.QueryRow(ctx, `
		SELECT market_id, condition_id, status, resolution_status, winning_outcome, outcomes
		FROM markets_poll
		WHERE condition_id = $1
	`, conditionID).Scan(&m.MarketID, &m.ConditionID, &status, &resolution, &m.WinningOutcome, &m.Outcomes)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query resolved market: %w", err)
	}
	m.Status = model.Status(status)
	m.ResolutionStatus = model.ResolutionStatus(resolution)
	return &m, nil
}
