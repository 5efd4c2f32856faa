package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AppendWebhookEvent records an outbound notification in the append-only
// markets_wh log.
func (s *Store) AppendWebhookEvent(ctx context.Context, marketID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO markets_wh (id, market_id, event, payload, updated_at)
		VALUES ($1, $2, $3, $4, now())
	`, uuid.NewString(), marketID, event, string(body))
	if err != nil {
		return fmt.Errorf("append webhook event: %w", err)
	}
	return nil
}
