package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *PipelineConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}
	if c.Poller.UpsertChunk < 1 || c.Poller.UpsertChunk > 500 {
		return fmt.Errorf("poller.upsert_chunk must be in [1, 500], got %d", c.Poller.UpsertChunk)
	}
	if c.Poller.ProposedLimit < 1 {
		return errors.New("poller.proposed_limit must be >= 1")
	}

	if c.Stream.Enabled {
		if c.API.WSURL == "" {
			return errors.New("api.ws_url is required when stream is enabled")
		}
		if c.Stream.ReconnectBaseWait > c.Stream.ReconnectMaxWait {
			return fmt.Errorf("stream.reconnect_base_wait (%v) cannot exceed reconnect_max_wait (%v)",
				c.Stream.ReconnectBaseWait, c.Stream.ReconnectMaxWait)
		}
	}

	if c.Monitor.TPSLEnabled && c.Monitor.TPSLInterval <= 0 {
		return errors.New("monitor.tpsl_interval must be positive")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
