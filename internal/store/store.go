package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// existingIDsTTL is how long the non-RESOLVED market-id set is cached.
const existingIDsTTL = 5 * time.Minute

// Store wraps the connection pool with the persistence operations of the
// pipeline.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	idCache struct {
		sync.Mutex
		ids     map[string]struct{}
		expires time.Time
	}
}

// New creates a Store on top of an established pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.db
}
