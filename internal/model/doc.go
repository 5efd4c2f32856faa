// Package model defines shared data types used across the pipeline.
//
// All types mirror the database schema in migrations/schema.sql.
//
// Conventions:
//   - Prices: float64 probabilities in [0, 1]
//   - Monetary stats: float64 USD, clamped to [0, 99999999.9999] at the DB boundary
//   - Timestamps: time.Time in UTC; nullable columns use *time.Time
//   - IDs: string for upstream market/token/condition IDs, uuid.UUID for log rows
package model
