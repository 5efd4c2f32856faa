// Package database provides the PostgreSQL connection pool.
//
// A single small pool (1-3 connections) is shared by the poller, the
// streamer, and the monitors. When the connection goes through PgBouncer in
// transaction-pooling mode, the simple query protocol must be enabled so no
// prepared statements are cached server-side.
package database
