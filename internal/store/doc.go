// Package store persists market rows and serves the lookup queries the
// poller, streamer, and monitors run against Postgres.
//
// The poller writes the markets_poll table, the streamer writes the
// markets_ws table. The two are disjoint and may be updated concurrently
// without coordination.
package store
