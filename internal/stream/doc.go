// Package stream maintains the live WebSocket connection to the CLOB
// market feed: connection lifecycle with reconnect backoff, subscription
// synchronization against the active-position token set, and dispatch of
// inbound frames into the markets_ws table.
package stream
