// Package gamma implements the HTTP fetcher for the upstream REST APIs.
//
// Two bases are consumed:
//   - the Gamma API for events and markets (paginated, bulk-by-id, single)
//   - the CLOB API for bulk token prices
//
// Pagination and bulk endpoints sleep between pages/chunks to stay under the
// upstream rate limits. A 429 pauses for two seconds and skips the current
// chunk. Failed requests count against a consecutive-error budget of five;
// exhausting it aborts the caller's cycle via ErrBudgetExhausted.
package gamma
