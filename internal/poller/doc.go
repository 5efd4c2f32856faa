// Package poller drives the ingestion cycle: a full events sweep, tiered
// standalone refresh, closed-market lifecycle sweeps, and PROPOSED
// re-evaluation, every poll interval.
package poller
