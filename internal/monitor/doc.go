// Package monitor holds the periodic watchers built on top of the store:
// the TP/SL monitor that triggers or cancels user price rules, and the
// redeemable detector that classifies on-chain positions against resolved
// markets.
package monitor
