// Package normalize converts raw Gamma API payloads into canonical Market
// rows: it converges JSON-in-string list fields, clamps numeric stats, and
// classifies lifecycle state.
package normalize
