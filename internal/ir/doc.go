// Package ir provides the canonical record types shared by every layer of
// lotbridge: transactions submitted to the ledgers, the receipts they
// produce, and the events they emit.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps the record format the foundational layer with no circular
// dependencies.
//
// Key constraints:
//   - NO float types anywhere. Token amounts are uint256 and travel as
//     decimal strings, small counters as int64.
//   - All JSON tags use snake_case.
//   - Logical clocks (seq) only, never wall-clock timestamps.
//   - Content-addressed ids are SHA-256 over RFC 8785 canonical JSON with
//     domain separation (see hash.go).
package ir
