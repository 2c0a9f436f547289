// Package engine runs the single-writer transaction loop in front of a
// node and its store.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Submitted calls are queued FIFO and processed by one goroutine. This
// ensures:
//   - One global order of operations (the seq column)
//   - Reproducible receipts on replay
//   - No interleaving of ledger operations, even with concurrent submitters
//
// Processing Flow:
//  1. Submit enqueues a call and waits for its receipt
//  2. Run dequeues one call at a time
//  3. The call is stamped with seq and a content-addressed id
//  4. The node applies it atomically (commit or full revert)
//  5. Transaction, receipt and events are written in one SQLite transaction
//
// Reverted transactions are persisted like committed ones; they carry the
// revert code and reason and no events.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every transaction is stamped with a monotonic seq from Clock.Next().
// NEVER use wall-clock timestamps for ordering.
//
// Replay:
// Replay rebuilds a node from the stored genesis and re-applies every stored
// transaction in seq order. Receipt ids are content-addressed, so any
// divergence in behavior shows up as a different receipt id.
package engine
