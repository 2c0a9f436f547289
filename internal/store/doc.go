// Package store provides SQLite-backed durable storage for the lotbridge
// transaction log.
//
// The store is an append-only log with:
//   - Meta: the genesis manifest and its hash, written once
//   - Transactions: every submitted transaction, committed or reverted
//   - Receipts: exactly one per transaction
//   - Events: the logs of committed transactions, in emission order
//
// Ordering uses the seq column (logical clock), never timestamps. Every
// multi-row query orders by seq ASC then id COLLATE BINARY ASC so reads are
// identical across replays.
//
// Writes are idempotent: re-writing a record with the same content-addressed
// id is a no-op (ON CONFLICT DO NOTHING). A transaction, its receipt and its
// events are written in a single SQL transaction.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
