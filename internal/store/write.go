package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lotbridge/internal/ir"
)

const (
	metaGenesisManifest = "genesis_manifest"
	metaGenesisHash     = "genesis_hash"
)

// ErrGenesisMismatch is returned when a store already holds a different
// genesis than the one being written.
var ErrGenesisMismatch = errors.New("store was initialized with a different genesis")

// WriteGenesis records the genesis manifest and its hash. Writing the same
// genesis again is a no-op; writing a different one fails with
// ErrGenesisMismatch.
func (s *Store) WriteGenesis(ctx context.Context, manifest ir.IRObject, hash string) error {
	manifestJSON, err := marshalObject("genesis", manifest)
	if err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write genesis: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaGenesisHash).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("write genesis: %w", err)
	case existing != hash:
		return fmt.Errorf("%w: have %s, got %s", ErrGenesisMismatch, existing, hash)
	default:
		return nil
	}

	for key, value := range map[string]string{
		metaGenesisManifest: manifestJSON,
		metaGenesisHash:     hash,
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, value); err != nil {
			return fmt.Errorf("write genesis %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write genesis: commit: %w", err)
	}
	return nil
}

// WriteApplied records a transaction, its receipt and its events in one SQL
// transaction. Either all of them persist or none do.
//
// Uses ON CONFLICT DO NOTHING for idempotency: re-writing the same
// transaction is silently ignored. A different transaction at an already
// used seq violates the UNIQUE(seq) constraint and fails.
func (s *Store) WriteApplied(ctx context.Context, t ir.Transaction, r ir.Receipt) error {
	if r.TxID != t.ID {
		return fmt.Errorf("write applied: receipt %s belongs to %s, not %s", r.ID, r.TxID, t.ID)
	}

	argsJSON, err := marshalObject("args", t.Args)
	if err != nil {
		return fmt.Errorf("write applied: %w", err)
	}
	resultJSON, err := marshalObject("result", r.Result)
	if err != nil {
		return fmt.Errorf("write applied: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write applied: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, request_id, sender, method, args, seq, genesis_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		t.ID,
		t.RequestID,
		t.From,
		string(t.Method),
		argsJSON,
		t.Seq,
		t.GenesisHash,
		t.EngineVersion,
		t.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write transaction %s: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already recorded together with its receipt.
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO receipts
		(id, tx_id, status, code, reason, result, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		r.ID,
		r.TxID,
		string(r.Status),
		r.Code,
		r.Reason,
		resultJSON,
		r.Seq,
	); err != nil {
		return fmt.Errorf("write receipt %s: %w", r.ID, err)
	}

	for _, ev := range r.Events {
		fieldsJSON, err := marshalObject("event fields", ev.Fields)
		if err != nil {
			return fmt.Errorf("write applied: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events
			(tx_id, idx, emitter, name, fields, seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(tx_id, idx) DO NOTHING
		`,
			t.ID,
			ev.Index,
			ev.Emitter,
			ev.Name,
			fieldsJSON,
			t.Seq,
		); err != nil {
			return fmt.Errorf("write event %s/%d: %w", t.ID, ev.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write applied: commit: %w", err)
	}
	return nil
}
