package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/lotbridge/internal/genesis"
	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/node"
	"github.com/roach88/lotbridge/internal/store"
)

// ReplayResult summarizes a replay.
type ReplayResult struct {
	GenesisHash  string `json:"genesis_hash"`
	Transactions int    `json:"transactions"`
	Committed    int    `json:"committed"`
	Reverted     int    `json:"reverted"`
	LastSeq      int64  `json:"last_seq"`
}

// Replay rebuilds a node from the store: it deploys the stored genesis and
// re-applies every stored transaction in seq order.
//
// Normal execution and replay follow the identical path (node.Apply), and
// receipt ids are content-addressed over status, code, result and events,
// so any behavioral divergence surfaces as a receipt id mismatch. Replay
// fails on the first mismatch and on any invariant violation at the end.
func Replay(ctx context.Context, s *store.Store, logger *slog.Logger) (*node.Node, ReplayResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	manifest, hash, err := s.ReadGenesis(ctx)
	if err != nil {
		return nil, ReplayResult{}, err
	}
	g, err := genesis.FromManifest(manifest)
	if err != nil {
		return nil, ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	if g.Hash() != hash {
		return nil, ReplayResult{}, &RuntimeError{
			Code:    ErrCodeGenesisMismatch,
			Message: fmt.Sprintf("stored genesis hashes to %s, recorded %s", g.Hash(), hash),
		}
	}

	n, _, err := node.Deploy(ctx, g, logger)
	if err != nil {
		return nil, ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	entries, err := s.ReadLog(ctx, store.LogFilter{})
	if err != nil {
		return nil, ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	result := ReplayResult{GenesisHash: hash}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, result, err
		}
		tx := e.Transaction

		id, err := ir.TransactionID(tx.RequestID, tx.From, tx.Method, tx.Args, tx.Seq)
		if err != nil {
			return nil, result, fmt.Errorf("replay seq %d: %w", tx.Seq, err)
		}
		if id != tx.ID {
			return nil, result, &RuntimeError{
				Code:    ErrCodeReplayDiverged,
				Message: fmt.Sprintf("stored transaction id does not match its content (recomputed %s)", id),
				TxID:    tx.ID,
				Seq:     tx.Seq,
			}
		}

		receipt, err := n.Apply(ctx, tx)
		if err != nil {
			return nil, result, fmt.Errorf("replay seq %d: %w", tx.Seq, err)
		}
		if receipt.ID != e.Receipt.ID {
			return nil, result, &RuntimeError{
				Code: ErrCodeReplayDiverged,
				Message: fmt.Sprintf("receipt %s (%s %s) differs from stored %s (%s %s)",
					receipt.ID, receipt.Status, receipt.Code, e.Receipt.ID, e.Receipt.Status, e.Receipt.Code),
				TxID: tx.ID,
				Seq:  tx.Seq,
			}
		}

		result.Transactions++
		if receipt.Committed() {
			result.Committed++
		} else {
			result.Reverted++
		}
		result.LastSeq = tx.Seq
	}

	if err := n.CheckInvariants(); err != nil {
		return nil, result, &RuntimeError{Code: ErrCodeInvariantViolated, Message: "after replay", Err: err}
	}

	logger.Info("replay complete",
		"transactions", result.Transactions,
		"committed", result.Committed,
		"reverted", result.Reverted,
		"last_seq", result.LastSeq,
	)
	return n, result, nil
}

// Restore replays the store and returns an engine positioned after the last
// stored transaction.
func Restore(ctx context.Context, s *store.Store, opts ...Option) (*Engine, ReplayResult, error) {
	base := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(base)
	}

	n, result, err := Replay(ctx, s, base.logger)
	if err != nil {
		return nil, result, err
	}
	e, err := New(ctx, s, n, opts...)
	if err != nil {
		return nil, result, err
	}
	return e, result, nil
}

// Initialize returns an engine for g. An empty store records g over a
// freshly deployed node; a store that already holds g is replayed.
func Initialize(ctx context.Context, s *store.Store, g genesis.Genesis, opts ...Option) (*Engine, error) {
	base := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(base)
	}

	_, hash, err := s.ReadGenesis(ctx)
	switch {
	case err == nil:
		if hash != g.Hash() {
			return nil, &RuntimeError{
				Code:    ErrCodeGenesisMismatch,
				Message: fmt.Sprintf("store holds genesis %s, want %s", hash, g.Hash()),
				Err:     store.ErrGenesisMismatch,
			}
		}
		e, _, err := Restore(ctx, s, opts...)
		return e, err
	case errors.Is(err, store.ErrNoGenesis):
	default:
		return nil, err
	}

	n, _, err := node.Deploy(ctx, g, base.logger)
	if err != nil {
		return nil, err
	}
	return New(ctx, s, n, opts...)
}
