package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/engine"
	"github.com/roach88/lotbridge/internal/ledger"
	"github.com/roach88/lotbridge/internal/node"
	"github.com/roach88/lotbridge/internal/store"
)

// openStore opens the database at path. Unless create is set, a missing
// file is a command error rather than a fresh empty database.
func openStore(ctx context.Context, path string, create bool) (*store.Store, error) {
	if !create && path != ":memory:" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s (run lotbridge init)", path))
		}
	}
	st, err := store.OpenContext(ctx, path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// restoreError maps a replay failure to an exit code. A log that does not
// reproduce is a failure of the data, anything else is a command error.
func restoreError(path string, err error) error {
	switch {
	case errors.Is(err, store.ErrNoGenesis):
		return NewExitError(ExitCommandError, fmt.Sprintf("database %s is not initialized (run lotbridge init)", path))
	case errors.Is(err, store.ErrGenesisMismatch):
		return WrapExitError(ExitCommandError, "database already holds a different genesis", err)
	case engine.IsReplayDivergence(err),
		engine.HasCode(err, engine.ErrCodeGenesisMismatch),
		engine.HasCode(err, engine.ErrCodeInvariantViolated):
		return WrapExitError(ExitFailure, "stored log does not replay", err)
	}
	return WrapExitError(ExitCommandError, "failed to restore ledger", err)
}

// session is an engine restored from the database and running until Close.
type session struct {
	store  *store.Store
	engine *engine.Engine
	cancel context.CancelFunc
	done   chan error
}

// openSession replays the configured database and starts its engine.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	st, err := openStore(ctx, opts.Config.DB, false)
	if err != nil {
		return nil, err
	}

	eng, result, err := engine.Restore(ctx, st,
		engine.WithLogger(opts.Logger),
		engine.WithInvariantChecks(opts.Config.InvariantChecks),
	)
	if err != nil {
		st.Close()
		return nil, restoreError(opts.Config.DB, err)
	}
	opts.Logger.Debug("ledger restored",
		"db", opts.Config.DB,
		"transactions", result.Transactions,
		"last_seq", result.LastSeq,
	)

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{store: st, engine: eng, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- eng.Run(runCtx) }()
	return s, nil
}

// Node returns the live node.
func (s *session) Node() *node.Node {
	return s.engine.Node()
}

// Close stops the engine, waits for its loop and closes the store.
func (s *session) Close() error {
	s.engine.Stop()
	runErr := <-s.done
	s.cancel()
	if err := s.store.Close(); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// contracts lists the contract names in display order.
var contracts = []string{node.ContractLegacy, node.ContractBridge, node.ContractLot}

// resolveToken accepts a contract name or a token symbol and returns the
// contract name used in method refs.
func resolveToken(n *node.Node, name string) (string, node.Token, error) {
	for _, c := range contracts {
		t, _ := n.Token(c)
		if name == c || name == t.Metadata().Symbol {
			return c, t, nil
		}
	}
	return "", nil, fmt.Errorf("unknown token %q (want legacy, bridge, lot or a symbol)", name)
}

// resolveAccount accepts a 0x address or a contract name.
func resolveAccount(n *node.Node, ref string) (common.Address, error) {
	for _, c := range contracts {
		if ref == c {
			t, _ := n.Token(c)
			return t.Address(), nil
		}
	}
	if !common.IsHexAddress(ref) {
		return common.Address{}, fmt.Errorf("invalid account %q: want a 0x address or legacy, bridge, lot", ref)
	}
	return common.HexToAddress(ref), nil
}

// parseAmount reads a display amount in t's decimals, or base units when
// raw is set.
func parseAmount(t node.Token, s string, raw bool) (*uint256.Int, error) {
	if raw {
		return ledger.ParseAmount(s)
	}
	return ledger.ParseUnits(s, t.Metadata().Decimals)
}
