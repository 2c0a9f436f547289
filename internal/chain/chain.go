// Package chain is the sequential execution substrate the ledgers run on.
//
// A Chain owns the shared journal, the contract registry and the global
// lock. Execute runs one top-level operation at a time: it takes a journal
// snapshot, runs the operation, and either commits every mutation and event
// or reverts all of them. Cross-ledger calls made inside the operation are
// plain nested Go calls within the same atomic unit.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
)

// PanicError wraps a panic raised inside an operation. The operation is
// reverted like any other failure.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// Chain serializes operations over a set of deployed contracts.
//
// Thread-safety: every exported method is safe for concurrent use. Execute
// holds the lock for the whole operation, so no two operations interleave.
type Chain struct {
	mu        sync.Mutex
	state     *ledger.State
	contracts map[common.Address]any
	nonces    map[common.Address]uint64
	logger    *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger used for commit/revert diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = l
	}
}

// New creates an empty chain.
func New(opts ...Option) *Chain {
	c := &Chain{
		state:     ledger.NewState(),
		contracts: make(map[common.Address]any),
		nonces:    make(map[common.Address]uint64),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the shared journal. Ledgers are constructed against it.
func (c *Chain) State() *ledger.State {
	return c.state
}

// Deploy registers the contract returned by build at the next CREATE
// address of deployer (keccak256(rlp(deployer, nonce))[12:]).
//
// Deploy must be called inside Execute so a failed deployment is reverted.
func (c *Chain) Deploy(deployer common.Address, build func(addr common.Address) (any, error)) (common.Address, error) {
	nonce := c.nonces[deployer]
	addr := crypto.CreateAddress(deployer, nonce)

	contract, err := build(addr)
	if err != nil {
		return common.Address{}, err
	}

	c.nonces[deployer] = nonce + 1
	c.contracts[addr] = contract
	c.state.Emit(ir.Event{
		Emitter: addr.Hex(),
		Name:    "Deployed",
		Fields: ir.NewIRObjectFromPairs(
			ir.O("deployer", ledger.AddressValue(deployer)),
			ir.O("nonce", ir.IRInt(int64(nonce))),
		),
	})
	return addr, nil
}

// ContractAt returns the contract deployed at addr.
// Implements legacy.Registry.
func (c *Chain) ContractAt(addr common.Address) (any, bool) {
	contract, ok := c.contracts[addr]
	return contract, ok
}

// Execute runs fn as one atomic top-level operation.
//
// On success the journal is committed and the events fn emitted are
// returned in order. If fn returns an error or panics, every mutation and
// event since the snapshot is reverted and the error is returned.
// A context that is already done aborts before fn runs.
func (c *Chain) Execute(ctx context.Context, fn func() error) (logs []ir.Event, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := c.state.Snapshot()
	// Deployment nonces are not journaled by ledgers; restore them by hand.
	nonces := make(map[common.Address]uint64, len(c.nonces))
	for k, v := range c.nonces {
		nonces[k] = v
	}
	contracts := len(c.contracts)

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		if err != nil {
			c.state.RevertToSnapshot(snap)
			if len(c.contracts) != contracts {
				c.restoreContracts(nonces)
			}
			c.nonces = nonces
			logs = nil
			c.logger.Debug("operation reverted", "error", err)
			return
		}
		logs = c.state.Commit()
		c.logger.Debug("operation committed", "events", len(logs))
	}()

	return nil, fn()
}

// View runs fn under the chain lock without journaling. fn must not mutate
// ledger state.
func (c *Chain) View(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// restoreContracts drops contracts registered after the given nonces were
// captured.
func (c *Chain) restoreContracts(nonces map[common.Address]uint64) {
	for deployer, next := range c.nonces {
		for n := nonces[deployer]; n < next; n++ {
			delete(c.contracts, crypto.CreateAddress(deployer, n))
		}
	}
}
