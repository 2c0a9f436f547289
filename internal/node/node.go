// Package node deploys the legacy token, the bridge ledger and the lot
// ledger onto one chain and dispatches transactions to them.
//
// Deployment order is fixed: legacy token (nonce 0), bridge bound to the
// legacy token (nonce 1), lot ledger bound to the bridge (nonce 2). The
// bindings are immutable for the life of the node.
package node

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/bridge"
	"github.com/roach88/lotbridge/internal/chain"
	"github.com/roach88/lotbridge/internal/genesis"
	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
	"github.com/roach88/lotbridge/internal/legacy"
	"github.com/roach88/lotbridge/internal/lot"
)

// Node is a deployed set of ledgers.
type Node struct {
	chain   *chain.Chain
	genesis genesis.Genesis
	logger  *slog.Logger

	Legacy *legacy.Token
	Bridge *bridge.Ledger
	Lot    *lot.Ledger
}

// Deploy creates a chain and deploys the three ledgers described by g.
// The events emitted by deployment (Deployed, genesis Transfer mints) are
// returned for callers that want to record them.
func Deploy(ctx context.Context, g genesis.Genesis, logger *slog.Logger) (*Node, []ir.Event, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := chain.New(chain.WithLogger(logger))
	n := &Node{chain: c, genesis: g, logger: logger}

	logs, err := c.Execute(ctx, func() error {
		state := c.State()

		legacyAddr, err := c.Deploy(g.Deployer, func(addr common.Address) (any, error) {
			n.Legacy = legacy.New(state, addr, g.Legacy, c)
			return n.Legacy, nil
		})
		if err != nil {
			return fmt.Errorf("deploy legacy token: %w", err)
		}
		for _, a := range g.Allocations {
			if err := n.Legacy.Mint(a.Account, a.Amount); err != nil {
				return fmt.Errorf("allocate %s: %w", a.Account.Hex(), err)
			}
		}

		_, err = c.Deploy(g.Deployer, func(addr common.Address) (any, error) {
			n.Bridge = bridge.New(state, addr, g.Bridge, n.Legacy)
			return n.Bridge, nil
		})
		if err != nil {
			return fmt.Errorf("deploy bridge: %w", err)
		}

		_, err = c.Deploy(g.Deployer, func(addr common.Address) (any, error) {
			n.Lot = lot.New(state, addr, g.Lot, n.Bridge)
			return n.Lot, nil
		})
		if err != nil {
			return fmt.Errorf("deploy lot ledger: %w", err)
		}

		logger.Info("ledgers deployed",
			"legacy", legacyAddr.Hex(),
			"bridge", n.Bridge.Address().Hex(),
			"lot", n.Lot.Address().Hex(),
		)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return n, logs, nil
}

// Genesis returns the manifest the node was deployed from.
func (n *Node) Genesis() genesis.Genesis {
	return n.genesis
}

// Token is a read-only view over one of the three ledgers.
type Token interface {
	Address() common.Address
	Metadata() ledger.Metadata
	BalanceOf(account common.Address) *uint256.Int
	TotalSupply() *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	Holders() []common.Address
}

// Token returns the ledger registered under name ("legacy", "bridge", "lot")
// or under its symbol, case-sensitively.
func (n *Node) Token(name string) (Token, bool) {
	switch name {
	case ContractLegacy, n.Legacy.Metadata().Symbol:
		return n.Legacy, true
	case ContractBridge, n.Bridge.Metadata().Symbol:
		return n.Bridge, true
	case ContractLot, n.Lot.Metadata().Symbol:
		return n.Lot, true
	}
	return nil, false
}

// View runs fn under the chain lock so reads see a consistent state between
// operations.
func (n *Node) View(fn func()) {
	n.chain.View(fn)
}
