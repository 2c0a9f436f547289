package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/node"
)

func TestReplay_RebuildsState(t *testing.T) {
	f := newFixture(t)

	f.mint(t, alice, "300000000")
	f.submit(t, alice, node.MethodBridgeApprove, "spender", f.engine.Node().Lot.Address().Hex(), "amount", "200000000")
	f.submit(t, alice, node.MethodLotDeposit, "amount", "200000000")
	f.submit(t, alice, node.MethodLotTransfer, "to", bob.Hex(), "amount", "1")
	f.submit(t, bob, node.MethodLotRedeem, "lots", "1")
	f.submit(t, bob, node.MethodLotRedeem, "lots", "1") // reverts

	n, result, err := Replay(context.Background(), f.store, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 6, result.Transactions)
	assert.Equal(t, 5, result.Committed)
	assert.Equal(t, 1, result.Reverted)
	assert.Equal(t, int64(6), result.LastSeq)

	live := f.engine.Node()
	for _, token := range []string{node.ContractLegacy, node.ContractBridge, node.ContractLot} {
		for _, who := range []string{alice.Hex(), bob.Hex()} {
			addr := alice
			if who == bob.Hex() {
				addr = bob
			}
			assert.Equal(t, balance(live, token, addr), balance(n, token, addr), "%s balance of %s", token, who)
		}
	}
	assert.Equal(t, "100000000", balance(n, node.ContractBridge, bob))
}

func TestRestore_ContinuesSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lotbridge.db")
	ctx := context.Background()

	s := openStore(t, path)
	e, err := Initialize(ctx, s, testGenesis(t, "1000"), WithLogger(quietLogger()))
	require.NoError(t, err)
	startEngine(t, e)

	for i := 0; i < 3; i++ {
		_, err := e.Submit(ctx, Call{
			From:   alice.Hex(),
			Method: node.MethodLegacyTransfer,
			Args:   ir.IRObject{"to": ir.IRString(bob.Hex()), "amount": ir.IRString("10")},
		})
		require.NoError(t, err)
	}
	e.Stop()

	restored, result, err := Restore(ctx, s, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.LastSeq)
	assert.Equal(t, "30", balance(restored.Node(), node.ContractLegacy, bob))
	startEngine(t, restored)

	entry, err := restored.Submit(ctx, Call{
		From:   bob.Hex(),
		Method: node.MethodLegacyTransfer,
		Args:   ir.IRObject{"to": ir.IRString(alice.Hex()), "amount": ir.IRString("5")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Transaction.Seq)
}

func TestReplay_DetectsTamperedReceipt(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "x.db"))
	ctx := context.Background()
	g := testGenesis(t, "1000")
	require.NoError(t, s.WriteGenesis(ctx, g.Manifest(), g.Hash()))

	tx := ir.Transaction{
		RequestID:     "req-1",
		From:          alice.Hex(),
		Method:        node.MethodLegacyTransfer,
		Args:          ir.IRObject{"to": ir.IRString(bob.Hex()), "amount": ir.IRString("10")},
		Seq:           1,
		GenesisHash:   g.Hash(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	tx.ID = ir.MustTransactionID(tx.RequestID, tx.From, tx.Method, tx.Args, tx.Seq)

	// The stored receipt claims a revert the ledger would not produce.
	forged := ir.Receipt{
		TxID:   tx.ID,
		Status: ir.StatusReverted,
		Code:   "InsufficientBalance",
		Reason: "ERC20: transfer amount exceeds balance",
		Result: ir.IRObject{},
		Events: []ir.Event{},
		Seq:    1,
	}
	id, err := ir.ReceiptID(forged.TxID, forged.Status, forged.Code, forged.Result, forged.Events, forged.Seq)
	require.NoError(t, err)
	forged.ID = id
	require.NoError(t, s.WriteApplied(ctx, tx, forged))

	_, _, err = Replay(ctx, s, quietLogger())
	require.Error(t, err)
	assert.True(t, IsReplayDivergence(err))
}

func TestReplay_DetectsTamperedTransactionID(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "x.db"))
	ctx := context.Background()
	g := testGenesis(t, "1000")
	require.NoError(t, s.WriteGenesis(ctx, g.Manifest(), g.Hash()))

	tx := ir.Transaction{
		ID:        "not-a-content-hash",
		RequestID: "req-1",
		From:      alice.Hex(),
		Method:    node.MethodLegacyTransfer,
		Args:      ir.IRObject{"to": ir.IRString(bob.Hex()), "amount": ir.IRString("10")},
		Seq:       1,
	}
	receipt := ir.Receipt{ID: "r", TxID: tx.ID, Status: ir.StatusCommitted, Result: ir.IRObject{}, Events: []ir.Event{}, Seq: 1}
	require.NoError(t, s.WriteApplied(ctx, tx, receipt))

	_, _, err := Replay(ctx, s, quietLogger())
	assert.True(t, IsReplayDivergence(err))
}

func TestReplay_EmptyStore(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "x.db"))
	_, _, err := Replay(context.Background(), s, quietLogger())
	require.Error(t, err)
}
