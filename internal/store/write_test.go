package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotbridge/internal/ir"
)

func TestWriteGenesis(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	manifest := ir.IRObject{"deployer": ir.IRString("0x01")}
	require.NoError(t, s.WriteGenesis(ctx, manifest, "hash-1"))
	// Same genesis again is a no-op.
	require.NoError(t, s.WriteGenesis(ctx, manifest, "hash-1"))

	err := s.WriteGenesis(ctx, manifest, "hash-2")
	assert.ErrorIs(t, err, ErrGenesisMismatch)

	got, hash, err := s.ReadGenesis(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", hash)
	assert.Equal(t, manifest, got)
}

func TestReadGenesis_Empty(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.ReadGenesis(context.Background())
	assert.ErrorIs(t, err, ErrNoGenesis)
}

func TestWriteApplied(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx := createTestTransaction("tx-1", "0xabc", "bridge.redeem", 1)
	r := createTestReceipt("rc-1", "tx-1", 1, testEvent("0xb", "Transfer"), testEvent("0xb", "Redeemed"))
	require.NoError(t, s.WriteApplied(ctx, tx, r))

	got, err := s.ReadEntry(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, tx, got.Transaction)
	assert.Equal(t, r, got.Receipt)
}

func TestWriteApplied_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx := createTestTransaction("tx-1", "0xabc", "bridge.redeem", 1)
	r := createTestReceipt("rc-1", "tx-1", 1, testEvent("0xb", "Redeemed"))
	require.NoError(t, s.WriteApplied(ctx, tx, r))
	require.NoError(t, s.WriteApplied(ctx, tx, r))

	entries, err := s.ReadLog(ctx, LogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Receipt.Events, 1)
}

func TestWriteApplied_SeqConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteApplied(ctx,
		createTestTransaction("tx-1", "0xabc", "bridge.redeem", 1),
		createTestReceipt("rc-1", "tx-1", 1)))

	err := s.WriteApplied(ctx,
		createTestTransaction("tx-2", "0xabc", "bridge.redeem", 1),
		createTestReceipt("rc-2", "tx-2", 1))
	require.Error(t, err)

	// Nothing of the failed write persisted.
	_, err = s.ReadTransaction(ctx, "tx-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWriteApplied_MismatchedReceipt(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteApplied(context.Background(),
		createTestTransaction("tx-1", "0xabc", "bridge.redeem", 1),
		createTestReceipt("rc-1", "tx-9", 1))
	assert.Error(t, err)
}

func TestWriteApplied_Reverted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx := createTestTransaction("tx-1", "0xabc", "bridge.redeem", 1)
	r := ir.Receipt{
		ID:     "rc-1",
		TxID:   "tx-1",
		Status: ir.StatusReverted,
		Code:   "ZeroAmount",
		Reason: "Amount=0",
		Result: ir.IRObject{},
		Events: []ir.Event{},
		Seq:    1,
	}
	require.NoError(t, s.WriteApplied(ctx, tx, r))

	got, err := s.ReadReceipt(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, r, got)
	assert.False(t, got.Committed())
}

func TestWriteApplied_LargeAmountsSurvive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	max := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	tx := createTestTransaction("tx-1", "0xabc", "bridge.redeem", 1)
	tx.Args = ir.IRObject{"amount": ir.IRString(max), "n": ir.IRInt(1 << 62)}
	require.NoError(t, s.WriteApplied(ctx, tx, createTestReceipt("rc-1", "tx-1", 1)))

	got, err := s.ReadTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, tx.Args, got.Args)
}
