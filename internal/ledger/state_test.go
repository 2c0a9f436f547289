package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_RevertRestoresBalancesAndLogs(t *testing.T) {
	s, f := newTestFungible(t)

	snap := s.Snapshot()
	require.NoError(t, f.Transfer(alice, bob, uint256.NewInt(10)))
	_, err := f.Approve(alice, bob, uint256.NewInt(5))
	require.NoError(t, err)
	require.NoError(t, f.Mint(bob, uint256.NewInt(1)))
	require.Len(t, s.Logs(), 3)

	s.RevertToSnapshot(snap)

	assert.Equal(t, uint64(1000), f.BalanceOf(alice).Uint64())
	assert.True(t, f.BalanceOf(bob).IsZero())
	assert.True(t, f.Allowance(alice, bob).IsZero())
	assert.Equal(t, uint64(1000), f.TotalSupply().Uint64())
	assert.Empty(t, s.Logs())
	assert.Equal(t, []common.Address{alice}, f.Holders())
}

func TestState_NestedSnapshots(t *testing.T) {
	s, f := newTestFungible(t)

	outer := s.Snapshot()
	require.NoError(t, f.Transfer(alice, bob, uint256.NewInt(10)))
	inner := s.Snapshot()
	require.NoError(t, f.Transfer(alice, bob, uint256.NewInt(20)))

	s.RevertToSnapshot(inner)
	assert.Equal(t, uint64(10), f.BalanceOf(bob).Uint64())
	assert.Len(t, s.Logs(), 1)

	s.RevertToSnapshot(outer)
	assert.True(t, f.BalanceOf(bob).IsZero())
}

func TestState_CommitAssignsIndexesAndClears(t *testing.T) {
	s, f := newTestFungible(t)

	require.NoError(t, f.Transfer(alice, bob, uint256.NewInt(1)))
	require.NoError(t, f.Transfer(alice, bob, uint256.NewInt(2)))

	logs := s.Commit()
	require.Len(t, logs, 2)
	assert.Equal(t, int64(0), logs[0].Index)
	assert.Equal(t, int64(1), logs[1].Index)
	assert.Equal(t, 0, s.Snapshot())
	assert.Empty(t, s.Logs())

	// Committed state survives a revert to the new base.
	s.RevertToSnapshot(0)
	assert.Equal(t, uint64(3), f.BalanceOf(bob).Uint64())
}
