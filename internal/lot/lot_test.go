package lot

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotbridge/internal/bridge"
	"github.com/roach88/lotbridge/internal/chain"
	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
	"github.com/roach88/lotbridge/internal/legacy"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000D3910")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

type fixture struct {
	chain  *chain.Chain
	legacy *legacy.Token
	bridge *bridge.Ledger
	lot    *Ledger
}

func newFixture(t *testing.T, supply uint64) *fixture {
	t.Helper()
	f := &fixture{chain: chain.New()}
	_, err := f.chain.Execute(context.Background(), func() error {
		s := f.chain.State()
		if _, err := f.chain.Deploy(deployer, func(addr common.Address) (any, error) {
			f.legacy = legacy.New(s, addr, ledger.Metadata{Name: "Saturn", Symbol: "SATURN", Decimals: 4}, f.chain)
			return f.legacy, nil
		}); err != nil {
			return err
		}
		if _, err := f.chain.Deploy(deployer, func(addr common.Address) (any, error) {
			f.bridge = bridge.New(s, addr, ledger.Metadata{Name: "Saturn ERC20", Symbol: "STRN", Decimals: 4}, f.legacy)
			return f.bridge, nil
		}); err != nil {
			return err
		}
		if _, err := f.chain.Deploy(deployer, func(addr common.Address) (any, error) {
			f.lot = New(s, addr, ledger.Metadata{Name: "STRN 10K Lot", Symbol: "STRN10K", Decimals: 4}, f.bridge)
			return f.lot, nil
		}); err != nil {
			return err
		}
		return f.legacy.Mint(alice, uint256.NewInt(supply))
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) exec(fn func() error) ([]ir.Event, error) {
	return f.chain.Execute(context.Background(), fn)
}

func (f *fixture) mintBridge(t *testing.T, holder common.Address, amount uint64) {
	t.Helper()
	_, err := f.exec(func() error {
		return f.legacy.TransferAndCall(holder, f.bridge.Address(), uint256.NewInt(amount), bridge.MintTag[:])
	})
	require.NoError(t, err)
}

func (f *fixture) approve(t *testing.T, holder common.Address, amount uint64) {
	t.Helper()
	_, err := f.exec(func() error {
		_, err := f.bridge.Approve(holder, f.lot.Address(), uint256.NewInt(amount))
		return err
	})
	require.NoError(t, err)
}

func (f *fixture) deposit(holder common.Address, amount uint64) (*uint256.Int, []ir.Event, error) {
	var lots *uint256.Int
	logs, err := f.exec(func() error {
		var err error
		lots, err = f.lot.Deposit(holder, uint256.NewInt(amount))
		return err
	})
	return lots, logs, err
}

func (f *fixture) redeem(holder common.Address, lots uint64) (*uint256.Int, []ir.Event, error) {
	var released *uint256.Int
	logs, err := f.exec(func() error {
		var err error
		released, err = f.lot.Redeem(holder, uint256.NewInt(lots))
		return err
	})
	return released, logs, err
}

func (f *fixture) assertConserved(t *testing.T) {
	t.Helper()
	assert.True(t, f.bridge.SumBalances().Eq(f.bridge.TotalSupply()))
	assert.True(t, f.bridge.Custody().Eq(f.bridge.TotalSupply()))
	assert.True(t, f.lot.SumBalances().Eq(f.lot.TotalSupply()))
	required := new(uint256.Int).Mul(f.lot.TotalSupply(), f.lot.LotSize())
	assert.True(t, f.lot.Custody().Eq(required),
		"lot custody %s != %s", f.lot.Custody().Dec(), required.Dec())
}

func TestNew_ForcesZeroDecimals(t *testing.T) {
	f := newFixture(t, 0)
	assert.Equal(t, uint8(0), f.lot.Metadata().Decimals)
	assert.Equal(t, f.bridge.Address(), f.lot.Underlying())
}

func TestScenario_TwoLots(t *testing.T) {
	f := newFixture(t, 300_000_000)

	// Holder receives 1,234,567 legacy base units and mints them.
	_, err := f.exec(func() error { return f.legacy.Transfer(alice, bob, uint256.NewInt(1_234_567)) })
	require.NoError(t, err)
	f.mintBridge(t, bob, 1_234_567)
	assert.Equal(t, uint64(1_234_567), f.bridge.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(1_234_567), f.bridge.Custody().Uint64())

	// Alice mints enough for two lots and deposits them.
	f.mintBridge(t, alice, 200_000_000+55)
	f.approve(t, alice, 200_000_000)
	lots, logs, err := f.deposit(alice, 200_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), lots.Uint64())
	assert.Equal(t, uint64(2), f.lot.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(55), f.bridge.BalanceOf(alice).Uint64())
	assert.True(t, f.bridge.Allowance(alice, f.lot.Address()).IsZero())

	last := logs[len(logs)-1]
	assert.Equal(t, EventDeposited, last.Name)
	assert.Equal(t, ledger.AddressValue(alice), last.Fields["account"])
	assert.Equal(t, ir.IRString("2"), last.Fields["lots"])
	assert.Equal(t, ir.IRString("200000000"), last.Fields["amount"])
	f.assertConserved(t)

	released, logs, err := f.redeem(alice, 1)
	require.NoError(t, err)
	assert.Equal(t, LotSize, released.Uint64())
	assert.Equal(t, uint64(1), f.lot.BalanceOf(alice).Uint64())
	assert.Equal(t, LotSize+55, f.bridge.BalanceOf(alice).Uint64())

	last = logs[len(logs)-1]
	assert.Equal(t, EventRedeemed, last.Name)
	assert.Equal(t, ir.IRString("1"), last.Fields["lots"])
	assert.Equal(t, ir.IRString("100000000"), last.Fields["amount"])
	f.assertConserved(t)
}

func TestDeposit_NotMultipleOfLot(t *testing.T) {
	f := newFixture(t, 3*LotSize)
	f.mintBridge(t, alice, 3*LotSize)
	f.approve(t, alice, 3*LotSize)

	for _, amount := range []uint64{0, 1, LotSize - 1, LotSize + 1, 2*LotSize + 9_999} {
		_, logs, err := f.deposit(alice, amount)
		require.ErrorIs(t, err, ledger.ErrNotMultipleOfLot, "amount %d", amount)
		assert.Equal(t, "Not multiple of lot", ledger.ReasonOf(err))
		assert.Nil(t, logs)
	}
	assert.True(t, f.lot.TotalSupply().IsZero())
	assert.Equal(t, 3*LotSize, f.bridge.Allowance(alice, f.lot.Address()).Uint64())
}

func TestDeposit_RequiresAllowance(t *testing.T) {
	f := newFixture(t, LotSize)
	f.mintBridge(t, alice, LotSize)
	f.approve(t, alice, LotSize-1)

	_, _, err := f.deposit(alice, LotSize)
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	assert.Equal(t, LotSize, f.bridge.BalanceOf(alice).Uint64())
	assert.True(t, f.lot.BalanceOf(alice).IsZero())
}

func TestDeposit_InsufficientBalance(t *testing.T) {
	f := newFixture(t, LotSize)
	f.mintBridge(t, alice, LotSize-1)
	f.approve(t, alice, 2*LotSize)

	_, _, err := f.deposit(alice, LotSize)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	// The allowance spend is rolled back with the failed pull.
	assert.Equal(t, 2*LotSize, f.bridge.Allowance(alice, f.lot.Address()).Uint64())
}

func TestDeposit_MintsBeforePull(t *testing.T) {
	f := newFixture(t, 2*LotSize)
	f.mintBridge(t, alice, 2*LotSize)
	f.approve(t, alice, 2*LotSize)

	_, logs, err := f.deposit(alice, 2*LotSize)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, f.lot.Address().Hex(), logs[0].Emitter)
	assert.Equal(t, ledger.AddressValue(common.Address{}), logs[0].Fields["from"])
	assert.Equal(t, ir.IRString("2"), logs[0].Fields["value"])
	assert.Equal(t, f.bridge.Address().Hex(), logs[1].Emitter)
	assert.Equal(t, ledger.AddressValue(f.lot.Address()), logs[1].Fields["to"])
	assert.Equal(t, EventDeposited, logs[2].Name)
	f.assertConserved(t)
}

func TestDeposit_FailedPullRevertsMint(t *testing.T) {
	f := newFixture(t, 2*LotSize)
	f.mintBridge(t, alice, 2*LotSize)
	f.approve(t, alice, LotSize)

	_, logs, err := f.deposit(alice, 2*LotSize)
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	assert.Nil(t, logs)
	assert.True(t, f.lot.BalanceOf(alice).IsZero())
	assert.True(t, f.lot.TotalSupply().IsZero())
	assert.Equal(t, 2*LotSize, f.bridge.BalanceOf(alice).Uint64())
	assert.Equal(t, LotSize, f.bridge.Allowance(alice, f.lot.Address()).Uint64())
	f.assertConserved(t)
}

func TestRedeem_ZeroLots(t *testing.T) {
	f := newFixture(t, LotSize)
	f.mintBridge(t, alice, LotSize)
	f.approve(t, alice, LotSize)
	_, _, err := f.deposit(alice, LotSize)
	require.NoError(t, err)

	_, logs, err := f.redeem(alice, 0)
	require.ErrorIs(t, err, ledger.ErrZeroLots)
	assert.Equal(t, "Lots=0", ledger.ReasonOf(err))
	assert.Nil(t, logs)
	assert.Equal(t, uint64(1), f.lot.BalanceOf(alice).Uint64())
	f.assertConserved(t)
}

func TestRedeem_ExceedsBalance(t *testing.T) {
	f := newFixture(t, LotSize)
	f.mintBridge(t, alice, LotSize)
	f.approve(t, alice, LotSize)
	_, _, err := f.deposit(alice, LotSize)
	require.NoError(t, err)

	_, _, err = f.redeem(alice, 2)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, uint64(1), f.lot.BalanceOf(alice).Uint64())
	f.assertConserved(t)
}

func TestRedeem_Overflow(t *testing.T) {
	f := newFixture(t, 0)

	var released *uint256.Int
	_, err := f.exec(func() error {
		var err error
		released, err = f.lot.Redeem(alice, new(uint256.Int).SetAllOne())
		return err
	})
	require.ErrorIs(t, err, ledger.ErrOverflow)
	assert.Nil(t, released)
}

func TestLotsTransferable(t *testing.T) {
	f := newFixture(t, 2*LotSize)
	f.mintBridge(t, alice, 2*LotSize)
	f.approve(t, alice, 2*LotSize)
	_, _, err := f.deposit(alice, 2*LotSize)
	require.NoError(t, err)

	_, err = f.exec(func() error { return f.lot.Transfer(alice, bob, uint256.NewInt(1)) })
	require.NoError(t, err)

	released, _, err := f.redeem(bob, 1)
	require.NoError(t, err)
	assert.Equal(t, LotSize, released.Uint64())
	assert.Equal(t, LotSize, f.bridge.BalanceOf(bob).Uint64())
	f.assertConserved(t)
}

func TestRoundTrip_RestoresBalances(t *testing.T) {
	const supply = 50 * LotSize
	f := newFixture(t, supply)

	for _, lots := range []uint64{1, 7, 50} {
		amount := lots * LotSize
		f.mintBridge(t, alice, amount)
		f.approve(t, alice, amount)
		_, _, err := f.deposit(alice, amount)
		require.NoError(t, err)
		_, _, err = f.redeem(alice, lots)
		require.NoError(t, err)
		_, err = f.exec(func() error { return f.bridge.Redeem(alice, uint256.NewInt(amount)) })
		require.NoError(t, err)

		assert.Equal(t, supply, f.legacy.BalanceOf(alice).Uint64(), "lots %d", lots)
		assert.True(t, f.bridge.BalanceOf(alice).IsZero())
		assert.True(t, f.lot.BalanceOf(alice).IsZero())
		f.assertConserved(t)
	}
}

// Random mint -> deposit -> redeem lots -> redeem bridge cycles over several
// holders must always return every intermediate balance to zero.
func TestAdversarialCycles(t *testing.T) {
	holders := []common.Address{
		common.HexToAddress("0x1000000000000000000000000000000000000001"),
		common.HexToAddress("0x1000000000000000000000000000000000000002"),
		common.HexToAddress("0x1000000000000000000000000000000000000003"),
	}
	const perHolder = 100 * LotSize
	f := newFixture(t, uint64(len(holders))*perHolder)
	for _, h := range holders {
		_, err := f.exec(func() error { return f.legacy.Transfer(alice, h, uint256.NewInt(perHolder)) })
		require.NoError(t, err)
	}

	rng := rand.New(rand.NewPCG(42, 7))
	for i := 0; i < 25; i++ {
		h := holders[rng.IntN(len(holders))]
		lots := rng.Uint64N(100) + 1
		dust := rng.Uint64N(LotSize)
		if lots == 100 {
			dust = 0
		}
		amount := lots*LotSize + dust

		f.mintBridge(t, h, amount)
		f.approve(t, h, lots*LotSize)

		// A deposit that is not a whole number of lots must fail cleanly.
		if dust > 0 {
			_, _, err := f.deposit(h, amount)
			require.ErrorIs(t, err, ledger.ErrNotMultipleOfLot)
		}

		minted, _, err := f.deposit(h, lots*LotSize)
		require.NoError(t, err)
		require.Equal(t, lots, minted.Uint64())
		f.assertConserved(t)

		released, _, err := f.redeem(h, lots)
		require.NoError(t, err)
		require.Equal(t, lots*LotSize, released.Uint64())

		_, err = f.exec(func() error { return f.bridge.Redeem(h, uint256.NewInt(amount)) })
		require.NoError(t, err)

		require.True(t, f.bridge.BalanceOf(h).IsZero(), "cycle %d", i)
		require.True(t, f.lot.BalanceOf(h).IsZero(), "cycle %d", i)
		require.Equal(t, perHolder, f.legacy.BalanceOf(h).Uint64(), "cycle %d", i)
		f.assertConserved(t)
	}

	assert.True(t, f.bridge.TotalSupply().IsZero())
	assert.True(t, f.lot.TotalSupply().IsZero())
	assert.True(t, f.bridge.Custody().IsZero())
	assert.True(t, f.lot.Custody().IsZero())
}

func TestDirectBridgeTransferToLotIsSurplus(t *testing.T) {
	f := newFixture(t, LotSize)
	f.mintBridge(t, alice, 10)

	_, err := f.exec(func() error { return f.bridge.Transfer(alice, f.lot.Address(), uint256.NewInt(10)) })
	require.NoError(t, err)

	assert.Equal(t, uint64(10), f.lot.Custody().Uint64())
	assert.True(t, f.lot.TotalSupply().IsZero())
}
