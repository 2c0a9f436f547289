package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	bridge *Ledger
}

func newFixture(t *testing.T) *fixture {
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
			f.bridge = New(s, addr, ledger.Metadata{Name: "Saturn ERC20", Symbol: "STRN", Decimals: 4}, f.legacy)
			return f.bridge, nil
		}); err != nil {
			return err
		}
		return f.legacy.Mint(alice, uint256.NewInt(10_000_000))
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) exec(fn func() error) ([]ir.Event, error) {
	return f.chain.Execute(context.Background(), fn)
}

func (f *fixture) mint(t *testing.T, from common.Address, amount uint64) []ir.Event {
	t.Helper()
	logs, err := f.exec(func() error {
		return f.legacy.TransferAndCall(from, f.bridge.Address(), uint256.NewInt(amount), MintTag[:])
	})
	require.NoError(t, err)
	return logs
}

func (f *fixture) assertBacked(t *testing.T) {
	t.Helper()
	assert.True(t, f.bridge.Custody().Eq(f.bridge.TotalSupply()),
		"custody %s != supply %s", f.bridge.Custody().Dec(), f.bridge.TotalSupply().Dec())
	assert.True(t, f.bridge.SumBalances().Eq(f.bridge.TotalSupply()))
}

func TestTaggedDeposit_MintsOneToOne(t *testing.T) {
	f := newFixture(t)

	logs := f.mint(t, alice, 1_234_567)

	assert.Equal(t, uint64(1_234_567), f.bridge.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(10_000_000-1_234_567), f.legacy.BalanceOf(alice).Uint64())
	f.assertBacked(t)

	names := make([]string, len(logs))
	for i, l := range logs {
		names[i] = l.Name
	}
	// legacy Transfer, bridge mint Transfer, Minted
	assert.Equal(t, []string{"Transfer", "Transfer", EventMinted}, names)
	assert.Equal(t, f.bridge.Address().Hex(), logs[2].Emitter)
	assert.Equal(t, ledger.AddressValue(alice), logs[2].Fields["account"])
	assert.Equal(t, ir.IRString("1234567"), logs[2].Fields["amount"])
}

func TestPlainTransferToBridge_Rejected(t *testing.T) {
	f := newFixture(t)

	logs, err := f.exec(func() error {
		return f.legacy.Transfer(alice, f.bridge.Address(), uint256.NewInt(100))
	})
	require.ErrorIs(t, err, ledger.ErrInvalidTag)
	assert.Nil(t, logs)
	assert.Equal(t, uint64(10_000_000), f.legacy.BalanceOf(alice).Uint64())
	assert.True(t, f.bridge.Custody().IsZero())
}

func TestTaggedDeposit_WrongTag(t *testing.T) {
	f := newFixture(t)

	for _, tag := range [][]byte{
		{0x4d, 0x49, 0x4e},
		{0x4d, 0x49, 0x4e, 0x55},
		{0x4d, 0x49, 0x4e, 0x54, 0x00},
		{0x54, 0x4e, 0x49, 0x4d},
	} {
		_, err := f.exec(func() error {
			return f.legacy.TransferAndCall(alice, f.bridge.Address(), uint256.NewInt(100), tag)
		})
		require.ErrorIs(t, err, ledger.ErrInvalidTag, "tag %x", tag)
		assert.Equal(t, ReasonInvalidTag, ledger.ReasonOf(err))
	}
	assert.True(t, f.bridge.TotalSupply().IsZero())
	assert.True(t, f.bridge.Custody().IsZero())
}

func TestDirectCallback_OnlyLegacy(t *testing.T) {
	f := newFixture(t)

	_, err := f.exec(func() error {
		return f.bridge.OnTaggedTransfer(alice, alice, uint256.NewInt(100), MintTag[:])
	})
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, "Only Saturn", ledger.ReasonOf(err))
	assert.True(t, f.bridge.BalanceOf(alice).IsZero())
}

func TestCallerCheckedBeforeTag(t *testing.T) {
	f := newFixture(t)

	_, err := f.exec(func() error {
		return f.bridge.OnTaggedTransfer(bob, alice, uint256.NewInt(1), []byte{0x00})
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestZeroValueTaggedDeposit(t *testing.T) {
	f := newFixture(t)

	f.mint(t, alice, 0)
	assert.True(t, f.bridge.TotalSupply().IsZero())
	f.assertBacked(t)
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 500)

	logs, err := f.exec(func() error { return f.bridge.Redeem(alice, uint256.NewInt(200)) })
	require.NoError(t, err)

	assert.Equal(t, uint64(300), f.bridge.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(10_000_000-300), f.legacy.BalanceOf(alice).Uint64())
	f.assertBacked(t)

	last := logs[len(logs)-1]
	assert.Equal(t, EventRedeemed, last.Name)
	assert.Equal(t, ir.IRString("200"), last.Fields["amount"])
}

func TestRedeem_Zero(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 500)

	logs, err := f.exec(func() error { return f.bridge.Redeem(alice, new(uint256.Int)) })
	require.ErrorIs(t, err, ledger.ErrZeroAmount)
	assert.Equal(t, "Amount=0", ledger.ReasonOf(err))
	assert.Nil(t, logs)
	assert.Equal(t, uint64(500), f.bridge.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(500), f.bridge.TotalSupply().Uint64())
	assert.Equal(t, uint64(10_000_000-500), f.legacy.BalanceOf(alice).Uint64())
	f.assertBacked(t)
}

func TestRedeem_ExceedsBalance(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 500)
	f.mint(t, alice, 500)
	_, err := f.exec(func() error { return f.bridge.Transfer(alice, bob, uint256.NewInt(400)) })
	require.NoError(t, err)

	_, err = f.exec(func() error { return f.bridge.Redeem(bob, uint256.NewInt(401)) })
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, uint64(400), f.bridge.BalanceOf(bob).Uint64())
	assert.True(t, f.legacy.BalanceOf(bob).IsZero())
	f.assertBacked(t)
}

func TestRedeem_TransferredBalanceRedeemsToHolder(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, 1000)
	_, err := f.exec(func() error { return f.bridge.Transfer(alice, bob, uint256.NewInt(1000)) })
	require.NoError(t, err)

	_, err = f.exec(func() error { return f.bridge.Redeem(bob, uint256.NewInt(1000)) })
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), f.legacy.BalanceOf(bob).Uint64())
	assert.True(t, f.bridge.TotalSupply().IsZero())
	f.assertBacked(t)
}

func TestUnderlyingBinding(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, f.legacy.Address(), f.bridge.Underlying())
}

// stubLegacy stands in for the legacy token so a test can control what the
// custody release does.
type stubLegacy struct {
	addr     common.Address
	transfer func(caller, to common.Address, value *uint256.Int) error
}

func (s *stubLegacy) Address() common.Address { return s.addr }

func (s *stubLegacy) BalanceOf(common.Address) *uint256.Int { return new(uint256.Int) }

func (s *stubLegacy) Transfer(caller, to common.Address, value *uint256.Int) error {
	if s.transfer == nil {
		return nil
	}
	return s.transfer(caller, to, value)
}

func newStubbedBridge(t *testing.T, balance uint64) (*chain.Chain, *Ledger, *stubLegacy) {
	t.Helper()
	c := chain.New()
	stub := &stubLegacy{addr: common.HexToAddress("0x0000000000000000000000000000000000005A75")}
	var b *Ledger
	_, err := c.Execute(context.Background(), func() error {
		if _, err := c.Deploy(deployer, func(addr common.Address) (any, error) {
			b = New(c.State(), addr, ledger.Metadata{Name: "Saturn ERC20", Symbol: "STRN", Decimals: 4}, stub)
			return b, nil
		}); err != nil {
			return err
		}
		return b.Mint(alice, uint256.NewInt(balance))
	})
	require.NoError(t, err)
	return c, b, stub
}

func TestRedeem_FailedReleaseRevertsBurn(t *testing.T) {
	c, b, stub := newStubbedBridge(t, 100)
	releaseErr := errors.New("custody release failed")
	stub.transfer = func(caller, to common.Address, value *uint256.Int) error {
		assert.Equal(t, b.Address(), caller)
		assert.Equal(t, alice, to)
		// The burn is already applied when custody is released.
		assert.Equal(t, uint64(40), b.BalanceOf(alice).Uint64())
		return releaseErr
	}

	logs, err := c.Execute(context.Background(), func() error {
		return b.Redeem(alice, uint256.NewInt(60))
	})
	require.ErrorIs(t, err, releaseErr)
	assert.Nil(t, logs)
	assert.Equal(t, uint64(100), b.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(100), b.TotalSupply().Uint64())
}

func TestRedeem_ReentrantCallSeesReducedBalance(t *testing.T) {
	c, b, stub := newStubbedBridge(t, 100)
	var innerErr error
	calls := 0
	stub.transfer = func(caller, to common.Address, value *uint256.Int) error {
		calls++
		if calls == 1 {
			innerErr = b.Redeem(alice, uint256.NewInt(60))
		}
		return nil
	}

	logs, err := c.Execute(context.Background(), func() error {
		return b.Redeem(alice, uint256.NewInt(60))
	})
	require.NoError(t, err)
	require.ErrorIs(t, innerErr, ledger.ErrInsufficientBalance)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(40), b.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(40), b.TotalSupply().Uint64())

	names := make([]string, len(logs))
	for i, l := range logs {
		names[i] = l.Name
	}
	assert.Equal(t, []string{"Transfer", EventRedeemed}, names)
}
