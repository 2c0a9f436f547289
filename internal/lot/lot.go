// Package lot implements the lot ledger: whole, indivisible lots each backed
// by exactly LotSize bridge base units held in the lot ledger's custody.
package lot

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
)

// LotSize is 10,000 bridge tokens at 4 decimals, in bridge base units.
const LotSize uint64 = 10_000 * 10_000

// Revert reasons.
const (
	ReasonNotMultipleOfLot = "Not multiple of lot"
	ReasonZeroLots         = "Lots=0"
	ReasonLotsOverflow     = "Lots overflow"
)

// Event names.
const (
	EventDeposited = "Deposited"
	EventRedeemed  = "Redeemed"
)

// BridgeToken is the part of the bridge ledger the lot ledger depends on.
type BridgeToken interface {
	Address() common.Address
	BalanceOf(account common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}

// Ledger is the lot ledger. Its Metadata must declare 0 decimals.
type Ledger struct {
	*ledger.Fungible
	underlying BridgeToken
	lotSize    *uint256.Int
}

// New creates a lot ledger at address bound permanently to underlying.
func New(state *ledger.State, address common.Address, meta ledger.Metadata, underlying BridgeToken) *Ledger {
	meta.Decimals = 0
	return &Ledger{
		Fungible:   ledger.NewFungible(state, address, meta),
		underlying: underlying,
		lotSize:    uint256.NewInt(LotSize),
	}
}

// Underlying returns the address of the bound bridge ledger.
func (l *Ledger) Underlying() common.Address {
	return l.underlying.Address()
}

// Deposit mints amount/LotSize lots to caller, then pulls amount bridge
// tokens from caller against the allowance caller granted this ledger. A
// failed pull reverts the mint. amount must be a positive multiple of
// LotSize.
func (l *Ledger) Deposit(caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() || !new(uint256.Int).Mod(amount, l.lotSize).IsZero() {
		return nil, ledger.Revert(ledger.CodeNotMultipleOfLot, ReasonNotMultipleOfLot)
	}
	lots := new(uint256.Int).Div(amount, l.lotSize)

	if err := l.Mint(caller, lots); err != nil {
		return nil, err
	}
	if err := l.underlying.TransferFrom(l.Address(), caller, l.Address(), amount); err != nil {
		return nil, err
	}
	l.Emit(EventDeposited, ir.NewIRObjectFromPairs(
		ir.O("account", ledger.AddressValue(caller)),
		ir.O("lots", ledger.AmountValue(lots)),
		ir.O("amount", ledger.AmountValue(amount)),
	))
	return lots, nil
}

// Redeem burns lots from caller and releases lots*LotSize bridge tokens from
// custody to caller.
func (l *Ledger) Redeem(caller common.Address, lots *uint256.Int) (*uint256.Int, error) {
	if lots.IsZero() {
		return nil, ledger.Revert(ledger.CodeZeroLots, ReasonZeroLots)
	}
	amount, overflow := new(uint256.Int).MulOverflow(lots, l.lotSize)
	if overflow {
		return nil, ledger.Revert(ledger.CodeOverflow, ReasonLotsOverflow)
	}
	if err := l.Burn(caller, lots); err != nil {
		return nil, err
	}
	if err := l.underlying.Transfer(l.Address(), caller, amount); err != nil {
		return nil, err
	}
	l.Emit(EventRedeemed, ir.NewIRObjectFromPairs(
		ir.O("account", ledger.AddressValue(caller)),
		ir.O("lots", ledger.AmountValue(lots)),
		ir.O("amount", ledger.AmountValue(amount)),
	))
	return amount, nil
}

// Custody returns the bridge balance held by the lot ledger. Deposits and
// redemptions keep it equal to TotalSupply()*LotSize; direct bridge
// transfers into this account can only add a surplus.
func (l *Ledger) Custody() *uint256.Int {
	return l.underlying.BalanceOf(l.Address())
}

// LotSize returns LotSize as a uint256.
func (l *Ledger) LotSize() *uint256.Int {
	return l.lotSize.Clone()
}
