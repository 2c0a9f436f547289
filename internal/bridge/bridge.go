// Package bridge implements the bridge ledger: a fungible token minted 1:1
// against legacy tokens held in its own custody account, and burned to
// release them.
//
// Deposits arrive only through the legacy token's transfer callback, gated
// on the caller's identity and on the 4-byte mint tag. Redemptions burn
// first and release custody second, so any reentrant call made during the
// release observes the already-reduced balance.
package bridge

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
)

// MintTag is the tag that marks a legacy transfer as a mint request ("MINT").
var MintTag = [4]byte{0x4d, 0x49, 0x4e, 0x54}

// Revert reasons.
const (
	ReasonOnlyLegacy = "Only Saturn"
	ReasonInvalidTag = "Invalid tag"
	ReasonZeroAmount = "Amount=0"
)

// Event names.
const (
	EventMinted   = "Minted"
	EventRedeemed = "Redeemed"
)

// LegacyToken is the part of the legacy ledger the bridge depends on.
type LegacyToken interface {
	Address() common.Address
	BalanceOf(account common.Address) *uint256.Int
	Transfer(caller, to common.Address, value *uint256.Int) error
}

// Ledger is the bridge ledger.
type Ledger struct {
	*ledger.Fungible
	underlying LegacyToken
}

// New creates a bridge ledger at address bound permanently to underlying.
func New(state *ledger.State, address common.Address, meta ledger.Metadata, underlying LegacyToken) *Ledger {
	return &Ledger{
		Fungible:   ledger.NewFungible(state, address, meta),
		underlying: underlying,
	}
}

// Underlying returns the address of the bound legacy token.
func (l *Ledger) Underlying() common.Address {
	return l.underlying.Address()
}

// OnTaggedTransfer is the inbound deposit callback. The legacy token has
// already credited value to the bridge's custody account; this mints the
// same amount to from.
//
// caller must be the bound legacy token and tag must be exactly MintTag.
// Returning an error reverts the enclosing legacy transfer.
func (l *Ledger) OnTaggedTransfer(caller, from common.Address, value *uint256.Int, tag []byte) error {
	if caller != l.underlying.Address() {
		return ledger.Revert(ledger.CodeUnauthorized, ReasonOnlyLegacy)
	}
	if len(tag) != len(MintTag) || !bytes.Equal(tag, MintTag[:]) {
		return ledger.Revert(ledger.CodeInvalidTag, ReasonInvalidTag)
	}
	if err := l.Mint(from, value); err != nil {
		return err
	}
	l.Emit(EventMinted, ir.NewIRObjectFromPairs(
		ir.O("account", ledger.AddressValue(from)),
		ir.O("amount", ledger.AmountValue(value)),
	))
	return nil
}

// Redeem burns amount from caller and releases the same amount of legacy
// token from custody to caller.
func (l *Ledger) Redeem(caller common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return ledger.Revert(ledger.CodeZeroAmount, ReasonZeroAmount)
	}
	if err := l.Burn(caller, amount); err != nil {
		return err
	}
	if err := l.underlying.Transfer(l.Address(), caller, amount); err != nil {
		return err
	}
	l.Emit(EventRedeemed, ir.NewIRObjectFromPairs(
		ir.O("account", ledger.AddressValue(caller)),
		ir.O("amount", ledger.AmountValue(amount)),
	))
	return nil
}

// Custody returns the legacy balance held by the bridge. It is at least
// TotalSupply, and equal to it under correct usage.
func (l *Ledger) Custody() *uint256.Int {
	return l.underlying.BalanceOf(l.Address())
}
