// Package legacy implements the legacy source token: a fungible ledger with
// a plain transfer and a tagged transfer, both of which call back into the
// recipient when the recipient is a contract.
//
// The bridge treats this ledger as an external collaborator and depends only
// on its balance/transfer/callback contract. This implementation exists so
// the system can be deployed and exercised end to end.
package legacy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/ledger"
)

// ReasonNotReceiver is the revert reason when a contract recipient does not
// accept transfer callbacks.
const ReasonNotReceiver = "Recipient contract does not accept transfers"

// Receiver is implemented by contracts that accept legacy transfers. It is
// invoked after the recipient has been credited, inside the same atomic
// operation; returning an error reverts the whole transfer.
//
// caller is the identity of the ledger making the callback. Receivers must
// compare it against the ledger they are bound to.
type Receiver interface {
	OnTaggedTransfer(caller, from common.Address, value *uint256.Int, tag []byte) error
}

// Registry resolves addresses to deployed contracts.
type Registry interface {
	ContractAt(addr common.Address) (any, bool)
}

// Token is the legacy ledger.
type Token struct {
	*ledger.Fungible
	registry Registry
}

// New creates the legacy token at address. Initial allocations are minted
// by the deployer through Mint.
func New(state *ledger.State, address common.Address, meta ledger.Metadata, registry Registry) *Token {
	return &Token{
		Fungible: ledger.NewFungible(state, address, meta),
		registry: registry,
	}
}

// Transfer moves value from caller to to. A contract recipient is called
// back with an empty tag.
func (t *Token) Transfer(caller, to common.Address, value *uint256.Int) error {
	return t.transfer(caller, to, value, nil)
}

// TransferAndCall moves value from caller to to and passes tag to the
// recipient's callback when the recipient is a contract.
func (t *Token) TransferAndCall(caller, to common.Address, value *uint256.Int, tag []byte) error {
	return t.transfer(caller, to, value, tag)
}

func (t *Token) transfer(caller, to common.Address, value *uint256.Int, tag []byte) error {
	if err := t.Fungible.Transfer(caller, to, value); err != nil {
		return err
	}
	contract, ok := t.registry.ContractAt(to)
	if !ok {
		return nil
	}
	receiver, ok := contract.(Receiver)
	if !ok {
		return ledger.Revert(ledger.CodeNotReceiver, ReasonNotReceiver)
	}
	return receiver.OnTaggedTransfer(t.Address(), caller, value, tag)
}
