package ledger

import (
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/ir"
)

// Revert reasons shared by every fungible ledger.
const (
	ReasonTransferExceedsBalance = "ERC20: transfer amount exceeds balance"
	ReasonBurnExceedsBalance     = "ERC20: burn amount exceeds balance"
	ReasonInsufficientAllowance  = "ERC20: insufficient allowance"
	ReasonTransferToZero         = "ERC20: transfer to the zero address"
	ReasonMintToZero             = "ERC20: mint to the zero address"
	ReasonApproveToZero          = "ERC20: approve to the zero address"
	ReasonSupplyOverflow         = "ERC20: total supply overflow"
)

// Metadata describes a token for display.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Fungible is a balance/allowance/supply ledger bound to one address.
//
// Stored *uint256.Int values are never mutated in place: every write
// installs a fresh value so journal entries can restore the old pointer.
type Fungible struct {
	state      *State
	address    common.Address
	meta       Metadata
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     *uint256.Int
}

// NewFungible creates an empty ledger at address, journaling into state.
func NewFungible(state *State, address common.Address, meta Metadata) *Fungible {
	return &Fungible{
		state:      state,
		address:    address,
		meta:       meta,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

// Address returns the ledger's own account, which is also its custody
// account for underlying tokens.
func (f *Fungible) Address() common.Address { return f.address }

// Metadata returns name, symbol and decimals.
func (f *Fungible) Metadata() Metadata { return f.meta }

// BalanceOf returns a copy of account's balance.
func (f *Fungible) BalanceOf(account common.Address) *uint256.Int {
	if b, ok := f.balances[account]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// TotalSupply returns a copy of the total supply.
func (f *Fungible) TotalSupply() *uint256.Int {
	return f.supply.Clone()
}

// Allowance returns how much spender may still pull from owner.
func (f *Fungible) Allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := f.allowances[allowanceKey{owner, spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

// Approve sets spender's allowance over owner's balance to amount,
// replacing any previous allowance.
func (f *Fungible) Approve(owner, spender common.Address, amount *uint256.Int) (bool, error) {
	if spender == (common.Address{}) {
		return false, Revert(CodeZeroAddress, ReasonApproveToZero)
	}
	f.setAllowance(owner, spender, amount.Clone())
	f.emit("Approval", ir.NewIRObjectFromPairs(
		ir.O("owner", AddressValue(owner)),
		ir.O("spender", AddressValue(spender)),
		ir.O("value", AmountValue(amount)),
	))
	return true, nil
}

// Transfer moves amount from from to to.
func (f *Fungible) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return Revert(CodeZeroAddress, ReasonTransferToZero)
	}
	bal := f.BalanceOf(from)
	if bal.Lt(amount) {
		return Revert(CodeInsufficientBalance, ReasonTransferExceedsBalance)
	}
	f.setBalance(from, new(uint256.Int).Sub(bal, amount))
	// Read the recipient after the debit so a self-transfer nets to zero.
	toBal, overflow := new(uint256.Int).AddOverflow(f.BalanceOf(to), amount)
	if overflow {
		return Revert(CodeOverflow, ReasonSupplyOverflow)
	}
	f.setBalance(to, toBal)
	f.emitTransfer(from, to, amount)
	return nil
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// spender's allowance. An allowance of 2^256-1 is treated as unlimited and
// is not decreased.
func (f *Fungible) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if err := f.spendAllowance(from, spender, amount); err != nil {
		return err
	}
	return f.Transfer(from, to, amount)
}

// Mint credits amount to to and grows the supply.
func (f *Fungible) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return Revert(CodeZeroAddress, ReasonMintToZero)
	}
	supply, overflow := new(uint256.Int).AddOverflow(f.supply, amount)
	if overflow {
		return Revert(CodeOverflow, ReasonSupplyOverflow)
	}
	// Balance <= supply, so the balance add cannot overflow once supply did not.
	f.setSupply(supply)
	f.setBalance(to, new(uint256.Int).Add(f.BalanceOf(to), amount))
	f.emitTransfer(common.Address{}, to, amount)
	return nil
}

// Burn debits amount from from and shrinks the supply.
func (f *Fungible) Burn(from common.Address, amount *uint256.Int) error {
	bal := f.BalanceOf(from)
	if bal.Lt(amount) {
		return Revert(CodeInsufficientBalance, ReasonBurnExceedsBalance)
	}
	f.setBalance(from, new(uint256.Int).Sub(bal, amount))
	f.setSupply(new(uint256.Int).Sub(f.supply, amount))
	f.emitTransfer(from, common.Address{}, amount)
	return nil
}

// Holders returns every account with a non-zero balance, sorted by address.
func (f *Fungible) Holders() []common.Address {
	out := make([]common.Address, 0, len(f.balances))
	for a, b := range f.balances {
		if !b.IsZero() {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b common.Address) int { return bytes.Compare(a[:], b[:]) })
	return out
}

// SumBalances adds every balance. It equals TotalSupply unless the
// conservation invariant is broken.
func (f *Fungible) SumBalances() *uint256.Int {
	sum := new(uint256.Int)
	for _, b := range f.balances {
		sum.Add(sum, b)
	}
	return sum
}

// Emit appends an event attributed to this ledger.
func (f *Fungible) Emit(name string, fields ir.IRObject) {
	f.emit(name, fields)
}

func (f *Fungible) spendAllowance(owner, spender common.Address, amount *uint256.Int) error {
	current := f.Allowance(owner, spender)
	if current.Eq(maxUint256) {
		return nil
	}
	if current.Lt(amount) {
		return Revert(CodeInsufficientAllowance, ReasonInsufficientAllowance)
	}
	f.setAllowance(owner, spender, new(uint256.Int).Sub(current, amount))
	return nil
}

var maxUint256 = new(uint256.Int).SetAllOne()

func (f *Fungible) setBalance(account common.Address, v *uint256.Int) {
	prev, had := f.balances[account]
	f.balances[account] = v
	f.state.record(func() {
		if had {
			f.balances[account] = prev
		} else {
			delete(f.balances, account)
		}
	})
}

func (f *Fungible) setAllowance(owner, spender common.Address, v *uint256.Int) {
	key := allowanceKey{owner, spender}
	prev, had := f.allowances[key]
	f.allowances[key] = v
	f.state.record(func() {
		if had {
			f.allowances[key] = prev
		} else {
			delete(f.allowances, key)
		}
	})
}

func (f *Fungible) setSupply(v *uint256.Int) {
	prev := f.supply
	f.supply = v
	f.state.record(func() { f.supply = prev })
}

func (f *Fungible) emitTransfer(from, to common.Address, amount *uint256.Int) {
	f.emit("Transfer", ir.NewIRObjectFromPairs(
		ir.O("from", AddressValue(from)),
		ir.O("to", AddressValue(to)),
		ir.O("value", AmountValue(amount)),
	))
}

func (f *Fungible) emit(name string, fields ir.IRObject) {
	f.state.Emit(ir.Event{
		Emitter: f.address.Hex(),
		Name:    name,
		Fields:  fields,
	})
}
