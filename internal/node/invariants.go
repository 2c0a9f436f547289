package node

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
)

// LedgerReport is the supply accounting of one ledger.
type LedgerReport struct {
	Token       string       `json:"token"`
	Supply      *uint256.Int `json:"supply"`
	SumBalances *uint256.Int `json:"sum_balances"`
}

// BackingReport compares what a wrapping ledger has issued with the
// underlying it holds in custody.
type BackingReport struct {
	Token    string       `json:"token"`
	Required *uint256.Int `json:"required"`
	Custody  *uint256.Int `json:"custody"`
	Surplus  *uint256.Int `json:"surplus"`
}

// InvariantReport is a snapshot of every accounting invariant.
type InvariantReport struct {
	Ledgers    []LedgerReport  `json:"ledgers"`
	Backing    []BackingReport `json:"backing"`
	Violations []string        `json:"violations"`
}

// OK reports whether no invariant is violated.
func (r InvariantReport) OK() bool {
	return len(r.Violations) == 0
}

// Value returns the record form of the report.
func (r InvariantReport) Value() ir.IRObject {
	ledgers := make(ir.IRArray, len(r.Ledgers))
	for i, l := range r.Ledgers {
		ledgers[i] = ir.NewIRObjectFromPairs(
			ir.O("token", ir.IRString(l.Token)),
			ir.O("supply", ledger.AmountValue(l.Supply)),
			ir.O("sum_balances", ledger.AmountValue(l.SumBalances)),
		)
	}
	backing := make(ir.IRArray, len(r.Backing))
	for i, b := range r.Backing {
		backing[i] = ir.NewIRObjectFromPairs(
			ir.O("token", ir.IRString(b.Token)),
			ir.O("required", ledger.AmountValue(b.Required)),
			ir.O("custody", ledger.AmountValue(b.Custody)),
			ir.O("surplus", ledger.AmountValue(b.Surplus)),
		)
	}
	violations := make(ir.IRArray, len(r.Violations))
	for i, v := range r.Violations {
		violations[i] = ir.IRString(v)
	}
	return ir.NewIRObjectFromPairs(
		ir.O("ok", ir.IRBool(r.OK())),
		ir.O("ledgers", ledgers),
		ir.O("backing", backing),
		ir.O("violations", violations),
	)
}

// InvariantError is returned by CheckInvariants when the report has
// violations.
type InvariantError struct {
	Report InvariantReport
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + strings.Join(e.Report.Violations, "; ")
}

// Invariants evaluates, under the chain lock:
//   - per ledger, the sum of balances equals the total supply;
//   - legacy custody held by the bridge covers the bridge supply;
//   - bridge custody held by the lot ledger covers lot supply * LotSize.
//
// Custody may exceed what is required when tokens are sent to a ledger's
// account outside the deposit path; that surplus is reported, not flagged.
func (n *Node) Invariants() InvariantReport {
	var r InvariantReport
	n.chain.View(func() {
		r = n.invariants()
	})
	return r
}

// CheckInvariants returns an *InvariantError if any invariant is violated.
func (n *Node) CheckInvariants() error {
	r := n.Invariants()
	if !r.OK() {
		return &InvariantError{Report: r}
	}
	return nil
}

func (n *Node) invariants() InvariantReport {
	r := InvariantReport{Violations: []string{}}

	for _, t := range []struct {
		name string
		f    *ledger.Fungible
	}{
		{ContractLegacy, n.Legacy.Fungible},
		{ContractBridge, n.Bridge.Fungible},
		{ContractLot, n.Lot.Fungible},
	} {
		l := LedgerReport{Token: t.name, Supply: t.f.TotalSupply(), SumBalances: t.f.SumBalances()}
		if !l.Supply.Eq(l.SumBalances) {
			r.Violations = append(r.Violations, fmt.Sprintf("%s: sum of balances %s != total supply %s",
				t.name, l.SumBalances.Dec(), l.Supply.Dec()))
		}
		r.Ledgers = append(r.Ledgers, l)
	}

	r.Backing = append(r.Backing, backing(&r, ContractBridge, n.Bridge.TotalSupply(), n.Bridge.Custody()))

	required, overflow := new(uint256.Int).MulOverflow(n.Lot.TotalSupply(), n.Lot.LotSize())
	if overflow {
		r.Violations = append(r.Violations, "lot: supply * lot size overflows")
		required = new(uint256.Int).SetAllOne()
	}
	r.Backing = append(r.Backing, backing(&r, ContractLot, required, n.Lot.Custody()))
	return r
}

func backing(r *InvariantReport, token string, required, custody *uint256.Int) BackingReport {
	b := BackingReport{Token: token, Required: required, Custody: custody, Surplus: new(uint256.Int)}
	if custody.Lt(required) {
		r.Violations = append(r.Violations, fmt.Sprintf("%s: custody %s < required %s",
			token, custody.Dec(), required.Dec()))
		return b
	}
	b.Surplus.Sub(custody, required)
	return b
}
