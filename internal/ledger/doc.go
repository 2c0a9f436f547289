// Package ledger provides the fungible-ledger primitives shared by the
// legacy token, the bridge ledger and the lot ledger: balances, allowances,
// total supply, and the undo journal that makes every top-level operation
// atomic.
//
// Every mutation goes through the State journal. A caller that takes a
// Snapshot before an operation can RevertToSnapshot on failure and observe
// exactly the prior balances, supplies, allowances and event logs.
//
// Amounts are uint256 base units throughout. Decimal formatting exists only
// for display (FormatUnits) and never feeds back into arithmetic.
//
// Invariant: TotalSupply() == sum of BalanceOf(a) over every holder, at
// every point observable outside a mutation.
package ledger
