// Package harness runs conformance scenarios against the ledgers.
//
// A scenario is a YAML file naming accounts, an optional genesis, a list of
// steps (one transaction each, with an optional expected outcome) and a list
// of assertions on the final state. Every scenario runs through the real
// engine on a fresh in-memory store with deterministic request ids, so two
// runs of the same scenario produce identical traces.
//
// Addresses are written by name. A step's `from` and an allocation's
// `account` take a name or a 0x address; inside args, a string "@name" is
// replaced by that account's address. The names legacy, bridge and lot
// refer to the deployed ledgers, deployer to the genesis deployer and zero
// to the zero address.
//
// Traces label every known address with its name, which keeps golden files
// readable and independent of deployment addresses.
//
// Example:
//
//	name: mint-and-redeem
//	description: Mint bridge tokens and redeem them
//	accounts:
//	  alice: "0x00000000000000000000000000000000000A11CE"
//	genesis:
//	  allocations:
//	    - {account: alice, amount: "1000"}
//	steps:
//	  - from: alice
//	    method: legacy.transferAndCall
//	    args: {to: "@bridge", amount: "400", tag: "0x4d494e54"}
//	  - from: alice
//	    method: bridge.redeem
//	    args: {amount: "400"}
//	    expect: {status: Committed, result: {released: "400"}}
//	assertions:
//	  - {type: balance, token: legacy, account: alice, amount: "1000"}
//	  - {type: invariants}
package harness
