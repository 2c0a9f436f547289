package ir

import "strings"

// MethodRef names a ledger entry point as "<contract>.<method>",
// e.g. "bridge.redeem" or "lot.deposit".
type MethodRef string

// Contract returns the part before the first dot.
func (m MethodRef) Contract() string {
	c, _, _ := strings.Cut(string(m), ".")
	return c
}

// Name returns the part after the first dot, or "" if there is none.
func (m MethodRef) Name() string {
	_, n, _ := strings.Cut(string(m), ".")
	return n
}

// Transaction is one top-level operation submitted against the ledgers.
// It either commits entirely or reverts entirely.
type Transaction struct {
	ID            string    `json:"id"` // Content-addressed hash
	RequestID     string    `json:"request_id"`
	From          string    `json:"from"` // 0x-prefixed account address
	Method        MethodRef `json:"method"`
	Args          IRObject  `json:"args"`
	Seq           int64     `json:"seq"` // Logical clock
	GenesisHash   string    `json:"genesis_hash"`
	EngineVersion string    `json:"engine_version"`
	IRVersion     string    `json:"ir_version"`
}

// ReceiptStatus is the terminal outcome of a transaction.
type ReceiptStatus string

const (
	StatusCommitted ReceiptStatus = "Committed"
	StatusReverted  ReceiptStatus = "Reverted"
)

// Receipt records how a transaction ended. A reverted receipt carries the
// error code and the verbatim revert reason and never carries events.
type Receipt struct {
	ID     string        `json:"id"` // Content-addressed hash
	TxID   string        `json:"tx_id"`
	Status ReceiptStatus `json:"status"`
	Code   string        `json:"code,omitempty"`
	Reason string        `json:"reason,omitempty"`
	Result IRObject      `json:"result"`
	Events []Event       `json:"events"`
	Seq    int64         `json:"seq"`
}

// Committed reports whether the receipt is for a committed transaction.
func (r Receipt) Committed() bool {
	return r.Status == StatusCommitted
}

// Event is a log emitted by a ledger during a committed transaction.
type Event struct {
	Index   int64    `json:"index"`   // Position within the transaction
	Emitter string   `json:"emitter"` // Address of the emitting ledger
	Name    string   `json:"name"`    // "Minted", "Deposited", "Transfer", ...
	Fields  IRObject `json:"fields"`
}
