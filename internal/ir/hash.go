package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for an algorithm migration.
const (
	DomainTransaction = "lotbridge/transaction/v1"
	DomainReceipt     = "lotbridge/receipt/v1"
	DomainGenesis     = "lotbridge/genesis/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransactionID computes the content-addressed id of a submitted
// transaction. Identical inputs at the same seq always hash the same, which
// is what replay relies on.
func TransactionID(requestID, from string, method MethodRef, args IRObject, seq int64) (string, error) {
	obj := IRObject{
		"request_id": IRString(requestID),
		"from":       IRString(from),
		"method":     IRString(method),
		"args":       args,
		"seq":        IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TransactionID: %w", err)
	}
	return hashWithDomain(DomainTransaction, canonical), nil
}

// ReceiptID computes the content-addressed id of a receipt. Events are
// folded in so two receipts that emitted different logs never collide.
func ReceiptID(txID string, status ReceiptStatus, code string, result IRObject, events []Event, seq int64) (string, error) {
	evs := make(IRArray, len(events))
	for i, ev := range events {
		evs[i] = IRObject{
			"emitter": IRString(ev.Emitter),
			"name":    IRString(ev.Name),
			"fields":  ev.Fields,
		}
	}
	obj := IRObject{
		"tx_id":  IRString(txID),
		"status": IRString(status),
		"code":   IRString(code),
		"result": result,
		"events": evs,
		"seq":    IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReceiptID: %w", err)
	}
	return hashWithDomain(DomainReceipt, canonical), nil
}

// GenesisHash hashes a canonical genesis manifest.
func GenesisHash(manifest IRObject) (string, error) {
	canonical, err := MarshalCanonical(manifest)
	if err != nil {
		return "", fmt.Errorf("GenesisHash: %w", err)
	}
	return hashWithDomain(DomainGenesis, canonical), nil
}

// MustTransactionID is like TransactionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTransactionID(requestID, from string, method MethodRef, args IRObject, seq int64) string {
	id, err := TransactionID(requestID, from, method, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
