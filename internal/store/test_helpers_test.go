package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/lotbridge/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTransaction creates a transaction with minimal required fields.
func createTestTransaction(id, from string, method ir.MethodRef, seq int64) ir.Transaction {
	return ir.Transaction{
		ID:            id,
		RequestID:     "req-" + id,
		From:          from,
		Method:        method,
		Args:          ir.IRObject{"amount": ir.IRString("100")},
		Seq:           seq,
		GenesisHash:   "test-genesis",
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}

// createTestReceipt creates a committed receipt with the given events.
func createTestReceipt(id, txID string, seq int64, events ...ir.Event) ir.Receipt {
	for i := range events {
		events[i].Index = int64(i)
	}
	if events == nil {
		events = []ir.Event{}
	}
	return ir.Receipt{
		ID:     id,
		TxID:   txID,
		Status: ir.StatusCommitted,
		Result: ir.IRObject{},
		Events: events,
		Seq:    seq,
	}
}

func testEvent(emitter, name string) ir.Event {
	return ir.Event{
		Emitter: emitter,
		Name:    name,
		Fields:  ir.IRObject{"amount": ir.IRString("100")},
	}
}
