package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/lotbridge/internal/ir"
)

// ErrNoGenesis is returned by ReadGenesis on an uninitialized store.
var ErrNoGenesis = errors.New("store has no genesis; run init first")

// Entry is one transaction with its receipt.
type Entry struct {
	Transaction ir.Transaction `json:"transaction"`
	Receipt     ir.Receipt     `json:"receipt"`
}

// LogFilter narrows ReadLog. Zero values match everything.
type LogFilter struct {
	Sender  string       // exact match on the 0x address as submitted
	Method  ir.MethodRef // exact match
	FromSeq int64        // inclusive lower bound
	Limit   int          // 0 means no limit
}

// EventFilter narrows ReadEvents. Zero values match everything.
type EventFilter struct {
	Emitter string
	Name    string
	TxID    string
}

// StoredEvent is an event together with the transaction that emitted it.
type StoredEvent struct {
	TxID string `json:"tx_id"`
	Seq  int64  `json:"seq"`
	ir.Event
}

// ReadGenesis returns the stored genesis manifest and hash.
// Returns ErrNoGenesis if the store was never initialized.
func (s *Store) ReadGenesis(ctx context.Context) (ir.IRObject, string, error) {
	var manifestJSON, hash string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaGenesisManifest).Scan(&manifestJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNoGenesis
	}
	if err != nil {
		return nil, "", fmt.Errorf("read genesis: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaGenesisHash).Scan(&hash); err != nil {
		return nil, "", fmt.Errorf("read genesis hash: %w", err)
	}

	manifest, err := unmarshalObject("genesis", manifestJSON)
	if err != nil {
		return nil, "", err
	}
	return manifest, hash, nil
}

// LastSeq returns the highest stored seq, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM transactions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadTransaction retrieves a single transaction by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadTransaction(ctx context.Context, id string) (ir.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, sender, method, args, seq, genesis_hash, engine_version, ir_version
		FROM transactions
		WHERE id = ?
	`, id)
	return scanTransaction(row)
}

// ReadReceipt retrieves the receipt of a transaction, with its events.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadReceipt(ctx context.Context, txID string) (ir.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tx_id, status, code, reason, result, seq
		FROM receipts
		WHERE tx_id = ?
	`, txID)
	r, err := scanReceipt(row)
	if err != nil {
		return ir.Receipt{}, err
	}

	events, err := s.ReadEvents(ctx, EventFilter{TxID: txID})
	if err != nil {
		return ir.Receipt{}, err
	}
	r.Events = make([]ir.Event, len(events))
	for i, ev := range events {
		r.Events[i] = ev.Event
	}
	return r, nil
}

// ReadEntry returns a transaction and its receipt.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadEntry(ctx context.Context, txID string) (Entry, error) {
	t, err := s.ReadTransaction(ctx, txID)
	if err != nil {
		return Entry{}, err
	}
	r, err := s.ReadReceipt(ctx, txID)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Transaction: t, Receipt: r}, nil
}

// ReadLog returns transactions with their receipts, ordered by seq ASC,
// id ASC. Used by replay and trace.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadLog(ctx context.Context, f LogFilter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Sender != "" {
		where = append(where, "t.sender = ?")
		args = append(args, f.Sender)
	}
	if f.Method != "" {
		where = append(where, "t.method = ?")
		args = append(args, string(f.Method))
	}
	if f.FromSeq > 0 {
		where = append(where, "t.seq >= ?")
		args = append(args, f.FromSeq)
	}

	query := `
		SELECT t.id, t.request_id, t.sender, t.method, t.args, t.seq, t.genesis_hash, t.engine_version, t.ir_version,
		       r.id, r.tx_id, r.status, r.code, r.reason, r.result, r.seq
		FROM transactions t
		JOIN receipts r ON r.tx_id = t.id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY t.seq ASC, t.id COLLATE BINARY ASC"
	if f.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                  Entry
			method, status     string
			argsJSON, resultJS string
		)
		if err := rows.Scan(
			&e.Transaction.ID, &e.Transaction.RequestID, &e.Transaction.From, &method, &argsJSON,
			&e.Transaction.Seq, &e.Transaction.GenesisHash, &e.Transaction.EngineVersion, &e.Transaction.IRVersion,
			&e.Receipt.ID, &e.Receipt.TxID, &status, &e.Receipt.Code, &e.Receipt.Reason, &resultJS, &e.Receipt.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Transaction.Method = ir.MethodRef(method)
		e.Receipt.Status = ir.ReceiptStatus(status)
		if e.Transaction.Args, err = unmarshalObject("args", argsJSON); err != nil {
			return nil, err
		}
		if e.Receipt.Result, err = unmarshalObject("result", resultJS); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	// Close before issuing event queries on the single connection.
	rows.Close()

	if err := s.attachEvents(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// attachEvents loads events for every entry in one ordered scan.
func (s *Store) attachEvents(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	byTx := make(map[string]int, len(entries))
	for i := range entries {
		entries[i].Receipt.Events = []ir.Event{}
		byTx[entries[i].Transaction.ID] = i
	}

	events, err := s.ReadEvents(ctx, EventFilter{})
	if err != nil {
		return err
	}
	for _, ev := range events {
		if i, ok := byTx[ev.TxID]; ok {
			entries[i].Receipt.Events = append(entries[i].Receipt.Events, ev.Event)
		}
	}
	return nil
}

// ReadEvents returns stored events ordered by seq ASC, idx ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]StoredEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Emitter != "" {
		where = append(where, "emitter = ?")
		args = append(args, f.Emitter)
	}
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.TxID != "" {
		where = append(where, "tx_id = ?")
		args = append(args, f.TxID)
	}

	query := `
		SELECT tx_id, idx, emitter, name, fields, seq
		FROM events`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY seq ASC, idx ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []StoredEvent{}
	for rows.Next() {
		var ev StoredEvent
		var fieldsJSON string
		if err := rows.Scan(&ev.TxID, &ev.Index, &ev.Emitter, &ev.Name, &fieldsJSON, &ev.Seq); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Fields, err = unmarshalObject("event fields", fieldsJSON); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanTransaction(row *sql.Row) (ir.Transaction, error) {
	var t ir.Transaction
	var method, argsJSON string
	if err := row.Scan(
		&t.ID, &t.RequestID, &t.From, &method, &argsJSON,
		&t.Seq, &t.GenesisHash, &t.EngineVersion, &t.IRVersion,
	); err != nil {
		return ir.Transaction{}, err
	}
	t.Method = ir.MethodRef(method)

	args, err := unmarshalObject("args", argsJSON)
	if err != nil {
		return ir.Transaction{}, err
	}
	t.Args = args
	return t, nil
}

func scanReceipt(row *sql.Row) (ir.Receipt, error) {
	var r ir.Receipt
	var status, resultJSON string
	if err := row.Scan(&r.ID, &r.TxID, &status, &r.Code, &r.Reason, &resultJSON, &r.Seq); err != nil {
		return ir.Receipt{}, err
	}
	r.Status = ir.ReceiptStatus(status)

	result, err := unmarshalObject("result", resultJSON)
	if err != nil {
		return ir.Receipt{}, err
	}
	r.Result = result
	return r, nil
}
