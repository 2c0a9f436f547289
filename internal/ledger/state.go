package ledger

import "github.com/roach88/lotbridge/internal/ir"

// State is the undo journal and event log shared by every ledger deployed on
// one chain. Ledgers record an undo entry for each mutation; emitted events
// are journaled the same way, so a revert also removes them.
//
// State is not safe for concurrent use. The chain serializes top-level
// operations before they touch it.
type State struct {
	journal []func()
	logs    []ir.Event
}

// NewState creates an empty journal.
func NewState() *State {
	return &State{}
}

// Snapshot returns an identifier for the current journal position.
func (s *State) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every entry recorded after id, newest first.
func (s *State) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
		s.journal[i] = nil
	}
	s.journal = s.journal[:id]
}

// record appends an undo entry.
func (s *State) record(undo func()) {
	s.journal = append(s.journal, undo)
}

// Emit appends an event to the pending log.
func (s *State) Emit(ev ir.Event) {
	ev.Index = int64(len(s.logs))
	s.logs = append(s.logs, ev)
	n := len(s.logs) - 1
	s.record(func() { s.logs = s.logs[:n] })
}

// Logs returns the events emitted since the last Commit.
func (s *State) Logs() []ir.Event {
	out := make([]ir.Event, len(s.logs))
	copy(out, s.logs)
	return out
}

// Commit discards the journal, making current state permanent, and returns
// the events emitted since the previous Commit.
func (s *State) Commit() []ir.Event {
	logs := s.Logs()
	clear(s.journal)
	s.journal = s.journal[:0]
	s.logs = s.logs[:0]
	return logs
}
