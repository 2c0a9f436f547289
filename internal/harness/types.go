package harness

import "github.com/roach88/lotbridge/internal/ir"

// TraceStep records one executed step: the transaction as submitted and the
// receipt it produced. Addresses are labeled with account names.
type TraceStep struct {
	Seq    int64        `json:"seq"`
	From   string       `json:"from"`
	Method string       `json:"method"`
	Args   ir.IRObject  `json:"args"`
	Status string       `json:"status"`
	Code   string       `json:"code,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Result ir.IRObject  `json:"result"`
	Events []TraceEvent `json:"events"`
}

// TraceEvent is an event in a step's receipt.
type TraceEvent struct {
	Index   int64       `json:"index"`
	Emitter string      `json:"emitter"`
	Name    string      `json:"name"`
	Fields  ir.IRObject `json:"fields"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step in seq order.
	Trace []TraceStep `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Value returns the record form of the trace, used for golden files.
func (r *Result) Value() ir.IRArray {
	steps := make(ir.IRArray, len(r.Trace))
	for i, s := range r.Trace {
		events := make(ir.IRArray, len(s.Events))
		for j, e := range s.Events {
			events[j] = ir.NewIRObjectFromPairs(
				ir.O("index", ir.IRInt(e.Index)),
				ir.O("emitter", ir.IRString(e.Emitter)),
				ir.O("name", ir.IRString(e.Name)),
				ir.O("fields", e.Fields),
			)
		}
		step := ir.NewIRObjectFromPairs(
			ir.O("seq", ir.IRInt(s.Seq)),
			ir.O("from", ir.IRString(s.From)),
			ir.O("method", ir.IRString(s.Method)),
			ir.O("args", s.Args),
			ir.O("status", ir.IRString(s.Status)),
			ir.O("result", s.Result),
			ir.O("events", events),
		)
		if s.Code != "" {
			step["code"] = ir.IRString(s.Code)
			step["reason"] = ir.IRString(s.Reason)
		}
		steps[i] = step
	}
	return steps
}
