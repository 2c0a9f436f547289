package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/lotbridge/internal/engine"
	"github.com/roach88/lotbridge/internal/genesis"
	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/store"
)

// Harness is the test execution engine for one scenario.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	book   *addressBook
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. Request
// ids are "<scenario name>-<n>", so transaction ids are reproducible.
//
// Execution flow:
//  1. Deploy the scenario genesis on a fresh in-memory store
//  2. Submit each step through the engine and check its expect clause
//  3. Evaluate assertions against the final state
//  4. Replay the stored log and require identical receipts
//
// The returned error covers malformed scenarios and infrastructure
// failures; failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	book, err := newAddressBook(scenario.Accounts)
	if err != nil {
		return nil, err
	}
	g, err := buildGenesis(scenario.Genesis, book)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng, err := engine.Initialize(ctx, st, g,
		engine.WithRequestIDGenerator(engine.NewSequentialGenerator(scenario.Name)),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	n := eng.Node()
	book.add("legacy", n.Legacy.Address())
	book.add("bridge", n.Bridge.Address())
	book.add("lot", n.Lot.Address())

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	defer func() {
		eng.Stop()
		<-done
	}()

	h := &Harness{store: st, engine: eng, book: book, logger: logger}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Node: n, Book: book}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if _, _, err := engine.Replay(ctx, st, logger); err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
	}

	return result, nil
}

// executeSteps submits every step and validates its expect clause.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		from, err := h.book.resolve(step.From)
		if err != nil {
			return fmt.Errorf("steps[%d]: from: %w", i, err)
		}
		args, err := h.book.resolveArgs(step.Args)
		if err != nil {
			return fmt.Errorf("steps[%d]: args: %w", i, err)
		}

		entry, err := h.engine.Submit(ctx, engine.Call{
			From:   from.Hex(),
			Method: ir.MethodRef(step.Method),
			Args:   args,
		})
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}

		receipt := entry.Receipt
		result.Trace = append(result.Trace, h.traceStep(entry))

		for _, msg := range h.checkExpect(step, receipt) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Method, msg))
		}

		h.logger.Info("step completed",
			"step", i,
			"method", step.Method,
			"tx", entry.Transaction.ID,
			"status", receipt.Status,
		)
	}
	return nil
}

func (h *Harness) traceStep(entry store.Entry) TraceStep {
	tx, r := entry.Transaction, entry.Receipt
	events := make([]TraceEvent, len(r.Events))
	for i, e := range r.Events {
		events[i] = TraceEvent{
			Index:   e.Index,
			Emitter: h.book.labelString(e.Emitter),
			Name:    e.Name,
			Fields:  h.book.labelObject(e.Fields),
		}
	}
	return TraceStep{
		Seq:    tx.Seq,
		From:   h.book.labelString(tx.From),
		Method: string(tx.Method),
		Args:   h.book.labelObject(tx.Args),
		Status: string(r.Status),
		Code:   r.Code,
		Reason: r.Reason,
		Result: h.book.labelObject(r.Result),
		Events: events,
	}
}

// checkExpect compares a receipt against the step's expectation. A step
// without expect must commit.
func (h *Harness) checkExpect(step Step, r ir.Receipt) []string {
	if step.Expect == nil {
		if !r.Committed() {
			return []string{fmt.Sprintf("expected Committed, got %s (%s: %s)", r.Status, r.Code, r.Reason)}
		}
		return nil
	}

	var errs []string
	exp := step.Expect
	if string(r.Status) != exp.Status {
		errs = append(errs, fmt.Sprintf("expected status %s, got %s (%s: %s)", exp.Status, r.Status, r.Code, r.Reason))
	}
	if exp.Code != "" && exp.Code != r.Code {
		errs = append(errs, fmt.Sprintf("expected code %q, got %q", exp.Code, r.Code))
	}
	if exp.Reason != "" && exp.Reason != r.Reason {
		errs = append(errs, fmt.Sprintf("expected reason %q, got %q", exp.Reason, r.Reason))
	}

	if exp.Result != nil {
		want, err := h.book.resolveArgs(exp.Result)
		if err != nil {
			return append(errs, fmt.Sprintf("expect.result: %v", err))
		}
		for _, key := range want.SortedKeys() {
			got, ok := r.Result[key]
			if !ok {
				errs = append(errs, fmt.Sprintf("result.%s: missing", key))
				continue
			}
			if scalarString(got) != scalarString(want[key]) {
				errs = append(errs, fmt.Sprintf("result.%s: expected %s, got %s", key, scalarString(want[key]), scalarString(got)))
			}
		}
	}
	return errs
}

// scalarString renders a value for comparison, so 400 and "400" match.
func scalarString(v ir.IRValue) string {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return fmt.Sprintf("%d", int64(val))
	case ir.IRBool:
		return fmt.Sprintf("%t", bool(val))
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// addressBook maps account names to addresses and back.
type addressBook struct {
	byName map[string]common.Address
	byAddr map[common.Address]string
}

func newAddressBook(accounts map[string]string) (*addressBook, error) {
	b := &addressBook{
		byName: make(map[string]common.Address),
		byAddr: make(map[common.Address]string),
	}
	b.add("zero", common.Address{})
	for _, name := range sortedKeys(accounts) {
		addr := common.HexToAddress(accounts[name])
		if other, ok := b.byAddr[addr]; ok {
			return nil, fmt.Errorf("accounts: %s and %s share address %s", other, name, addr.Hex())
		}
		b.add(name, addr)
	}
	return b, nil
}

func (b *addressBook) add(name string, addr common.Address) {
	b.byName[name] = addr
	if _, taken := b.byAddr[addr]; !taken {
		b.byAddr[addr] = name
	}
}

// resolve accepts a name or a 0x address.
func (b *addressBook) resolve(ref string) (common.Address, error) {
	if addr, ok := b.byName[strings.TrimPrefix(ref, "@")]; ok {
		return addr, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("unknown account %q", ref)
}

// resolveArgs converts YAML args into IR, replacing "@name" strings with
// addresses.
func (b *addressBook) resolveArgs(args map[string]any) (ir.IRObject, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}
	v, err := ir.ToIRValue(args)
	if err != nil {
		return nil, err
	}
	resolved, err := b.resolveValue(v)
	if err != nil {
		return nil, err
	}
	return resolved.(ir.IRObject), nil
}

func (b *addressBook) resolveValue(v ir.IRValue) (ir.IRValue, error) {
	switch val := v.(type) {
	case ir.IRString:
		if strings.HasPrefix(string(val), "@") {
			addr, ok := b.byName[string(val)[1:]]
			if !ok {
				return nil, fmt.Errorf("unknown account %q", string(val))
			}
			return ir.IRString(addr.Hex()), nil
		}
		return val, nil
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, elem := range val {
			r, err := b.resolveValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, elem := range val {
			r, err := b.resolveValue(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	}
	return v, nil
}

// labelString returns the name of a known address, or s unchanged.
func (b *addressBook) labelString(s string) string {
	if len(s) != 2+2*common.AddressLength || !common.IsHexAddress(s) {
		return s
	}
	if name, ok := b.byAddr[common.HexToAddress(s)]; ok {
		return name
	}
	return s
}

func (b *addressBook) labelObject(obj ir.IRObject) ir.IRObject {
	out := make(ir.IRObject, len(obj))
	for k, v := range obj {
		out[k] = b.labelValue(v)
	}
	return out
}

func (b *addressBook) labelValue(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case ir.IRString:
		return ir.IRString(b.labelString(string(val)))
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, elem := range val {
			out[i] = b.labelValue(elem)
		}
		return out
	case ir.IRObject:
		return b.labelObject(val)
	}
	return v
}

// buildGenesis turns a scenario genesis into a validated manifest and
// registers the deployer name.
func buildGenesis(spec *GenesisSpec, book *addressBook) (genesis.Genesis, error) {
	if spec == nil {
		g := genesis.Default()
		book.add("deployer", g.Deployer)
		return g, nil
	}

	deployer := genesis.DefaultDeployer
	if spec.Deployer != "" {
		addr, err := book.resolve(spec.Deployer)
		if err != nil {
			return genesis.Genesis{}, fmt.Errorf("genesis.deployer: %w", err)
		}
		deployer = addr
	}
	book.add("deployer", deployer)

	m := map[string]any{"deployer": deployer.Hex()}
	for key, tok := range map[string]*TokenSpec{"legacy": spec.Legacy, "bridge": spec.Bridge, "lot": spec.Lot} {
		if tok == nil {
			continue
		}
		t := map[string]any{}
		if tok.Name != "" {
			t["name"] = tok.Name
		}
		if tok.Symbol != "" {
			t["symbol"] = tok.Symbol
		}
		if tok.Decimals != nil {
			t["decimals"] = *tok.Decimals
		}
		m[key] = t
	}

	allocs := make([]any, len(spec.Allocations))
	for i, a := range spec.Allocations {
		addr, err := book.resolve(a.Account)
		if err != nil {
			return genesis.Genesis{}, fmt.Errorf("genesis.allocations[%d]: %w", i, err)
		}
		allocs[i] = map[string]any{"account": addr.Hex(), "amount": a.Amount}
	}
	m["allocations"] = allocs

	data, err := json.Marshal(m)
	if err != nil {
		return genesis.Genesis{}, err
	}
	return genesis.Parse(data, "scenario-genesis.json")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
