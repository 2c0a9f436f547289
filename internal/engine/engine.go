package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/node"
	"github.com/roach88/lotbridge/internal/store"
)

// Engine is the single-writer transaction loop.
//
// CRITICAL: All ledger mutations and store writes happen in the Run loop
// goroutine. External callers use Submit().
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Node() reads: safe from any goroutine (the chain lock serializes them)
type Engine struct {
	store       *store.Store
	node        *node.Node
	clock       *Clock
	queue       *requestQueue
	reqGen      RequestIDGenerator
	genesisHash string
	metrics     *Metrics
	logger      *slog.Logger
	checks      bool

	failMu sync.Mutex
	failed error
}

// Option configures an Engine.
type Option func(*Engine)

// WithRequestIDGenerator sets the generator for calls without a request id.
// Default: UUIDv7Generator.
func WithRequestIDGenerator(g RequestIDGenerator) Option {
	return func(e *Engine) {
		e.reqGen = g
	}
}

// WithMetrics sets the Prometheus collectors. Default: unregistered.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithInvariantChecks toggles the conservation check after every committed
// transaction. Default: on.
func WithInvariantChecks(on bool) Option {
	return func(e *Engine) {
		e.checks = on
	}
}

// New creates an Engine over a deployed node and its store.
//
// The store must either be empty (the node's genesis is recorded) or hold
// the same genesis. The clock resumes after the last stored seq, so the
// node must already reflect every stored transaction (see Replay).
func New(ctx context.Context, s *store.Store, n *node.Node, opts ...Option) (*Engine, error) {
	g := n.Genesis()
	hash := g.Hash()
	if err := s.WriteGenesis(ctx, g.Manifest(), hash); err != nil {
		if errors.Is(err, store.ErrGenesisMismatch) {
			return nil, &RuntimeError{Code: ErrCodeGenesisMismatch, Message: "node genesis differs from stored genesis", Err: err}
		}
		return nil, fmt.Errorf("record genesis: %w", err)
	}

	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:       s,
		node:        n,
		clock:       NewClockAt(last),
		queue:       newRequestQueue(),
		reqGen:      UUIDv7Generator{},
		genesisHash: hash,
		logger:      slog.Default(),
		checks:      true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	e.metrics.lastSeq.Set(float64(last))
	return e, nil
}

// Node returns the node the engine applies to. Use it for reads only.
func (e *Engine) Node() *node.Node {
	return e.node
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Submit queues a call and blocks until it has been applied and persisted,
// returning the stored transaction and receipt.
//
// A ledger revert is reported in the receipt, not as an error. Submit
// returns an error when the engine is stopped, when ctx ends before the
// call is applied, or when persisting fails.
//
// Thread-safe: may be called from any goroutine.
func (e *Engine) Submit(ctx context.Context, call Call) (store.Entry, error) {
	if err := e.failure(); err != nil {
		return store.Entry{}, err
	}
	if call.Args == nil {
		call.Args = ir.IRObject{}
	}

	req := &request{ctx: ctx, call: call, done: make(chan outcome, 1)}
	if !e.queue.Enqueue(req) {
		return store.Entry{}, errStopped
	}
	e.metrics.queueDepth.Set(float64(e.queue.Len()))

	select {
	case out := <-req.done:
		return out.entry, out.err
	case <-ctx.Done():
		// The Run loop skips requests whose context has ended. If it had
		// already started this one, the outcome is still persisted.
		return store.Entry{}, ctx.Err()
	}
}

// Run starts the single-writer loop.
// Blocks until ctx is cancelled, Stop() is called, or persisting fails.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "last_seq", e.clock.Current(), "genesis", e.genesisHash)

	for {
		req, ok := e.queue.TryDequeue()
		if ok {
			e.metrics.queueDepth.Set(float64(e.queue.Len()))
			if err := e.process(req); err != nil {
				e.fail(err)
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.stop(errStopped)
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed when the queue is closed,
			// so this fires immediately after Stop().
			if e.queue.Len() == 0 && e.failure() != nil {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop stops accepting calls. Queued calls fail with a STOPPED error and
// Run returns.
func (e *Engine) Stop() {
	e.stop(errStopped)
}

func (e *Engine) stop(reason error) {
	e.failMu.Lock()
	if e.failed == nil {
		e.failed = reason
	}
	e.failMu.Unlock()

	for _, req := range e.queue.Close() {
		req.done <- outcome{err: reason}
	}
}

func (e *Engine) fail(err error) {
	e.logger.Error("engine halted", "error", err)
	e.stop(err)
}

func (e *Engine) failure() error {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	return e.failed
}

// process applies and persists one call.
// CRITICAL: Called only from Run() - single-writer guarantee.
//
// The returned error is fatal to the loop. Per-call failures that leave
// memory and disk consistent are delivered to the submitter instead.
func (e *Engine) process(req *request) error {
	if err := req.ctx.Err(); err != nil {
		// Abandoned before it was stamped: no seq is consumed.
		req.done <- outcome{err: err}
		return nil
	}

	start := time.Now()
	call := req.call
	if call.RequestID == "" {
		call.RequestID = e.reqGen.Generate()
	}

	seq := e.clock.Next()
	id, err := ir.TransactionID(call.RequestID, call.From, call.Method, call.Args, seq)
	if err != nil {
		// Args that cannot be canonicalized never reach the ledgers.
		e.rewind(seq)
		req.done <- outcome{err: fmt.Errorf("submit %s: %w", call.Method, err)}
		return nil
	}

	tx := ir.Transaction{
		ID:            id,
		RequestID:     call.RequestID,
		From:          call.From,
		Method:        call.Method,
		Args:          call.Args,
		Seq:           seq,
		GenesisHash:   e.genesisHash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}

	// Apply with a background context: once stamped, the call must be
	// applied and persisted regardless of the submitter.
	receipt, err := e.node.Apply(context.Background(), tx)
	if err != nil {
		return &RuntimeError{Code: ErrCodePersistFailed, Message: "apply failed", TxID: tx.ID, Seq: seq, Err: err}
	}

	if err := e.store.WriteApplied(context.Background(), tx, receipt); err != nil {
		rerr := &RuntimeError{Code: ErrCodePersistFailed, Message: "applied transaction was not persisted", TxID: tx.ID, Seq: seq, Err: err}
		req.done <- outcome{err: rerr}
		return rerr
	}

	e.metrics.transactions.WithLabelValues(string(tx.Method), string(receipt.Status)).Inc()
	e.metrics.applyTime.WithLabelValues(string(tx.Method)).Observe(time.Since(start).Seconds())
	e.metrics.lastSeq.Set(float64(seq))

	e.logger.Debug("transaction applied",
		"tx", tx.ID,
		"seq", seq,
		"method", tx.Method,
		"from", tx.From,
		"status", receipt.Status,
		"events", len(receipt.Events),
	)

	if e.checks && receipt.Committed() {
		if err := e.node.CheckInvariants(); err != nil {
			e.metrics.violations.Inc()
			e.logger.Error("invariant violated", "tx", tx.ID, "seq", seq, "error", err)
		}
	}

	req.done <- outcome{entry: store.Entry{Transaction: tx, Receipt: receipt}}
	return nil
}

// rewind gives back a seq that was issued but never used.
func (e *Engine) rewind(seq int64) {
	e.clock.seq.CompareAndSwap(seq, seq-1)
}
