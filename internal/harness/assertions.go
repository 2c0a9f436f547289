package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/ledger"
	"github.com/roach88/lotbridge/internal/node"
	"github.com/roach88/lotbridge/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides what assertions read from.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	Node  *node.Node
	Book  *addressBook
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertBalance:
			err = assertBalance(actx, assertion)
		case AssertSupply:
			err = assertSupply(actx, assertion)
		case AssertAllowance:
			err = assertAllowance(actx, assertion)
		case AssertEventCount:
			err = assertEventCount(actx, assertion)
		case AssertInvariants:
			err = assertInvariants(actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errors
}

// amountCheck reads a value under the chain lock and compares it with the
// expected base-unit amount.
func amountCheck(actx *AssertionContext, kind, desc, want string, read func() *uint256.Int) error {
	expected, err := ledger.ParseAmount(want)
	if err != nil {
		return fmt.Errorf("%s: amount: %w", kind, err)
	}
	var actual *uint256.Int
	actx.Node.View(func() {
		actual = read()
	})
	if !actual.Eq(expected) {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s = %s", desc, expected.Dec()),
			Actual:   fmt.Sprintf("%s = %s", desc, actual.Dec()),
		}
	}
	return nil
}

func lookupToken(actx *AssertionContext, kind, name string) (node.Token, error) {
	t, ok := actx.Node.Token(name)
	if !ok {
		return nil, fmt.Errorf("%s: unknown token %q", kind, name)
	}
	return t, nil
}

func assertBalance(actx *AssertionContext, a Assertion) error {
	t, err := lookupToken(actx, AssertBalance, a.Token)
	if err != nil {
		return err
	}
	account, err := actx.Book.resolve(a.Account)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	desc := fmt.Sprintf("%s balance of %s", a.Token, a.Account)
	return amountCheck(actx, AssertBalance, desc, a.Amount, func() *uint256.Int {
		return t.BalanceOf(account)
	})
}

func assertSupply(actx *AssertionContext, a Assertion) error {
	t, err := lookupToken(actx, AssertSupply, a.Token)
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("%s total supply", a.Token)
	return amountCheck(actx, AssertSupply, desc, a.Amount, t.TotalSupply)
}

func assertAllowance(actx *AssertionContext, a Assertion) error {
	t, err := lookupToken(actx, AssertAllowance, a.Token)
	if err != nil {
		return err
	}
	owner, err := actx.Book.resolve(a.Owner)
	if err != nil {
		return fmt.Errorf("allowance: owner: %w", err)
	}
	spender, err := actx.Book.resolve(a.Spender)
	if err != nil {
		return fmt.Errorf("allowance: spender: %w", err)
	}
	desc := fmt.Sprintf("%s allowance of %s for %s", a.Token, a.Owner, a.Spender)
	return amountCheck(actx, AssertAllowance, desc, a.Amount, func() *uint256.Int {
		return t.Allowance(owner, spender)
	})
}

func assertEventCount(actx *AssertionContext, a Assertion) error {
	filter := store.EventFilter{Name: a.Name}
	desc := a.Name + " events"
	if a.Emitter != "" {
		emitter, err := actx.Book.resolve(a.Emitter)
		if err != nil {
			return fmt.Errorf("event_count: emitter: %w", err)
		}
		filter.Emitter = emitter.Hex()
		desc = fmt.Sprintf("%s events from %s", a.Name, a.Emitter)
	}

	events, err := actx.Store.ReadEvents(actx.Ctx, filter)
	if err != nil {
		return fmt.Errorf("event_count: %w", err)
	}
	if len(events) != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s", a.Count, desc),
			Actual:   fmt.Sprintf("%d %s", len(events), desc),
		}
	}
	return nil
}

func assertInvariants(actx *AssertionContext) error {
	report := actx.Node.Invariants()
	if report.OK() {
		return nil
	}
	return &AssertionError{
		Type:     AssertInvariants,
		Expected: "no invariant violations",
		Actual:   strings.Join(report.Violations, "; "),
	}
}
