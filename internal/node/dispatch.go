package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/chain"
	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
)

// Contract names used as the first half of a MethodRef.
const (
	ContractLegacy = "legacy"
	ContractBridge = "bridge"
	ContractLot    = "lot"
)

// Methods accepted by Apply.
const (
	MethodLegacyTransfer        ir.MethodRef = "legacy.transfer"
	MethodLegacyTransferAndCall ir.MethodRef = "legacy.transferAndCall"

	MethodBridgeApprove          ir.MethodRef = "bridge.approve"
	MethodBridgeTransfer         ir.MethodRef = "bridge.transfer"
	MethodBridgeTransferFrom     ir.MethodRef = "bridge.transferFrom"
	MethodBridgeRedeem           ir.MethodRef = "bridge.redeem"
	MethodBridgeOnTaggedTransfer ir.MethodRef = "bridge.onTaggedTransfer"

	MethodLotApprove      ir.MethodRef = "lot.approve"
	MethodLotTransfer     ir.MethodRef = "lot.transfer"
	MethodLotTransferFrom ir.MethodRef = "lot.transferFrom"
	MethodLotDeposit      ir.MethodRef = "lot.deposit"
	MethodLotRedeem       ir.MethodRef = "lot.redeem"
)

// Methods lists every method Apply dispatches, in display order.
var Methods = []ir.MethodRef{
	MethodLegacyTransfer,
	MethodLegacyTransferAndCall,
	MethodBridgeApprove,
	MethodBridgeTransfer,
	MethodBridgeTransferFrom,
	MethodBridgeRedeem,
	MethodBridgeOnTaggedTransfer,
	MethodLotApprove,
	MethodLotTransfer,
	MethodLotTransferFrom,
	MethodLotDeposit,
	MethodLotRedeem,
}

// Codes for transactions rejected before reaching a ledger. They revert like
// ledger errors.
const (
	CodeInvalidArgument ledger.Code = "InvalidArgument"
	CodeUnknownMethod   ledger.Code = "UnknownMethod"
	CodePanic           ledger.Code = "Panic"
)

// ReasonContractSender is the revert reason for a transaction whose sender
// is a deployed contract.
const ReasonContractSender = "Sender is a contract"

// Apply executes tx as one atomic operation and returns its receipt.
//
// A ledger revert is not an error: it produces a Reverted receipt carrying
// the code and reason. Apply returns an error only when the operation could
// not be attempted (cancelled context) or the receipt could not be hashed.
func (n *Node) Apply(ctx context.Context, tx ir.Transaction) (ir.Receipt, error) {
	var result ir.IRObject
	logs, err := n.chain.Execute(ctx, func() error {
		from, err := parseAddress(tx.From)
		if err != nil {
			return ledger.Revert(CodeInvalidArgument, fmt.Sprintf("from: %v", err))
		}
		// Contracts only act through callbacks; a transaction claiming to
		// come from one would bypass the caller checks.
		if _, ok := n.chain.ContractAt(from); ok {
			return ledger.Revert(ledger.CodeUnauthorized, ReasonContractSender)
		}
		result, err = n.dispatch(from, tx.Method, tx.Args)
		return err
	})
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ir.Receipt{}, err
	}

	receipt := ir.Receipt{
		TxID:   tx.ID,
		Status: ir.StatusCommitted,
		Result: result,
		Events: logs,
		Seq:    tx.Seq,
	}
	if err != nil {
		receipt.Status = ir.StatusReverted
		receipt.Code, receipt.Reason = revertDetails(err)
		receipt.Result = ir.IRObject{}
		receipt.Events = []ir.Event{}
		n.logger.Info("transaction reverted",
			"tx", tx.ID,
			"method", tx.Method,
			"from", tx.From,
			"code", receipt.Code,
			"reason", receipt.Reason,
		)
	}
	if receipt.Result == nil {
		receipt.Result = ir.IRObject{}
	}
	if receipt.Events == nil {
		receipt.Events = []ir.Event{}
	}

	id, err := ir.ReceiptID(tx.ID, receipt.Status, receipt.Code, receipt.Result, receipt.Events, tx.Seq)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("apply %s: %w", tx.Method, err)
	}
	receipt.ID = id
	return receipt, nil
}

func revertDetails(err error) (string, string) {
	if le, ok := ledger.AsError(err); ok {
		return string(le.Code), le.Reason
	}
	var pe *chain.PanicError
	if errors.As(err, &pe) {
		return string(CodePanic), pe.Error()
	}
	return "Error", err.Error()
}

// dispatch routes one call. It runs inside chain.Execute.
func (n *Node) dispatch(from common.Address, method ir.MethodRef, args ir.IRObject) (ir.IRObject, error) {
	a := argReader{args: args}

	switch method {
	case MethodLegacyTransfer:
		to, amount := a.address("to"), a.amount("amount")
		if err := a.err(); err != nil {
			return nil, err
		}
		return nil, n.Legacy.Transfer(from, to, amount)

	case MethodLegacyTransferAndCall:
		to, amount, tag := a.address("to"), a.amount("amount"), a.bytes("tag")
		if err := a.err(); err != nil {
			return nil, err
		}
		return nil, n.Legacy.TransferAndCall(from, to, amount, tag)

	case MethodBridgeApprove, MethodLotApprove:
		spender, amount := a.address("spender"), a.amount("amount")
		if err := a.err(); err != nil {
			return nil, err
		}
		ok, err := n.fungible(method).Approve(from, spender, amount)
		if err != nil {
			return nil, err
		}
		return ir.NewIRObjectFromPairs(ir.O("ok", ir.IRBool(ok))), nil

	case MethodBridgeTransfer, MethodLotTransfer:
		to, amount := a.address("to"), a.amount("amount")
		if err := a.err(); err != nil {
			return nil, err
		}
		return nil, n.fungible(method).Transfer(from, to, amount)

	case MethodBridgeTransferFrom, MethodLotTransferFrom:
		owner, to, amount := a.address("from"), a.address("to"), a.amount("amount")
		if err := a.err(); err != nil {
			return nil, err
		}
		return nil, n.fungible(method).TransferFrom(from, owner, to, amount)

	case MethodBridgeRedeem:
		amount := a.amount("amount")
		if err := a.err(); err != nil {
			return nil, err
		}
		if err := n.Bridge.Redeem(from, amount); err != nil {
			return nil, err
		}
		return ir.NewIRObjectFromPairs(ir.O("released", ledger.AmountValue(amount))), nil

	case MethodBridgeOnTaggedTransfer:
		// A direct call: the caller identity is the transaction sender, so
		// this only succeeds if the sender is the legacy token itself.
		sender, amount, tag := a.address("from"), a.amount("amount"), a.bytes("tag")
		if err := a.err(); err != nil {
			return nil, err
		}
		return nil, n.Bridge.OnTaggedTransfer(from, sender, amount, tag)

	case MethodLotDeposit:
		amount := a.amount("amount")
		if err := a.err(); err != nil {
			return nil, err
		}
		lots, err := n.Lot.Deposit(from, amount)
		if err != nil {
			return nil, err
		}
		return ir.NewIRObjectFromPairs(ir.O("lots", ledger.AmountValue(lots))), nil

	case MethodLotRedeem:
		lots := a.amount("lots")
		if err := a.err(); err != nil {
			return nil, err
		}
		released, err := n.Lot.Redeem(from, lots)
		if err != nil {
			return nil, err
		}
		return ir.NewIRObjectFromPairs(ir.O("released", ledger.AmountValue(released))), nil
	}

	return nil, ledger.Revert(CodeUnknownMethod, fmt.Sprintf("unknown method %q", method))
}

type fungible interface {
	Approve(owner, spender common.Address, amount *uint256.Int) (bool, error)
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}

func (n *Node) fungible(method ir.MethodRef) fungible {
	if method.Contract() == ContractLot {
		return n.Lot
	}
	return n.Bridge
}

// argReader decodes typed arguments, remembering the first failure.
type argReader struct {
	args  ir.IRObject
	first error
}

func (r *argReader) fail(key string, err error) {
	if r.first == nil {
		r.first = ledger.Revert(CodeInvalidArgument, fmt.Sprintf("%s: %v", key, err))
	}
}

func (r *argReader) err() error {
	return r.first
}

func (r *argReader) raw(key string) (string, bool) {
	switch v := r.args[key].(type) {
	case ir.IRString:
		return string(v), true
	case ir.IRInt:
		if v < 0 {
			r.fail(key, fmt.Errorf("negative value %d", v))
			return "", false
		}
		return fmt.Sprintf("%d", int64(v)), true
	case nil:
		r.fail(key, fmt.Errorf("missing"))
	default:
		r.fail(key, fmt.Errorf("unsupported type %T", v))
	}
	return "", false
}

func (r *argReader) address(key string) common.Address {
	s, ok := r.raw(key)
	if !ok {
		return common.Address{}
	}
	addr, err := parseAddress(s)
	if err != nil {
		r.fail(key, err)
	}
	return addr
}

func (r *argReader) amount(key string) *uint256.Int {
	s, ok := r.raw(key)
	if !ok {
		return new(uint256.Int)
	}
	v, err := ledger.ParseAmount(s)
	if err != nil {
		r.fail(key, err)
		return new(uint256.Int)
	}
	return v
}

// bytes decodes a 0x-prefixed hex argument. A missing key is an empty tag,
// which is how a plain transfer reaches a receiver.
func (r *argReader) bytes(key string) []byte {
	v, ok := r.args[key]
	if !ok {
		return nil
	}
	s, ok := v.(ir.IRString)
	if !ok {
		r.fail(key, fmt.Errorf("expected hex string, got %T", v))
		return nil
	}
	if s == "" || s == "0x" {
		return []byte{}
	}
	b, err := hexutil.Decode(string(s))
	if err != nil {
		r.fail(key, err)
		return nil
	}
	return b
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
