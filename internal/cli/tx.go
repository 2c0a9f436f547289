package cli

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/roach88/lotbridge/internal/bridge"
	"github.com/roach88/lotbridge/internal/engine"
	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
	"github.com/roach88/lotbridge/internal/node"
)

// TxOptions holds flags shared by the transaction commands.
type TxOptions struct {
	*RootOptions
	From      string
	Raw       bool   // amounts are base units instead of token units
	RequestID string // optional; generated when empty
}

// call is a transaction ready for submission.
type call struct {
	Method ir.MethodRef
	Args   ir.IRObject
}

// callBuilder turns positional arguments into a call against the live node.
type callBuilder func(n *node.Node, opts *TxOptions, args []string) (call, error)

// newTxCommand builds a command that submits one transaction.
func newTxCommand(rootOpts *RootOptions, use, short, long string, args cobra.PositionalArgs, build callBuilder) (*cobra.Command, *TxOptions) {
	opts := &TxOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: long + `

Exit codes:
  0 - Transaction committed
  1 - Transaction reverted (the revert is still recorded in the log)
  2 - Command error (bad arguments, database not initialized, etc.)`,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTx(cmd, opts, args, build)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "sender address (required)")
	_ = cmd.MarkFlagRequired("from")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "amounts are base units")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "request id (default: generated UUIDv7)")

	return cmd, opts
}

func runTx(cmd *cobra.Command, opts *TxOptions, args []string, build callBuilder) error {
	ctx := cmd.Context()
	if !common.IsHexAddress(opts.From) {
		return NewExitError(ExitCommandError, fmt.Sprintf("--from: invalid address %q", opts.From))
	}

	sess, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	n := sess.Node()
	c, err := build(n, opts, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	entry, err := sess.engine.Submit(ctx, engine.Call{
		RequestID: opts.RequestID,
		From:      common.HexToAddress(opts.From).Hex(),
		Method:    c.Method,
		Args:      c.Args,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "transaction not applied", err)
	}

	f := newFormatter(cmd, opts.RootOptions)
	render := func(w io.Writer) { renderEntry(w, n, entry) }
	if !entry.Receipt.Committed() {
		r := entry.Receipt
		return f.Fail(ExitFailure, r.Code, fmt.Sprintf("transaction reverted: %s", r.Reason), entry, render)
	}
	return f.Emit(entry, render)
}

// NewTransferCommand creates the transfer command.
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	var token string
	cmd, _ := newTxCommand(rootOpts,
		"transfer <to> <amount>",
		"Transfer tokens",
		`Transfer legacy, bridge or lot tokens. The amount is in token units
(e.g. 1.5 for a 4-decimal token) unless --raw is set.

Transferring legacy tokens to the bridge this way is not a mint; the
bridge only credits tagged transfers (see mint).

Examples:
  lotbridge transfer 0xB0B... 25 --from 0xA11CE...
  lotbridge transfer 0xB0B... 1 --token lot --from 0xA11CE...`,
		cobra.ExactArgs(2),
		func(n *node.Node, opts *TxOptions, args []string) (call, error) {
			contract, t, err := resolveToken(n, token)
			if err != nil {
				return call{}, err
			}
			to, err := resolveAccount(n, args[0])
			if err != nil {
				return call{}, err
			}
			amount, err := parseAmount(t, args[1], opts.Raw)
			if err != nil {
				return call{}, err
			}
			return call{
				Method: ir.MethodRef(contract + ".transfer"),
				Args: ir.NewIRObjectFromPairs(
					ir.O("to", ledger.AddressValue(to)),
					ir.O("amount", ledger.AmountValue(amount)),
				),
			}, nil
		})
	cmd.Flags().StringVar(&token, "token", node.ContractLegacy, "token: legacy, bridge, lot or a symbol")
	return cmd
}

// NewMintCommand creates the mint command.
func NewMintCommand(rootOpts *RootOptions) *cobra.Command {
	var tag string
	cmd, _ := newTxCommand(rootOpts,
		"mint <amount>",
		"Wrap legacy tokens into bridge tokens",
		`Send legacy tokens to the bridge with the MINT tag. The bridge credits
the sender with the same amount of bridge tokens. The amount is in
legacy token units unless --raw is set.

Examples:
  lotbridge mint 1234.567 --from 0xA11CE...
  lotbridge mint 12345670 --raw --from 0xA11CE...`,
		cobra.ExactArgs(1),
		func(n *node.Node, opts *TxOptions, args []string) (call, error) {
			if _, err := hexutil.Decode(tag); err != nil {
				return call{}, fmt.Errorf("--tag: %w", err)
			}
			amount, err := parseAmount(n.Legacy, args[0], opts.Raw)
			if err != nil {
				return call{}, err
			}
			return call{
				Method: node.MethodLegacyTransferAndCall,
				Args: ir.NewIRObjectFromPairs(
					ir.O("to", ledger.AddressValue(n.Bridge.Address())),
					ir.O("amount", ledger.AmountValue(amount)),
					ir.O("tag", ir.IRString(tag)),
				),
			}, nil
		})
	cmd.Flags().StringVar(&tag, "tag", hexutil.Encode(bridge.MintTag[:]), "deposit tag (hex)")
	return cmd
}

// NewApproveCommand creates the approve command.
func NewApproveCommand(rootOpts *RootOptions) *cobra.Command {
	var token string
	cmd, _ := newTxCommand(rootOpts,
		"approve <spender> <amount>",
		"Approve a spender",
		`Set the allowance of spender over the sender's bridge (default) or lot
tokens. Approve the lot ledger before depositing.

Examples:
  lotbridge approve lot 20000 --from 0xA11CE...
  lotbridge approve 0xB0B... 3 --token lot --from 0xA11CE...`,
		cobra.ExactArgs(2),
		func(n *node.Node, opts *TxOptions, args []string) (call, error) {
			contract, t, err := resolveToken(n, token)
			if err != nil {
				return call{}, err
			}
			if contract == node.ContractLegacy {
				return call{}, fmt.Errorf("the legacy token has no allowances")
			}
			spender, err := resolveAccount(n, args[0])
			if err != nil {
				return call{}, err
			}
			amount, err := parseAmount(t, args[1], opts.Raw)
			if err != nil {
				return call{}, err
			}
			return call{
				Method: ir.MethodRef(contract + ".approve"),
				Args: ir.NewIRObjectFromPairs(
					ir.O("spender", ledger.AddressValue(spender)),
					ir.O("amount", ledger.AmountValue(amount)),
				),
			}, nil
		})
	cmd.Flags().StringVar(&token, "token", node.ContractBridge, "token: bridge, lot or a symbol")
	return cmd
}

// NewRedeemCommand creates the redeem command.
func NewRedeemCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newTxCommand(rootOpts,
		"redeem <amount>",
		"Unwrap bridge tokens into legacy tokens",
		`Burn bridge tokens and receive the same amount of legacy tokens back.
The amount is in bridge token units unless --raw is set.

Examples:
  lotbridge redeem 100 --from 0xA11CE...`,
		cobra.ExactArgs(1),
		func(n *node.Node, opts *TxOptions, args []string) (call, error) {
			amount, err := parseAmount(n.Bridge, args[0], opts.Raw)
			if err != nil {
				return call{}, err
			}
			return call{
				Method: node.MethodBridgeRedeem,
				Args:   ir.NewIRObjectFromPairs(ir.O("amount", ledger.AmountValue(amount))),
			}, nil
		})
	return cmd
}

// NewDepositCommand creates the deposit command.
func NewDepositCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newTxCommand(rootOpts,
		"deposit <amount>",
		"Deposit bridge tokens into lots",
		`Move bridge tokens into the lot ledger and receive one lot per 10,000
bridge tokens. The amount must be a whole number of lots and the lot
ledger must be approved for it. The amount is in bridge token units
unless --raw is set.

Examples:
  lotbridge approve lot 20000 --from 0xA11CE...
  lotbridge deposit 20000 --from 0xA11CE...`,
		cobra.ExactArgs(1),
		func(n *node.Node, opts *TxOptions, args []string) (call, error) {
			amount, err := parseAmount(n.Bridge, args[0], opts.Raw)
			if err != nil {
				return call{}, err
			}
			return call{
				Method: node.MethodLotDeposit,
				Args:   ir.NewIRObjectFromPairs(ir.O("amount", ledger.AmountValue(amount))),
			}, nil
		})
	return cmd
}

// NewRedeemLotsCommand creates the redeem-lots command.
func NewRedeemLotsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newTxCommand(rootOpts,
		"redeem-lots <lots>",
		"Redeem lots for bridge tokens",
		`Burn lots and receive 10,000 bridge tokens per lot.

Examples:
  lotbridge redeem-lots 1 --from 0xA11CE...`,
		cobra.ExactArgs(1),
		func(n *node.Node, opts *TxOptions, args []string) (call, error) {
			lots, err := ledger.ParseAmount(args[0])
			if err != nil {
				return call{}, err
			}
			return call{
				Method: node.MethodLotRedeem,
				Args:   ir.NewIRObjectFromPairs(ir.O("lots", ledger.AmountValue(lots))),
			}, nil
		})
	return cmd
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	cmd, _ := newTxCommand(rootOpts,
		"call <method> [args-json]",
		"Submit any method with JSON args",
		`Submit a transaction for any method, e.g. bridge.transferFrom. Args are
a JSON object in base units; addresses are 0x strings.

Examples:
  lotbridge call lot.transferFrom '{"from":"0xA11CE...","to":"0xB0B...","amount":"1"}' --from 0xCA01...`,
		cobra.RangeArgs(1, 2),
		func(n *node.Node, opts *TxOptions, args []string) (call, error) {
			method := ir.MethodRef(args[0])
			if method.Contract() == "" || method.Name() == "" {
				return call{}, fmt.Errorf("method %q: want <contract>.<method>", args[0])
			}
			callArgs := ir.IRObject{}
			if len(args) == 2 {
				v, err := ir.UnmarshalIRValue([]byte(args[1]))
				if err != nil {
					return call{}, fmt.Errorf("args: %w", err)
				}
				obj, ok := v.(ir.IRObject)
				if !ok {
					return call{}, fmt.Errorf("args: want a JSON object")
				}
				callArgs = obj
			}
			return call{Method: method, Args: callArgs}, nil
		})
	return cmd
}
