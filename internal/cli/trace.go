package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/roach88/lotbridge/internal/genesis"
	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/node"
	"github.com/roach88/lotbridge/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Sender  string
	Method  string
	FromSeq int64
	Limit   int
}

// TraceResult holds the selected log entries.
type TraceResult struct {
	Entries   []store.Entry `json:"entries"`
	Committed int           `json:"committed"`
	Reverted  int           `json:"reverted"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [tx-id]",
		Short: "Show recorded transactions",
		Long: `Show transactions from the log with their receipts and events, in seq
order. With a transaction id, show only that transaction.

Reverted transactions are listed with their revert code and reason;
they carry no events.

Examples:
  lotbridge trace
  lotbridge trace --sender 0xA11CE... --method lot.deposit
  lotbridge trace 3f1c0b...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Sender, "sender", "", "only transactions from this address")
	cmd.Flags().StringVar(&opts.Method, "method", "", "only this method, e.g. lot.deposit")
	cmd.Flags().Int64Var(&opts.FromSeq, "from-seq", 0, "start at this seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of transactions (0 = all)")

	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions, args []string) error {
	ctx := cmd.Context()

	st, err := openStore(ctx, opts.Config.DB, false)
	if err != nil {
		return err
	}
	defer st.Close()

	sender := opts.Sender
	if sender != "" {
		if !common.IsHexAddress(sender) {
			return NewExitError(ExitCommandError, fmt.Sprintf("--sender: invalid address %q", sender))
		}
		// The CLI records senders in checksum form.
		sender = common.HexToAddress(sender).Hex()
	}

	var entries []store.Entry
	if len(args) == 1 {
		entry, err := st.ReadEntry(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("transaction not found: %s", args[0]))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transaction", err)
		}
		entries = []store.Entry{entry}
	} else {
		entries, err = st.ReadLog(ctx, store.LogFilter{
			Sender:  sender,
			Method:  ir.MethodRef(opts.Method),
			FromSeq: opts.FromSeq,
			Limit:   opts.Limit,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read log", err)
		}
	}

	result := TraceResult{Entries: entries}
	for _, e := range entries {
		if e.Receipt.Committed() {
			result.Committed++
		} else {
			result.Reverted++
		}
	}
	if result.Entries == nil {
		result.Entries = []store.Entry{}
	}

	// Symbols and decimals only; balances are not replayed.
	n, err := deployedNode(ctx, st, opts.Config.DB, opts.Logger)
	if err != nil {
		return err
	}

	return newFormatter(cmd, opts.RootOptions).Emit(result, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No transactions found.")
			return
		}
		for _, e := range entries {
			renderEntry(w, n, e)
		}
		fmt.Fprintf(w, "\n%d transaction(s): %d committed, %d reverted\n", len(entries), result.Committed, result.Reverted)
	})
}

// deployedNode deploys the stored genesis without replaying the log.
func deployedNode(ctx context.Context, st *store.Store, path string, logger *slog.Logger) (*node.Node, error) {
	manifest, _, err := st.ReadGenesis(ctx)
	if err != nil {
		return nil, restoreError(path, err)
	}
	g, err := genesis.FromManifest(manifest)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid stored genesis", err)
	}
	n, _, err := node.Deploy(ctx, g, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to deploy genesis", err)
	}
	return n, nil
}
