package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lotbridge/internal/ledger"
)

// BalanceOptions holds flags for the balance command.
type BalanceOptions struct {
	*RootOptions
	Token string
}

// Balance is one token balance.
type Balance struct {
	Token   string `json:"token"`
	Symbol  string `json:"symbol"`
	Account string `json:"account"`
	Amount  string `json:"amount"`  // base units
	Display string `json:"display"` // token units
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BalanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show token balances",
		Long: `Show an account's balances, rebuilt by replaying the database.
The account is a 0x address or a contract name (legacy, bridge, lot).

Examples:
  lotbridge balance 0xA11CE...
  lotbridge balance bridge --token legacy`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "only this token (legacy, bridge, lot or a symbol)")

	return cmd
}

func runBalance(cmd *cobra.Command, opts *BalanceOptions, ref string) error {
	sess, err := openSession(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	n := sess.Node()
	account, err := resolveAccount(n, ref)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid account", err)
	}

	names := contracts
	if opts.Token != "" {
		c, _, err := resolveToken(n, opts.Token)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid token", err)
		}
		names = []string{c}
	}

	balances := make([]Balance, 0, len(names))
	n.View(func() {
		for _, c := range names {
			t, _ := n.Token(c)
			meta := t.Metadata()
			v := t.BalanceOf(account)
			balances = append(balances, Balance{
				Token:   c,
				Symbol:  meta.Symbol,
				Account: account.Hex(),
				Amount:  v.Dec(),
				Display: ledger.FormatUnits(v, meta.Decimals),
			})
		}
	})

	return newFormatter(cmd, opts.RootOptions).Emit(balances, func(w io.Writer) {
		fmt.Fprintf(w, "%s\n", account.Hex())
		for _, b := range balances {
			fmt.Fprintf(w, "  %-7s %-8s %s\n", b.Token, b.Symbol, b.Display)
		}
	})
}
