package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/lotbridge/internal/engine"
	"github.com/roach88/lotbridge/internal/genesis"
)

// InitResult describes the deployment recorded in the database.
type InitResult struct {
	DB          string      `json:"db"`
	GenesisHash string      `json:"genesis_hash"`
	Deployer    string      `json:"deployer"`
	Tokens      []TokenInfo `json:"tokens"`
}

// TokenInfo is a deployed token.
type TokenInfo struct {
	Contract    string `json:"contract"`
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Deploy the ledgers into a new database",
		Long: `Deploy the legacy token, bridge and lot ledgers from a genesis manifest
and record the manifest in the database. Without --genesis the built-in
default is used: the whole legacy supply allocated to the default
deployer.

Running init again with the same manifest is a no-op. A different
manifest is rejected.

Examples:
  lotbridge init --db ./lotbridge.db
  lotbridge init --db ./lotbridge.db --genesis genesis.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().String("genesis", "", "genesis manifest (CUE or JSON)")

	return cmd
}

// loadGenesis reads path, or returns the default manifest when path is empty.
func loadGenesis(path string) (genesis.Genesis, error) {
	if path == "" {
		return genesis.Default(), nil
	}
	g, err := genesis.Load(path)
	if err != nil {
		return genesis.Genesis{}, WrapExitError(ExitCommandError, "invalid genesis", err)
	}
	return g, nil
}

func runInit(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()

	g, err := loadGenesis(opts.Config.Genesis)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, opts.Config.DB, true)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := engine.Initialize(ctx, st, g, engine.WithLogger(opts.Logger))
	if err != nil {
		return restoreError(opts.Config.DB, err)
	}

	result := InitResult{
		DB:          opts.Config.DB,
		GenesisHash: g.Hash(),
		Deployer:    g.Deployer.Hex(),
		Tokens:      tokenInfos(eng),
	}
	return newFormatter(cmd, opts).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Initialized %s\n", result.DB)
		fmt.Fprintf(w, "  genesis  %s\n", result.GenesisHash)
		fmt.Fprintf(w, "  deployer %s\n", result.Deployer)
		for _, t := range result.Tokens {
			fmt.Fprintf(w, "  %-8s %s %s (%s, %d decimals)\n", t.Contract, t.Address, t.Symbol, t.Name, t.Decimals)
		}
	})
}

func tokenInfos(eng *engine.Engine) []TokenInfo {
	n := eng.Node()
	infos := make([]TokenInfo, 0, len(contracts))
	n.View(func() {
		for _, c := range contracts {
			t, _ := n.Token(c)
			meta := t.Metadata()
			infos = append(infos, TokenInfo{
				Contract:    c,
				Address:     t.Address().Hex(),
				Name:        meta.Name,
				Symbol:      meta.Symbol,
				Decimals:    meta.Decimals,
				TotalSupply: t.TotalSupply().Dec(),
			})
		}
	})
	return infos
}
