// Package genesis loads and validates the deployment manifest: who deploys
// the ledgers, their token metadata, and the initial legacy allocations.
//
// Manifests are CUE (plain JSON is valid CUE) and are unified with an
// embedded schema before decoding, so every manifest that loads is complete
// and concrete. The canonical form of a manifest is hashed and stored with
// the event log; replay rebuilds the exact same deployment from it.
package genesis

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
)

//go:embed schema.cue
var schemaCUE string

// Allocation is an initial legacy balance.
type Allocation struct {
	Account common.Address
	Amount  *uint256.Int
}

// Genesis is a validated deployment manifest.
type Genesis struct {
	Deployer    common.Address
	Legacy      ledger.Metadata
	Bridge      ledger.Metadata
	Lot         ledger.Metadata
	Allocations []Allocation
}

// DefaultDeployer is the deployer used by Default.
var DefaultDeployer = common.HexToAddress("0x00000000000000000000000000000000000D3910")

// DefaultSupply is the legacy supply Default allocates to the deployer:
// one billion tokens at 4 decimals.
const DefaultSupply = "10000000000000"

// Default returns the manifest used when none is given: default token
// metadata and the whole legacy supply allocated to DefaultDeployer.
func Default() Genesis {
	g, err := Parse([]byte(fmt.Sprintf(`{
	deployer: %q
	allocations: [{account: %q, amount: %q}]
}`, DefaultDeployer.Hex(), DefaultDeployer.Hex(), DefaultSupply)), "default.cue")
	if err != nil {
		panic(fmt.Sprintf("default genesis: %v", err))
	}
	return g
}

// Load reads and validates a manifest file.
func Load(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	return Parse(data, path)
}

// manifest mirrors the schema for decoding.
type manifest struct {
	Deployer    string          `json:"deployer"`
	Legacy      ledger.Metadata `json:"legacy"`
	Bridge      ledger.Metadata `json:"bridge"`
	Lot         ledger.Metadata `json:"lot"`
	Allocations []struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
	} `json:"allocations"`
}

// Parse validates src against the schema and decodes it.
func Parse(src []byte, filename string) (Genesis, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Genesis{}, fmt.Errorf("compile genesis schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Genesis{}, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Genesis")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Genesis{}, formatCUEError(err)
	}

	var m manifest
	if err := unified.Decode(&m); err != nil {
		return Genesis{}, formatCUEError(err)
	}
	return fromManifest(m)
}

func fromManifest(m manifest) (Genesis, error) {
	if !common.IsHexAddress(m.Deployer) {
		return Genesis{}, fmt.Errorf("genesis: invalid deployer %q", m.Deployer)
	}
	g := Genesis{
		Deployer: common.HexToAddress(m.Deployer),
		Legacy:   m.Legacy,
		Bridge:   m.Bridge,
		Lot:      m.Lot,
	}
	total := new(uint256.Int)
	for i, a := range m.Allocations {
		amount, err := ledger.ParseAmount(a.Amount)
		if err != nil {
			return Genesis{}, fmt.Errorf("genesis: allocations[%d]: %w", i, err)
		}
		if _, overflow := total.AddOverflow(total, amount); overflow {
			return Genesis{}, fmt.Errorf("genesis: allocations overflow uint256")
		}
		g.Allocations = append(g.Allocations, Allocation{
			Account: common.HexToAddress(a.Account),
			Amount:  amount,
		})
	}
	return g, nil
}

// Manifest returns the canonical record form of g.
func (g Genesis) Manifest() ir.IRObject {
	allocs := make(ir.IRArray, len(g.Allocations))
	for i, a := range g.Allocations {
		allocs[i] = ir.NewIRObjectFromPairs(
			ir.O("account", ledger.AddressValue(a.Account)),
			ir.O("amount", ledger.AmountValue(a.Amount)),
		)
	}
	return ir.NewIRObjectFromPairs(
		ir.O("deployer", ledger.AddressValue(g.Deployer)),
		ir.O("legacy", tokenValue(g.Legacy)),
		ir.O("bridge", tokenValue(g.Bridge)),
		ir.O("lot", tokenValue(g.Lot)),
		ir.O("allocations", allocs),
	)
}

// Hash returns the content-addressed hash of the manifest.
func (g Genesis) Hash() string {
	h, err := ir.GenesisHash(g.Manifest())
	if err != nil {
		// Manifest only holds strings and ints.
		panic(err)
	}
	return h
}

// FromManifest rebuilds a Genesis from its canonical record form, as read
// back from the store. The record is re-validated against the schema.
func FromManifest(obj ir.IRObject) (Genesis, error) {
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return Genesis{}, fmt.Errorf("genesis manifest: %w", err)
	}
	return Parse(data, "manifest.json")
}

func tokenValue(m ledger.Metadata) ir.IRObject {
	return ir.NewIRObjectFromPairs(
		ir.O("name", ir.IRString(m.Name)),
		ir.O("symbol", ir.IRString(m.Symbol)),
		ir.O("decimals", ir.IRInt(int64(m.Decimals))),
	)
}

// formatCUEError reduces a CUE error list to its first error with position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("genesis: %w", err)
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		pos := positions[0]
		return fmt.Errorf("genesis: %s:%d:%d: %v", pos.Filename(), pos.Line(), pos.Column(), first)
	}
	return fmt.Errorf("genesis: %v", first)
}
