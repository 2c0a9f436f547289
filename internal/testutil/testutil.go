// Package testutil holds fixtures shared by package tests: well-known
// accounts, single-allocation genesis manifests and temporary stores.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotbridge/internal/genesis"
	"github.com/roach88/lotbridge/internal/store"
)

// Well-known accounts. They match the addresses used by the harness
// scenarios.
var (
	Alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	Bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	Carol = common.HexToAddress("0x000000000000000000000000000000000000CA01")
)

// Genesis returns the default deployment with supply legacy base units
// allocated to account.
func Genesis(t testing.TB, account common.Address, supply string) genesis.Genesis {
	t.Helper()
	g, err := genesis.Parse([]byte(fmt.Sprintf(`
deployer: %q
allocations: [{account: %q, amount: %q}]
`, genesis.DefaultDeployer.Hex(), account.Hex(), supply)), "test.cue")
	require.NoError(t, err)
	return g
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenStore opens a store in a fresh temp directory and returns it with its
// path. The store is closed at cleanup.
func OpenStore(t testing.TB) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lotbridge.db")
	return OpenStoreAt(t, path), path
}

// OpenStoreAt opens the store at path and closes it at cleanup. Opening
// the same path again sees everything written before.
func OpenStoreAt(t testing.TB, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
