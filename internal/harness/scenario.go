package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lotbridge/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Accounts maps names to 0x addresses.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	// Genesis overrides the default deployment. Nil uses genesis.Default().
	Genesis *GenesisSpec `yaml:"genesis,omitempty"`

	// Steps are submitted in order, one transaction each.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// GenesisSpec is a deployment manifest with named accounts.
type GenesisSpec struct {
	// Deployer defaults to genesis.DefaultDeployer.
	Deployer    string           `yaml:"deployer,omitempty"`
	Legacy      *TokenSpec       `yaml:"legacy,omitempty"`
	Bridge      *TokenSpec       `yaml:"bridge,omitempty"`
	Lot         *TokenSpec       `yaml:"lot,omitempty"`
	Allocations []AllocationSpec `yaml:"allocations,omitempty"`
}

// TokenSpec overrides token metadata. Empty fields keep the defaults.
type TokenSpec struct {
	Name     string `yaml:"name,omitempty"`
	Symbol   string `yaml:"symbol,omitempty"`
	Decimals *int   `yaml:"decimals,omitempty"`
}

// AllocationSpec is an initial legacy balance.
type AllocationSpec struct {
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// Step is one transaction.
type Step struct {
	// From is the sender, by name or address.
	From string `yaml:"from"`

	// Method is "<contract>.<method>", e.g. "lot.deposit".
	Method string `yaml:"method"`

	// Args are the method arguments. Strings starting with "@" name accounts.
	Args map[string]any `yaml:"args"`

	// Expect validates the receipt. Nil expects a commit.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected receipt.
type Expect struct {
	// Status is Committed or Reverted.
	Status string `yaml:"status"`

	// Code and Reason, when set, must match the revert exactly.
	Code   string `yaml:"code,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// Result is a subset match on the receipt result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Token is legacy, bridge or lot (or a token symbol).
	Token string `yaml:"token,omitempty"`

	// Account is used by balance.
	Account string `yaml:"account,omitempty"`

	// Owner and Spender are used by allowance.
	Owner   string `yaml:"owner,omitempty"`
	Spender string `yaml:"spender,omitempty"`

	// Amount is the expected value in base units (balance, supply, allowance).
	Amount string `yaml:"amount,omitempty"`

	// Name and Emitter select events (event_count). Emitter is optional.
	Name    string `yaml:"name,omitempty"`
	Emitter string `yaml:"emitter,omitempty"`

	// Count is the expected number of events (event_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance    = "balance"
	AssertSupply     = "supply"
	AssertAllowance  = "allowance"
	AssertEventCount = "event_count"
	AssertInvariants = "invariants"
)

// Receipt statuses accepted in expect clauses.
var validStatuses = []string{string(ir.StatusCommitted), string(ir.StatusReverted)}

// reservedNames are always defined and cannot be redefined in Accounts.
var reservedNames = []string{"deployer", "legacy", "bridge", "lot", "zero"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files directly under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for name, addr := range s.Accounts {
		if contains(reservedNames, name) {
			return fmt.Errorf("accounts: %q is a reserved name", name)
		}
		if strings.HasPrefix(name, "@") || name == "" {
			return fmt.Errorf("accounts: invalid name %q", name)
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("accounts.%s: invalid address %q", name, addr)
		}
	}

	for i, step := range s.Steps {
		if step.From == "" {
			return fmt.Errorf("steps[%d]: from is required", i)
		}
		if step.Method == "" {
			return fmt.Errorf("steps[%d]: method is required", i)
		}
		if step.Args == nil {
			return fmt.Errorf("steps[%d]: args is required (use {} if no args)", i)
		}
		if step.Expect != nil && !contains(validStatuses, step.Expect.Status) {
			return fmt.Errorf("steps[%d].expect: status must be one of %v, got %q", i, validStatuses, step.Expect.Status)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBalance:
		if a.Token == "" || a.Account == "" || a.Amount == "" {
			return fmt.Errorf("assertions[%d]: token, account and amount are required for balance", index)
		}
	case AssertSupply:
		if a.Token == "" || a.Amount == "" {
			return fmt.Errorf("assertions[%d]: token and amount are required for supply", index)
		}
	case AssertAllowance:
		if a.Token == "" || a.Owner == "" || a.Spender == "" || a.Amount == "" {
			return fmt.Errorf("assertions[%d]: token, owner, spender and amount are required for allowance", index)
		}
	case AssertEventCount:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertInvariants:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
