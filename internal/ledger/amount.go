package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/roach88/lotbridge/internal/ir"
)

// ParseAmount parses a base-unit amount written in decimal or 0x-prefixed
// hex. Fractional values are rejected; callers convert display units first.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex amount %q: %w", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// MustAmount is like ParseAmount but panics on error.
// Use only in tests or for constants.
func MustAmount(s string) *uint256.Int {
	v, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders base units with the given number of decimals,
// e.g. FormatUnits(1234567, 4) == "123.4567". Display only.
func FormatUnits(v *uint256.Int, decimals uint8) string {
	if v == nil {
		v = new(uint256.Int)
	}
	d := decimal.NewFromBigInt(v.ToBig(), -int32(decimals))
	return d.StringFixed(int32(decimals))
}

// ParseUnits converts a display value ("123.4567") into base units. It fails
// when the value has more fractional digits than the token supports.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %q", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("value %q has more than %d decimals", s, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("value %q overflows uint256", s)
	}
	return v, nil
}

// AmountValue encodes an amount for records: a decimal string, since
// uint256 does not fit IRInt.
func AmountValue(v *uint256.Int) ir.IRString {
	if v == nil {
		return "0"
	}
	return ir.IRString(v.Dec())
}

// AddressValue encodes an address for records as EIP-55 checksummed hex.
func AddressValue(a common.Address) ir.IRString {
	return ir.IRString(a.Hex())
}
