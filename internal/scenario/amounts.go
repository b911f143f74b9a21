package scenario

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// parseUnits converts a human decimal into an integer amount with the given
// number of decimals. Empty input is zero.
func parseUnits(value string, decimals uint8) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows", value)
	}
	return out, nil
}

// parseFixed parses a plain decimal as a 1e18 fixed-point value.
func parseFixed(value string) (*uint256.Int, error) {
	return parseUnits(value, 18)
}

// FormatUnits renders an integer amount as a human decimal.
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}
