package aggregate

import (
	"fmt"
	"math/big"
	"strings"
)

const shareDecimals = 18

var feeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

// feeFromNet recovers the redemption fee from the amount paid out. The pool
// rounds the fee up, so the result can be one unit low.
func feeFromNet(net *big.Int, feeRate *big.Int) *big.Int {
	if net == nil || feeRate == nil || feeRate.Sign() <= 0 || feeRate.Cmp(feeScale) >= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(net, feeRate)
	return fee.Div(fee, new(big.Int).Sub(feeScale, feeRate))
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func addressKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
