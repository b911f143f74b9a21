package epmath

import "github.com/holiman/uint256"

// TotalA returns the value of (amountA, amountB) in native TokenA units.
func TotalA(amountA, amountB, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, error) {
	bInA, err := TokenAValueOfB(amountB, rate, s, r)
	if err != nil {
		return nil, err
	}
	return Add(amountA, bInA)
}

// TotalB returns the value of (amountA, amountB) in native TokenB units.
func TotalB(amountA, amountB, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, error) {
	aInB, err := TokenBValueOfA(amountA, rate, s, r)
	if err != nil {
		return nil, err
	}
	return Add(amountB, aInB)
}

// TokenAValueOfB converts amountB to native TokenA at rate.
func TokenAValueOfB(amountB, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, error) {
	if rate.IsZero() {
		return nil, ErrZeroRate
	}
	num, err := Mul(s.A, SFactorI)
	if err != nil {
		return nil, err
	}
	den, err := Mul(s.B, rate)
	if err != nil {
		return nil, err
	}
	return MulDiv(amountB, num, den, r)
}

// TokenBValueOfA converts amountA to native TokenB at rate.
func TokenBValueOfA(amountA, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, error) {
	num, err := Mul(s.B, rate)
	if err != nil {
		return nil, err
	}
	den, err := Mul(s.A, SFactorI)
	if err != nil {
		return nil, err
	}
	return MulDiv(amountA, num, den, r)
}

// TokenAForTokenB returns the TokenA amount that pairs with amountB at ratio.
func TokenAForTokenB(amountB, ratio, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, error) {
	bInA, err := TokenAValueOfB(amountB, rate, s, r)
	if err != nil {
		return nil, err
	}
	return MulDiv(bInA, ratio, EPoolSF, r)
}

// TokenBForTokenA returns the TokenB amount that pairs with amountA at ratio.
func TokenBForTokenA(amountA, ratio, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, error) {
	aInB, err := TokenBValueOfA(amountA, rate, s, r)
	if err != nil {
		return nil, err
	}
	return MulDiv(aInB, EPoolSF, ratio, r)
}

// TokenATokenBForTokenA splits a value given in TokenA into a pair holding
// ratio of value in TokenA.
func TokenATokenBForTokenA(totalA, ratio, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, *uint256.Int, error) {
	denom, err := Add(EPoolSF, ratio)
	if err != nil {
		return nil, nil, err
	}
	amountA, err := MulDiv(totalA, ratio, denom, r)
	if err != nil {
		return nil, nil, err
	}
	restA, err := MulDiv(totalA, EPoolSF, denom, r)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := TokenBValueOfA(restA, rate, s, r)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// TokenATokenBForTokenB splits a value given in TokenB into a pair holding
// ratio of value in TokenA.
func TokenATokenBForTokenB(totalB, ratio, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, *uint256.Int, error) {
	denom, err := Add(EPoolSF, ratio)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := MulDiv(totalB, EPoolSF, denom, r)
	if err != nil {
		return nil, nil, err
	}
	restB, err := MulDiv(totalB, ratio, denom, r)
	if err != nil {
		return nil, nil, err
	}
	amountA, err := TokenAValueOfB(restB, rate, s, r)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// ETokenForTokenATokenB returns the shares minted for a deposit into t.
// The first deposit mints sqrt(value * 1e18) with value in 18-decimal TokenA.
func ETokenForTokenATokenB(t Tranche, supply, amountA, amountB, rate *uint256.Int, s Scales) (*uint256.Int, error) {
	amountsA, err := TotalA(amountA, amountB, rate, s, Down)
	if err != nil {
		return nil, err
	}
	if t.IsEmpty() || supply.IsZero() {
		value, err := normalize(amountsA, s.A, Down)
		if err != nil {
			return nil, err
		}
		sq, err := Mul(value, SFactorE)
		if err != nil {
			return nil, err
		}
		return new(uint256.Int).Sqrt(sq), nil
	}
	reservesA, err := TotalA(t.ReserveA, t.ReserveB, rate, s, Up)
	if err != nil {
		return nil, err
	}
	return MulDiv(supply, amountsA, reservesA, Down)
}

// TokenATokenBForEToken returns the amounts backing shares of t.
// Issuance quotes with Up, payouts with Down.
func TokenATokenBForEToken(t Tranche, supply, shares, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, *uint256.Int, error) {
	if t.IsEmpty() || supply.IsZero() {
		value, err := MulDiv(shares, shares, SFactorE, r)
		if err != nil {
			return nil, nil, err
		}
		totalA, err := MulDiv(value, s.A, EPoolSF, r)
		if err != nil {
			return nil, nil, err
		}
		return TokenATokenBForTokenA(totalA, t.TargetRatio, rate, s, r)
	}
	amountA, err := MulDiv(t.ReserveA, shares, supply, r)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := MulDiv(t.ReserveB, shares, supply, r)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// FeeAFeeB returns the fee on each leg, rounded up.
func FeeAFeeB(amountA, amountB, feeRate *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	feeA, err := MulDiv(amountA, feeRate, EPoolSF, Up)
	if err != nil {
		return nil, nil, err
	}
	feeB, err := MulDiv(amountB, feeRate, EPoolSF, Up)
	if err != nil {
		return nil, nil, err
	}
	return feeA, feeB, nil
}
