package epmath

import (
	"github.com/holiman/uint256"

	"exposurePool/internal/fault"
)

var (
	ErrOverflow       = fault.New(fault.Arithmetic, "epmath: overflow")
	ErrUnderflow      = fault.New(fault.Arithmetic, "epmath: underflow")
	ErrDivisionByZero = fault.New(fault.Arithmetic, "epmath: division by zero")
	ErrZeroRate       = fault.New(fault.Arithmetic, "epmath: zero rate")
)

// Rounding selects the direction of every division in a computation.
type Rounding int

const (
	// Down is used for amounts the pool pays out.
	Down Rounding = iota
	// Up is used for amounts the pool collects.
	Up
)

var (
	// EPoolSF is the base of ratios, rates and fee rates.
	EPoolSF = uint256.NewInt(1e18)
	// SFactorI is the scaling factor of oracle rates.
	SFactorI = uint256.NewInt(1e18)
	// SFactorE is the scaling factor of eTokens.
	SFactorE = uint256.NewInt(1e18)
	// MaxRatio is returned as the ratio of a tranche holding no TokenB.
	MaxRatio = new(uint256.Int).SetAllOne()
)

// Scales holds 10^decimals for both pool assets.
type Scales struct {
	A *uint256.Int
	B *uint256.Int
}

// ScaleFor returns 10^decimals.
func ScaleFor(decimals uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
}

// NewScales builds Scales from token decimals.
func NewScales(decimalsA, decimalsB uint8) Scales {
	return Scales{A: ScaleFor(decimalsA), B: ScaleFor(decimalsB)}
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns x-y or ErrUnderflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// Mul returns x*y or ErrOverflow.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDiv returns x*y/d with a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int, r Rounding) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	if r == Up && !new(uint256.Int).MulMod(x, y, d).IsZero() {
		return Add(z, uint256.NewInt(1))
	}
	return z, nil
}

// AbsDiff returns |x-y|.
func AbsDiff(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Sub(y, x)
	}
	return new(uint256.Int).Sub(x, y)
}

// Min returns the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}

// Max returns the larger of x and y.
func Max(x, y *uint256.Int) *uint256.Int {
	if x.Gt(y) {
		return x
	}
	return y
}

// Elapsed reports whether interval seconds have passed since since. It never
// wraps: a clock behind since is not elapsed.
func Elapsed(now, since, interval uint64) bool {
	return now >= since && now-since >= interval
}

// Zero returns a new zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// normalize converts a native amount with scale s to the 1e18 base.
func normalize(amount, s *uint256.Int, r Rounding) (*uint256.Int, error) {
	return MulDiv(amount, EPoolSF, s, r)
}
