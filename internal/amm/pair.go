package amm

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/events"
	"exposurePool/internal/fault"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

// FeeDenominator is the unit of a fee tier: 3000 is 0.3%.
const FeeDenominator = 1_000_000

var (
	ErrIdenticalTokens       = fault.New(fault.State, "amm: identical tokens")
	ErrInvalidFeeTier        = fault.New(fault.State, "amm: invalid fee tier")
	ErrPairExists            = fault.New(fault.State, "amm: pair exists")
	ErrUnknownPair           = fault.New(fault.State, "amm: unknown pair")
	ErrInsufficientLiquidity = fault.New(fault.Insufficiency, "amm: insufficient liquidity")
	ErrInsufficientInput     = fault.New(fault.Insufficiency, "amm: insufficient input amount")
	ErrInsufficientOutput    = fault.New(fault.Insufficiency, "amm: insufficient output amount")
	ErrExcessiveInput        = fault.New(fault.Insufficiency, "amm: excessive input amount")
	ErrInvalidTo             = fault.New(fault.State, "amm: invalid to")
	ErrK                     = fault.New(fault.Insufficiency, "amm: k")
	ErrLocked                = fault.New(fault.State, "amm: locked")
	ErrExpired               = fault.New(fault.Policy, "amm: expired")
)

// Callee receives the borrowed amounts of a flash swap before the pair
// checks that it has been repaid.
type Callee interface {
	OnFlashSwap(pair, sender common.Address, amount0Out, amount1Out *uint256.Int, data []byte) error
}

// Pair is a constant-product pool over two tokens ordered by address.
type Pair struct {
	env    *txn.Env
	events *events.Emitter
	logger *zap.Logger

	address  common.Address
	token0   token.Token
	token1   token.Token
	fee      uint32
	reserve0 *uint256.Int
	reserve1 *uint256.Int
	locked   bool
}

// SortTokens orders two token addresses the way pairs store them.
func SortTokens(a, b common.Address) (common.Address, common.Address, error) {
	switch bytes.Compare(a.Bytes(), b.Bytes()) {
	case 0:
		return common.Address{}, common.Address{}, ErrIdenticalTokens
	case 1:
		return b, a, nil
	default:
		return a, b, nil
	}
}

func newPair(env *txn.Env, address common.Address, token0, token1 token.Token, fee uint32, logger *zap.Logger) *Pair {
	return &Pair{
		env:      env,
		events:   events.NewEmitter(env, events.Pair, address),
		logger:   logger,
		address:  address,
		token0:   token0,
		token1:   token1,
		fee:      fee,
		reserve0: new(uint256.Int),
		reserve1: new(uint256.Int),
	}
}

func (p *Pair) Address() common.Address { return p.address }
func (p *Pair) Token0() token.Token     { return p.token0 }
func (p *Pair) Token1() token.Token     { return p.token1 }
func (p *Pair) Fee() uint32             { return p.fee }

// GetReserves returns the reserves as of the last sync.
func (p *Pair) GetReserves() (*uint256.Int, *uint256.Int) {
	return p.reserve0.Clone(), p.reserve1.Clone()
}

// ReservesFor returns the reserves ordered as (in, out) for a swap from
// tokenIn.
func (p *Pair) ReservesFor(tokenIn common.Address) (*uint256.Int, *uint256.Int, error) {
	switch tokenIn {
	case p.token0.Address():
		return p.reserve0.Clone(), p.reserve1.Clone(), nil
	case p.token1.Address():
		return p.reserve1.Clone(), p.reserve0.Clone(), nil
	default:
		return nil, nil, ErrUnknownPair
	}
}

// Sync sets the reserves to the current balances. Liquidity is added by
// transferring tokens to the pair and syncing.
func (p *Pair) Sync() error {
	return p.env.Atomic(func() error {
		return p.update(p.token0.BalanceOf(p.address), p.token1.BalanceOf(p.address))
	})
}

// Swap sends the requested outputs to to. With a callee the outputs are
// lent first and the callee must pay the pair back before Swap returns.
// The pair then requires the fee-adjusted product of its balances to be at
// least the product of the old reserves.
func (p *Pair) Swap(caller common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, callee Callee, data []byte) error {
	if p.locked {
		return ErrLocked
	}
	if amount0Out.IsZero() && amount1Out.IsZero() {
		return ErrInsufficientOutput
	}
	if !amount0Out.Lt(p.reserve0) || !amount1Out.Lt(p.reserve1) {
		return ErrInsufficientLiquidity
	}
	if to == p.token0.Address() || to == p.token1.Address() {
		return ErrInvalidTo
	}

	p.locked = true
	defer func() { p.locked = false }()

	return p.env.Atomic(func() error {
		if !amount0Out.IsZero() {
			if err := p.token0.Transfer(p.address, to, amount0Out); err != nil {
				return err
			}
		}
		if !amount1Out.IsZero() {
			if err := p.token1.Transfer(p.address, to, amount1Out); err != nil {
				return err
			}
		}
		if callee != nil {
			if err := callee.OnFlashSwap(p.address, caller, amount0Out.Clone(), amount1Out.Clone(), data); err != nil {
				return err
			}
		}

		balance0 := p.token0.BalanceOf(p.address)
		balance1 := p.token1.BalanceOf(p.address)
		amount0In := amountIn(balance0, p.reserve0, amount0Out)
		amount1In := amountIn(balance1, p.reserve1, amount1Out)
		if amount0In.IsZero() && amount1In.IsZero() {
			return ErrInsufficientInput
		}
		if err := p.checkK(balance0, balance1, amount0In, amount1In); err != nil {
			return err
		}
		if err := p.update(balance0, balance1); err != nil {
			return err
		}
		p.logger.Debug("pair swap",
			zap.String("pair", p.address.Hex()),
			zap.String("amount0_in", amount0In.Dec()),
			zap.String("amount1_in", amount1In.Dec()),
			zap.String("amount0_out", amount0Out.Dec()),
			zap.String("amount1_out", amount1Out.Dec()),
		)
		return p.events.Emit("Swap", caller, amount0In, amount1In, amount0Out, amount1Out, to)
	})
}

// amountIn is what arrived on top of reserve - out.
func amountIn(balance, reserve, out *uint256.Int) *uint256.Int {
	remaining := new(uint256.Int).Sub(reserve, out)
	if balance.Gt(remaining) {
		return new(uint256.Int).Sub(balance, remaining)
	}
	return new(uint256.Int)
}

func (p *Pair) checkK(balance0, balance1, amount0In, amount1In *uint256.Int) error {
	adjusted0, err := adjustedBalance(balance0, amount0In, p.fee)
	if err != nil {
		return err
	}
	adjusted1, err := adjustedBalance(balance1, amount1In, p.fee)
	if err != nil {
		return err
	}
	after, overflow := new(uint256.Int).MulOverflow(adjusted0, adjusted1)
	if overflow {
		return fault.New(fault.Arithmetic, "amm: k overflow")
	}
	before, overflow := new(uint256.Int).MulOverflow(p.reserve0, p.reserve1)
	if overflow {
		return fault.New(fault.Arithmetic, "amm: k overflow")
	}
	before, overflow = before.MulOverflow(before, uint256.NewInt(FeeDenominator*FeeDenominator))
	if overflow {
		return fault.New(fault.Arithmetic, "amm: k overflow")
	}
	if after.Lt(before) {
		return ErrK
	}
	return nil
}

// adjustedBalance returns balance*1e6 - in*fee.
func adjustedBalance(balance, in *uint256.Int, fee uint32) (*uint256.Int, error) {
	scaled, overflow := new(uint256.Int).MulOverflow(balance, uint256.NewInt(FeeDenominator))
	if overflow {
		return nil, fault.New(fault.Arithmetic, "amm: balance overflow")
	}
	charged, overflow := new(uint256.Int).MulOverflow(in, uint256.NewInt(uint64(fee)))
	if overflow {
		return nil, fault.New(fault.Arithmetic, "amm: balance overflow")
	}
	return scaled.Sub(scaled, charged), nil
}

func (p *Pair) update(balance0, balance1 *uint256.Int) error {
	prev0, prev1 := p.reserve0, p.reserve1
	p.reserve0, p.reserve1 = balance0.Clone(), balance1.Clone()
	p.env.Record(func() { p.reserve0, p.reserve1 = prev0, prev1 })
	return p.events.Emit("Sync", balance0, balance1)
}

// GetAmountOut returns the output of selling amountIn against the reserves.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, fee uint32) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInput
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	withFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(uint64(FeeDenominator-fee)))
	if overflow {
		return nil, fault.New(fault.Arithmetic, "amm: amount overflow")
	}
	numerator, overflow := new(uint256.Int).MulOverflow(withFee, reserveOut)
	if overflow {
		return nil, fault.New(fault.Arithmetic, "amm: amount overflow")
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(FeeDenominator))
	if overflow {
		return nil, fault.New(fault.Arithmetic, "amm: amount overflow")
	}
	if denominator, overflow = denominator.AddOverflow(denominator, withFee); overflow {
		return nil, fault.New(fault.Arithmetic, "amm: amount overflow")
	}
	return numerator.Div(numerator, denominator), nil
}

// GetAmountIn returns the input needed to buy amountOut from the reserves.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, fee uint32) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutput
	}
	if reserveIn.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, fault.New(fault.Arithmetic, "amm: amount overflow")
	}
	if numerator, overflow = numerator.MulOverflow(numerator, uint256.NewInt(FeeDenominator)); overflow {
		return nil, fault.New(fault.Arithmetic, "amm: amount overflow")
	}
	denominator, overflow := new(uint256.Int).MulOverflow(
		new(uint256.Int).Sub(reserveOut, amountOut), uint256.NewInt(uint64(FeeDenominator-fee)))
	if overflow {
		return nil, fault.New(fault.Arithmetic, "amm: amount overflow")
	}
	in := numerator.Div(numerator, denominator)
	return in.AddUint64(in, 1), nil
}
