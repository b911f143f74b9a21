package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/txn"
)

// ExactInputParams sells AmountIn of TokenIn for at least AmountOutMinimum
// of TokenOut on the pair at Fee.
type ExactInputParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32
	Recipient        common.Address
	Deadline         uint64
	AmountIn         *uint256.Int
	AmountOutMinimum *uint256.Int
}

// ExactOutputParams buys AmountOut of TokenOut for at most AmountInMaximum
// of TokenIn on the pair at Fee.
type ExactOutputParams struct {
	TokenIn         common.Address
	TokenOut        common.Address
	Fee             uint32
	Recipient       common.Address
	Deadline        uint64
	AmountOut       *uint256.Int
	AmountInMaximum *uint256.Int
}

// Router executes single-pair swaps, pulling the input from the caller.
type Router struct {
	env     *txn.Env
	address common.Address
	factory *Factory
}

func NewRouter(env *txn.Env, address common.Address, factory *Factory) *Router {
	return &Router{env: env, address: address, factory: factory}
}

func (r *Router) Address() common.Address {
	return r.address
}

func (r *Router) route(tokenIn, tokenOut common.Address, fee uint32) (*Pair, *uint256.Int, *uint256.Int, error) {
	pair, err := r.factory.GetPair(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, nil, nil, err
	}
	reserveIn, reserveOut, err := pair.ReservesFor(tokenIn)
	if err != nil {
		return nil, nil, nil, err
	}
	return pair, reserveIn, reserveOut, nil
}

// GetAmountOut quotes selling amountIn of tokenIn.
func (r *Router) GetAmountOut(tokenIn, tokenOut common.Address, fee uint32, amountIn *uint256.Int) (*uint256.Int, error) {
	_, reserveIn, reserveOut, err := r.route(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(amountIn, reserveIn, reserveOut, fee)
}

// GetAmountIn quotes buying amountOut of tokenOut.
func (r *Router) GetAmountIn(tokenIn, tokenOut common.Address, fee uint32, amountOut *uint256.Int) (*uint256.Int, error) {
	_, reserveIn, reserveOut, err := r.route(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, err
	}
	return GetAmountIn(amountOut, reserveIn, reserveOut, fee)
}

// SwapExactTokensForTokens sells exactly p.AmountIn and returns the output.
func (r *Router) SwapExactTokensForTokens(caller common.Address, p ExactInputParams) (*uint256.Int, error) {
	if r.env.Now() > p.Deadline {
		return nil, ErrExpired
	}
	pair, reserveIn, reserveOut, err := r.route(p.TokenIn, p.TokenOut, p.Fee)
	if err != nil {
		return nil, err
	}
	amountOut, err := GetAmountOut(p.AmountIn, reserveIn, reserveOut, p.Fee)
	if err != nil {
		return nil, err
	}
	if p.AmountOutMinimum != nil && amountOut.Lt(p.AmountOutMinimum) {
		return nil, ErrInsufficientOutput
	}
	if err := r.swap(caller, pair, p.TokenIn, p.AmountIn, amountOut, p.Recipient); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// SwapTokensForExactTokens buys exactly p.AmountOut and returns the input
// spent.
func (r *Router) SwapTokensForExactTokens(caller common.Address, p ExactOutputParams) (*uint256.Int, error) {
	if r.env.Now() > p.Deadline {
		return nil, ErrExpired
	}
	pair, reserveIn, reserveOut, err := r.route(p.TokenIn, p.TokenOut, p.Fee)
	if err != nil {
		return nil, err
	}
	amountIn, err := GetAmountIn(p.AmountOut, reserveIn, reserveOut, p.Fee)
	if err != nil {
		return nil, err
	}
	if p.AmountInMaximum != nil && amountIn.Gt(p.AmountInMaximum) {
		return nil, ErrExcessiveInput
	}
	if err := r.swap(caller, pair, p.TokenIn, amountIn, p.AmountOut, p.Recipient); err != nil {
		return nil, err
	}
	return amountIn, nil
}

func (r *Router) swap(caller common.Address, pair *Pair, tokenIn common.Address, amountIn, amountOut *uint256.Int, to common.Address) error {
	return r.env.Atomic(func() error {
		in := pair.Token0()
		amount0Out, amount1Out := new(uint256.Int), amountOut
		if tokenIn != in.Address() {
			in = pair.Token1()
			amount0Out, amount1Out = amountOut, new(uint256.Int)
		}
		if err := in.TransferFrom(r.address, caller, pair.Address(), amountIn); err != nil {
			return err
		}
		return pair.Swap(r.address, amount0Out, amount1Out, to, nil, nil)
	})
}
