package periphery

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/amm"
	"exposurePool/internal/epmath"
	"exposurePool/internal/token"
)

// flashSwap is the state of an in-flight flash swap rebalance between
// initiation and the pair's callback.
type flashSwap struct {
	pool      EPool
	pair      *amm.Pair
	initiator common.Address
	slippage  *uint256.Int

	borrowToken token.Token
	repayToken  token.Token
	borrowed    *uint256.Int

	delta    epmath.Delta
	received *uint256.Int
	cost     *uint256.Int
	subsidy  *uint256.Int
	called   bool
}

// FlashSwapEstimate describes the flash swap a rebalance would need.
type FlashSwapEstimate struct {
	Delta       epmath.Delta
	Pair        common.Address
	BorrowToken common.Address
	RepayToken  common.Address
	Borrowed    *uint256.Int
	Received    *uint256.Int
	Cost        *uint256.Int
	Shortfall   *uint256.Int
}

// legs returns the asset the pool needs and the asset it releases for delta.
func legs(pool EPool, d epmath.Delta) (borrowToken, repayToken token.Token, borrowed, received *uint256.Int) {
	if d.RChange == 1 {
		return pool.TokenA(), pool.TokenB(), d.DeltaA.Clone(), d.DeltaB.Clone()
	}
	return pool.TokenB(), pool.TokenA(), d.DeltaB.Clone(), d.DeltaA.Clone()
}

// EstimateFlashSwap prices the flash swap that would fund a full rebalance
// of pool now.
func (p *Periphery) EstimateFlashSwap(pool EPool) (FlashSwapEstimate, error) {
	delta, err := pool.RebalanceDelta()
	if err != nil {
		return FlashSwapEstimate{}, err
	}
	if delta.IsZero() {
		return FlashSwapEstimate{}, ErrNothingToRebalance
	}
	borrowToken, repayToken, borrowed, received := legs(pool, delta)
	pair, err := p.pairs.GetPair(borrowToken.Address(), repayToken.Address(), p.feeTier(pool))
	if err != nil {
		return FlashSwapEstimate{}, err
	}
	cost, err := repayCost(pair, repayToken, borrowed)
	if err != nil {
		return FlashSwapEstimate{}, err
	}
	shortfall := new(uint256.Int)
	if cost.Gt(received) {
		shortfall.Sub(cost, received)
	}
	return FlashSwapEstimate{
		Delta:       delta,
		Pair:        pair.Address(),
		BorrowToken: borrowToken.Address(),
		RepayToken:  repayToken.Address(),
		Borrowed:    borrowed,
		Received:    received,
		Cost:        cost,
		Shortfall:   shortfall,
	}, nil
}

func repayCost(pair *amm.Pair, repayToken token.Token, borrowed *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut, err := pair.ReservesFor(repayToken.Address())
	if err != nil {
		return nil, err
	}
	return amm.GetAmountIn(borrowed, reserveIn, reserveOut, pair.Fee())
}

// effectiveSlippage returns maxSlippage when it is set and below the
// configured ceiling, otherwise the ceiling.
func (p *Periphery) effectiveSlippage(maxSlippage *uint256.Int) *uint256.Int {
	if maxSlippage != nil && !maxSlippage.IsZero() && maxSlippage.Lt(p.maxFlashSwapSlippage) {
		return maxSlippage.Clone()
	}
	return p.maxFlashSwapSlippage.Clone()
}

// RebalanceWithFlashSwap fully rebalances pool with assets borrowed from
// the AMM pair. The pair lends the asset the pool needs, the pool releases
// the other asset and part of it repays the pair. Shortfalls are covered by
// the subsidy pool and then by the caller; leftovers go to the caller.
func (p *Periphery) RebalanceWithFlashSwap(caller common.Address, pool EPool, maxSlippage *uint256.Int) error {
	if err := p.approvedPool(pool); err != nil {
		return err
	}
	if p.pending != nil {
		return ErrUnexpectedCallback
	}
	delta, err := pool.RebalanceDelta()
	if err != nil {
		return err
	}
	if delta.IsZero() {
		return ErrNothingToRebalance
	}
	borrowToken, repayToken, borrowed, _ := legs(pool, delta)
	pair, err := p.pairs.GetPair(borrowToken.Address(), repayToken.Address(), p.feeTier(pool))
	if err != nil {
		return err
	}

	fs := &flashSwap{
		pool:        pool,
		pair:        pair,
		initiator:   caller,
		slippage:    p.effectiveSlippage(maxSlippage),
		borrowToken: borrowToken,
		repayToken:  repayToken,
		borrowed:    borrowed,
	}
	amount0Out, amount1Out := borrowed, new(uint256.Int)
	if pair.Token0().Address() != borrowToken.Address() {
		amount0Out, amount1Out = new(uint256.Int), borrowed
	}

	p.pending = fs
	defer func() { p.pending = nil }()

	return p.env.Atomic(func() error {
		if err := pair.Swap(p.address, amount0Out, amount1Out, p.address, p, pool.Address().Bytes()); err != nil {
			return err
		}
		if !fs.called {
			return ErrUnexpectedCallback
		}
		return p.finalize(fs)
	})
}

// OnFlashSwap is the pair callback. It only accepts the pair and pool of
// the flash swap this periphery initiated.
func (p *Periphery) OnFlashSwap(pair, sender common.Address, amount0Out, amount1Out *uint256.Int, data []byte) error {
	fs := p.pending
	if fs == nil || fs.called || pair != fs.pair.Address() || sender != p.address {
		return ErrUnexpectedCallback
	}
	if !bytes.Equal(data, fs.pool.Address().Bytes()) {
		return ErrUnexpectedCallback
	}
	fs.called = true

	cost, err := repayCost(fs.pair, fs.repayToken, fs.borrowed)
	if err != nil {
		return err
	}
	delta, err := fs.pool.Rebalance(p.address, epmath.EPoolSF)
	if err != nil {
		return err
	}
	_, _, borrowed, received := legs(fs.pool, delta)
	if !borrowed.Eq(fs.borrowed) || received.IsZero() {
		return ErrNothingToRebalance
	}

	// cost/received must not exceed the slippage ratio.
	limit, err := epmath.MulDiv(received, fs.slippage, epmath.EPoolSF, epmath.Down)
	if err != nil {
		return err
	}
	if cost.Gt(limit) {
		return ErrExcessiveSlippage
	}

	fs.delta, fs.received, fs.cost, fs.subsidy = delta, received, cost, new(uint256.Int)
	if cost.Gt(received) {
		if err := p.coverShortfall(fs, new(uint256.Int).Sub(cost, received)); err != nil {
			return err
		}
	}
	return fs.repayToken.Transfer(p.address, fs.pair.Address(), cost)
}

func (p *Periphery) coverShortfall(fs *flashSwap, shortfall *uint256.Int) error {
	if p.subsidy != nil && p.subsidy.IsBeneficiary(p.address) {
		available := fs.repayToken.BalanceOf(p.subsidy.Address())
		if amount := epmath.Min(shortfall, available); !amount.IsZero() {
			if err := p.subsidy.RequestSubsidy(p.address, fs.repayToken, amount); err != nil {
				return err
			}
			fs.subsidy = amount
			shortfall = new(uint256.Int).Sub(shortfall, amount)
		}
	}
	if shortfall.IsZero() {
		return nil
	}
	return fs.repayToken.TransferFrom(p.address, fs.initiator, p.address, shortfall)
}

func (p *Periphery) finalize(fs *flashSwap) error {
	paid := new(uint256.Int).Add(fs.received, fs.subsidy)
	if paid.Gt(fs.cost) {
		leftover := new(uint256.Int).Sub(paid, fs.cost)
		if err := fs.repayToken.Transfer(p.address, fs.initiator, leftover); err != nil {
			return err
		}
	}
	p.logger.Info("rebalanced with flash swap",
		zap.String("epool", fs.pool.Address().Hex()),
		zap.String("keeper", fs.initiator.Hex()),
		zap.String("borrowed", fs.borrowed.Dec()),
		zap.String("received", fs.received.Dec()),
		zap.String("cost", fs.cost.Dec()),
		zap.String("subsidy", fs.subsidy.Dec()),
	)
	return p.events.Emit("RebalancedWithFlashSwap", fs.pool.Address(), fs.delta.DeltaA, fs.delta.DeltaB, fs.delta.RChange, fs.subsidy, fs.initiator)
}
