package epool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/epmath"
)

// View is the read surface of a pool the helper computes from.
type View interface {
	Address() common.Address
	GetRate() (*uint256.Int, error)
	GetTranche(eToken common.Address) (Tranche, error)
	GetTranches() []Tranche
	TotalSupply(eToken common.Address) (*uint256.Int, error)
	Scales() epmath.Scales
	FeeRate() *uint256.Int
}

// Helper answers quote and delta questions about a pool without mutating it.
type Helper struct {
	address common.Address
}

// NewHelper returns a helper identified by address.
func NewHelper(address common.Address) *Helper {
	return &Helper{address: address}
}

// Address returns the helper address.
func (h *Helper) Address() common.Address {
	return h.address
}

type quoteInputs struct {
	tranche epmath.Tranche
	supply  *uint256.Int
	rate    *uint256.Int
	scales  epmath.Scales
}

func (h *Helper) inputs(pool View, eToken common.Address) (quoteInputs, error) {
	t, err := pool.GetTranche(eToken)
	if err != nil {
		return quoteInputs{}, err
	}
	supply, err := pool.TotalSupply(eToken)
	if err != nil {
		return quoteInputs{}, err
	}
	rate, err := pool.GetRate()
	if err != nil {
		return quoteInputs{}, err
	}
	return quoteInputs{
		tranche: epmath.Tranche{ReserveA: t.ReserveA, ReserveB: t.ReserveB, TargetRatio: t.TargetRatio},
		supply:  supply,
		rate:    rate,
		scales:  pool.Scales(),
	}, nil
}

// CurrentRatio returns the tranche's value ratio at the current rate.
func (h *Helper) CurrentRatio(pool View, eToken common.Address) (*uint256.Int, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return nil, err
	}
	return epmath.CurrentRatio(in.tranche, in.rate, in.scales)
}

// TrancheDelta returns the trade restoring the tranche's target ratio.
func (h *Helper) TrancheDelta(pool View, eToken common.Address) (epmath.Delta, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return epmath.Delta{}, err
	}
	return epmath.TrancheDelta(in.tranche, in.rate, in.scales)
}

// Delta returns the netted trade over every tranche, ignoring eligibility.
func (h *Helper) Delta(pool View) (epmath.Delta, error) {
	rate, err := pool.GetRate()
	if err != nil {
		return epmath.Delta{}, err
	}
	views := pool.GetTranches()
	ts := make([]epmath.Tranche, 0, len(views))
	for _, t := range views {
		ts = append(ts, epmath.Tranche{ReserveA: t.ReserveA, ReserveB: t.ReserveB, TargetRatio: t.TargetRatio})
	}
	return epmath.AggregateDelta(ts, rate, pool.Scales())
}

// ETokenForTokenATokenB returns the shares a deposit would mint.
func (h *Helper) ETokenForTokenATokenB(pool View, eToken common.Address, amountA, amountB *uint256.Int) (*uint256.Int, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return nil, err
	}
	return epmath.ETokenForTokenATokenB(in.tranche, in.supply, amountA, amountB, in.rate, in.scales)
}

// TokenATokenBForEToken returns what issuing amount shares costs.
func (h *Helper) TokenATokenBForEToken(pool View, eToken common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return nil, nil, err
	}
	return epmath.TokenATokenBForEToken(in.tranche, in.supply, amount, in.rate, in.scales, epmath.Up)
}

// RedeemAmounts returns the gross payout for redeeming amount shares.
func (h *Helper) RedeemAmounts(pool View, eToken common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return nil, nil, err
	}
	return epmath.TokenATokenBForEToken(in.tranche, in.supply, amount, in.rate, in.scales, epmath.Down)
}

// FeeAFeeBForEToken returns the redemption fee on amount shares.
func (h *Helper) FeeAFeeBForEToken(pool View, eToken common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	grossA, grossB, err := h.RedeemAmounts(pool, eToken, amount)
	if err != nil {
		return nil, nil, err
	}
	return epmath.FeeAFeeB(grossA, grossB, pool.FeeRate())
}

func (h *Helper) currentRatio(in quoteInputs) (*uint256.Int, error) {
	return epmath.CurrentRatio(in.tranche, in.rate, in.scales)
}

// TokenATokenBForTokenA splits a TokenA-denominated value at the tranche's
// current ratio.
func (h *Helper) TokenATokenBForTokenA(pool View, eToken common.Address, totalA *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return nil, nil, err
	}
	ratio, err := h.currentRatio(in)
	if err != nil {
		return nil, nil, err
	}
	return epmath.TokenATokenBForTokenA(totalA, ratio, in.rate, in.scales, epmath.Down)
}

// TokenATokenBForTokenB splits a TokenB-denominated value at the tranche's
// current ratio.
func (h *Helper) TokenATokenBForTokenB(pool View, eToken common.Address, totalB *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return nil, nil, err
	}
	ratio, err := h.currentRatio(in)
	if err != nil {
		return nil, nil, err
	}
	return epmath.TokenATokenBForTokenB(totalB, ratio, in.rate, in.scales, epmath.Down)
}

// TokenAForTokenB returns the TokenA that pairs with amountB in the tranche.
func (h *Helper) TokenAForTokenB(pool View, eToken common.Address, amountB *uint256.Int) (*uint256.Int, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return nil, err
	}
	ratio, err := h.currentRatio(in)
	if err != nil {
		return nil, err
	}
	return epmath.TokenAForTokenB(amountB, ratio, in.rate, in.scales, epmath.Down)
}

// TokenBForTokenA returns the TokenB that pairs with amountA in the tranche.
func (h *Helper) TokenBForTokenA(pool View, eToken common.Address, amountA *uint256.Int) (*uint256.Int, error) {
	in, err := h.inputs(pool, eToken)
	if err != nil {
		return nil, err
	}
	ratio, err := h.currentRatio(in)
	if err != nil {
		return nil, err
	}
	return epmath.TokenBForTokenA(amountA, ratio, in.rate, in.scales, epmath.Down)
}

// TotalA values a pair in TokenA at the current rate.
func (h *Helper) TotalA(pool View, amountA, amountB *uint256.Int) (*uint256.Int, error) {
	rate, err := pool.GetRate()
	if err != nil {
		return nil, err
	}
	return epmath.TotalA(amountA, amountB, rate, pool.Scales(), epmath.Down)
}

// TotalB values a pair in TokenB at the current rate.
func (h *Helper) TotalB(pool View, amountA, amountB *uint256.Int) (*uint256.Int, error) {
	rate, err := pool.GetRate()
	if err != nil {
		return nil, err
	}
	return epmath.TotalB(amountA, amountB, rate, pool.Scales(), epmath.Down)
}
