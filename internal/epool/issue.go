package epool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/epmath"
)

// IssueExact mints amount eTokens for caller, pulling TokenA and TokenB at
// the tranche's current ratio. Amounts are rounded up.
func (p *Pool) IssueExact(caller, eToken common.Address, amount *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	if p.controller.PausedIssuance() {
		return nil, nil, ErrPausedIssuance
	}
	t, ok := p.tranches[eToken]
	if !ok {
		return nil, nil, ErrUnknownTranche
	}
	if amount == nil || amount.IsZero() {
		return nil, nil, ErrZeroAmount
	}

	err = p.env.Atomic(func() error {
		rate, err := p.GetRate()
		if err != nil {
			return err
		}
		amountA, amountB, err = epmath.TokenATokenBForEToken(t.math(), t.eToken.TotalSupply(), amount, rate, p.scales, epmath.Up)
		if err != nil {
			return err
		}
		if amountA.IsZero() && amountB.IsZero() {
			return ErrZeroAmount
		}
		if err := p.pull(caller, amountA, amountB); err != nil {
			return err
		}
		if err := t.eToken.Mint(p.address, caller, amount); err != nil {
			return err
		}
		reserveA, err := epmath.Add(t.reserveA, amountA)
		if err != nil {
			return err
		}
		reserveB, err := epmath.Add(t.reserveB, amountB)
		if err != nil {
			return err
		}
		p.setUint(&t.reserveA, reserveA)
		p.setUint(&t.reserveB, reserveB)

		p.logger.Debug("issued",
			zap.String("etoken", eToken.Hex()),
			zap.String("user", caller.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("amount_a", amountA.Dec()),
			zap.String("amount_b", amountB.Dec()),
		)
		return p.events.Emit("IssuedEToken", eToken, amount, amountA, amountB, caller)
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// RedeemExact burns amount eTokens of caller and pays out the pro-rata
// reserves net of the redemption fee. Reserves drop by the gross amounts.
func (p *Pool) RedeemExact(caller, eToken common.Address, amount *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	t, ok := p.tranches[eToken]
	if !ok {
		return nil, nil, ErrUnknownTranche
	}
	if amount == nil || amount.IsZero() {
		return nil, nil, ErrZeroAmount
	}
	if t.eToken.BalanceOf(caller).Lt(amount) {
		return nil, nil, ErrInsufficientEToken
	}

	err = p.env.Atomic(func() error {
		rate, err := p.GetRate()
		if err != nil {
			return err
		}
		grossA, grossB, err := epmath.TokenATokenBForEToken(t.math(), t.eToken.TotalSupply(), amount, rate, p.scales, epmath.Down)
		if err != nil {
			return err
		}
		if t.math().IsEmpty() || grossA.Gt(t.reserveA) || grossB.Gt(t.reserveB) || (grossA.IsZero() && grossB.IsZero()) {
			return ErrInsufficientLiquidity
		}
		feeA, feeB, err := epmath.FeeAFeeB(grossA, grossB, p.feeRate)
		if err != nil {
			return err
		}
		if amountA, err = epmath.Sub(grossA, feeA); err != nil {
			return err
		}
		if amountB, err = epmath.Sub(grossB, feeB); err != nil {
			return err
		}

		cumulativeFeeA, err := epmath.Add(p.cumulativeFeeA, feeA)
		if err != nil {
			return err
		}
		cumulativeFeeB, err := epmath.Add(p.cumulativeFeeB, feeB)
		if err != nil {
			return err
		}
		p.setUint(&p.cumulativeFeeA, cumulativeFeeA)
		p.setUint(&p.cumulativeFeeB, cumulativeFeeB)
		p.setUint(&t.reserveA, new(uint256.Int).Sub(t.reserveA, grossA))
		p.setUint(&t.reserveB, new(uint256.Int).Sub(t.reserveB, grossB))

		if err := t.eToken.Burn(p.address, caller, amount); err != nil {
			return err
		}
		if err := p.push(caller, amountA, amountB); err != nil {
			return err
		}

		p.logger.Debug("redeemed",
			zap.String("etoken", eToken.Hex()),
			zap.String("user", caller.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("amount_a", amountA.Dec()),
			zap.String("amount_b", amountB.Dec()),
			zap.String("fee_a", feeA.Dec()),
			zap.String("fee_b", feeB.Dec()),
		)
		return p.events.Emit("RedeemedEToken", eToken, amount, amountA, amountB, caller)
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// pull moves both legs from user into the pool.
func (p *Pool) pull(user common.Address, amountA, amountB *uint256.Int) error {
	if !amountA.IsZero() {
		if err := p.tokenA.TransferFrom(p.address, user, p.address, amountA); err != nil {
			return err
		}
	}
	if !amountB.IsZero() {
		if err := p.tokenB.TransferFrom(p.address, user, p.address, amountB); err != nil {
			return err
		}
	}
	return nil
}

// push moves both legs from the pool to user.
func (p *Pool) push(user common.Address, amountA, amountB *uint256.Int) error {
	if !amountA.IsZero() {
		if err := p.tokenA.Transfer(p.address, user, amountA); err != nil {
			return err
		}
	}
	if !amountB.IsZero() {
		if err := p.tokenB.Transfer(p.address, user, amountB); err != nil {
			return err
		}
	}
	return nil
}
