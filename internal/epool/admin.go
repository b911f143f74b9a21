package epool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/epmath"
	"exposurePool/internal/oracle"
	"exposurePool/internal/token"
)

// SetController replaces the role registry.
func (p *Pool) SetController(caller common.Address, controller Roles) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	if controller == nil {
		return ErrInvalidController
	}
	return p.env.Atomic(func() error {
		prev := p.controller
		p.controller = controller
		p.env.Record(func() { p.controller = prev })
		return p.events.Emit("SetController", controller.Address())
	})
}

// SetAggregator replaces the rate source.
func (p *Pool) SetAggregator(caller common.Address, aggregator oracle.Aggregator, inverseRate bool) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	if aggregator == nil {
		return ErrInvalidAggregator
	}
	return p.env.Atomic(func() error {
		prevAggregator, prevInverse := p.aggregator, p.inverseRate
		p.aggregator, p.inverseRate = aggregator, inverseRate
		p.env.Record(func() { p.aggregator, p.inverseRate = prevAggregator, prevInverse })
		return p.events.Emit("SetAggregator", aggregator.Address(), inverseRate)
	})
}

// SetFeeRate sets the redemption fee rate.
func (p *Pool) SetFeeRate(caller common.Address, feeRate *uint256.Int) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	if feeRate == nil || feeRate.Gt(FeeRateLimit) {
		return ErrFeeRateAboveLimit
	}
	return p.env.Atomic(func() error {
		p.setUint(&p.feeRate, feeRate.Clone())
		return p.events.Emit("SetFeeRate", feeRate)
	})
}

// SetRebalanceMode selects how deviation and interval combine.
func (p *Pool) SetRebalanceMode(caller common.Address, mode uint8) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	if mode != RebalanceModeOr && mode != RebalanceModeAnd {
		return ErrInvalidRebalanceMode
	}
	return p.env.Atomic(func() error {
		prev := p.rebalanceMode
		p.rebalanceMode = mode
		p.env.Record(func() { p.rebalanceMode = prev })
		return p.events.Emit("SetRebalanceMode", mode)
	})
}

// SetRebalanceMinRDiv sets the deviation that makes a tranche eligible.
func (p *Pool) SetRebalanceMinRDiv(caller common.Address, minRDiv *uint256.Int) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	if minRDiv == nil {
		return ErrInvalidMinRDiv
	}
	return p.env.Atomic(func() error {
		p.setUint(&p.rebalanceMinRDiv, minRDiv.Clone())
		return p.events.Emit("SetRebalanceMinRDiv", minRDiv)
	})
}

// SetRebalanceInterval sets the seconds after which a tranche is eligible.
func (p *Pool) SetRebalanceInterval(caller common.Address, interval uint64) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	return p.env.Atomic(func() error {
		p.setTimestamp(&p.rebalanceInterval, interval)
		return p.events.Emit("SetRebalanceInterval", interval)
	})
}

// TransferFees pays the accrued fees to the fees owner. Anyone may call it;
// with nothing accrued it does nothing.
func (p *Pool) TransferFees(caller common.Address) error {
	if p.cumulativeFeeA.IsZero() && p.cumulativeFeeB.IsZero() {
		return nil
	}
	return p.env.Atomic(func() error {
		feesOwner := p.controller.FeesOwner()
		feeA, feeB := p.cumulativeFeeA, p.cumulativeFeeB
		p.setUint(&p.cumulativeFeeA, new(uint256.Int))
		p.setUint(&p.cumulativeFeeB, new(uint256.Int))
		if err := p.push(feesOwner, feeA, feeB); err != nil {
			return err
		}
		p.logger.Info("fees transferred",
			zap.String("caller", caller.Hex()),
			zap.String("fees_owner", feesOwner.Hex()),
			zap.String("fee_a", feeA.Dec()),
			zap.String("fee_b", feeB.Dec()),
		)
		return p.events.Emit("TransferFees", feesOwner, feeA, feeB)
	})
}

// Excess returns the balance of tok the pool holds beyond reserves and fees.
func (p *Pool) Excess(tok token.Token) *uint256.Int {
	balance := tok.BalanceOf(p.address)
	var accounted *uint256.Int
	switch tok.Address() {
	case p.tokenA.Address():
		accounted = p.cumulativeFeeA.Clone()
		for _, addr := range p.order {
			accounted.Add(accounted, p.tranches[addr].reserveA)
		}
	case p.tokenB.Address():
		accounted = p.cumulativeFeeB.Clone()
		for _, addr := range p.order {
			accounted.Add(accounted, p.tranches[addr].reserveB)
		}
	default:
		return balance
	}
	excess, err := epmath.Sub(balance, accounted)
	if err != nil {
		return epmath.Zero()
	}
	return excess
}

// Recover sends up to the unaccounted balance of tok to the dao.
func (p *Pool) Recover(caller common.Address, tok token.Token, amount *uint256.Int) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	if amount == nil || amount.IsZero() || amount.Gt(p.Excess(tok)) {
		return ErrNoExcess
	}
	return p.env.Atomic(func() error {
		if err := tok.Transfer(p.address, p.controller.Dao(), amount); err != nil {
			return err
		}
		p.logger.Info("token recovered",
			zap.String("token", tok.Address().Hex()),
			zap.String("amount", amount.Dec()),
		)
		return p.events.Emit("RecoveredToken", tok.Address(), amount)
	})
}
