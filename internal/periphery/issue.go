package periphery

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/amm"
	"exposurePool/internal/epool"
	"exposurePool/internal/token"
)

// IssueForMaxTokenA issues amount eTokens paying only TokenA. It pulls
// maxInputAmountA, buys the TokenB leg with part of it and refunds the rest.
func (p *Periphery) IssueForMaxTokenA(caller common.Address, pool EPool, eToken common.Address, amount, maxInputAmountA *uint256.Int, deadline uint64) error {
	return p.issueForMaxInput(caller, pool, eToken, amount, maxInputAmountA, deadline, true)
}

// IssueForMaxTokenB issues amount eTokens paying only TokenB.
func (p *Periphery) IssueForMaxTokenB(caller common.Address, pool EPool, eToken common.Address, amount, maxInputAmountB *uint256.Int, deadline uint64) error {
	return p.issueForMaxInput(caller, pool, eToken, amount, maxInputAmountB, deadline, false)
}

func (p *Periphery) issueForMaxInput(caller common.Address, pool EPool, eToken common.Address, amount, maxInput *uint256.Int, deadline uint64, payInA bool) error {
	if err := p.approvedPool(pool); err != nil {
		return err
	}
	if err := p.checkDeadline(deadline); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return epool.ErrZeroAmount
	}
	if maxInput == nil {
		return ErrInsufficientMaxInput
	}
	amountA, amountB, err := p.helper.TokenATokenBForEToken(pool, eToken, amount)
	if err != nil {
		return err
	}
	payToken, otherToken := pool.TokenA(), pool.TokenB()
	direct, swapped := amountA, amountB
	if !payInA {
		payToken, otherToken = pool.TokenB(), pool.TokenA()
		direct, swapped = amountB, amountA
	}
	if maxInput.Lt(direct) {
		return ErrInsufficientMaxInput
	}

	return p.env.Atomic(func() error {
		if err := payToken.TransferFrom(p.address, caller, p.address, maxInput); err != nil {
			return err
		}
		spent := direct.Clone()
		if !swapped.IsZero() {
			in, err := p.router.SwapTokensForExactTokens(p.address, amm.ExactOutputParams{
				TokenIn:         payToken.Address(),
				TokenOut:        otherToken.Address(),
				Fee:             p.feeTier(pool),
				Recipient:       p.address,
				Deadline:        deadline,
				AmountOut:       swapped,
				AmountInMaximum: new(uint256.Int).Sub(maxInput, direct),
			})
			if err != nil {
				return err
			}
			spent.Add(spent, in)
		}

		issuedA, issuedB, err := pool.IssueExact(p.address, eToken, amount)
		if err != nil {
			return err
		}
		if err := p.forwardEToken(pool, eToken, caller, amount); err != nil {
			return err
		}
		if refund := new(uint256.Int).Sub(maxInput, spent); !refund.IsZero() {
			if err := payToken.Transfer(p.address, caller, refund); err != nil {
				return err
			}
		}
		p.logger.Info("issued via periphery",
			zap.String("epool", pool.Address().Hex()),
			zap.String("etoken", eToken.Hex()),
			zap.String("user", caller.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("spent", spent.Dec()),
		)
		return p.events.Emit("IssuedEToken", pool.Address(), eToken, amount, issuedA, issuedB, caller)
	})
}

func (p *Periphery) forwardEToken(pool EPool, eToken, to common.Address, amount *uint256.Int) error {
	et, err := pool.EToken(eToken)
	if err != nil {
		return err
	}
	return et.Transfer(p.address, to, amount)
}

// RedeemForMinTokenA redeems amount eTokens, sells the TokenB leg and pays
// out only TokenA. It fails when the payout is below minOutputA.
func (p *Periphery) RedeemForMinTokenA(caller common.Address, pool EPool, eToken common.Address, amount, minOutputA *uint256.Int, deadline uint64) error {
	return p.redeemForMinOutput(caller, pool, eToken, amount, minOutputA, deadline, true)
}

// RedeemForMinTokenB redeems amount eTokens and pays out only TokenB.
func (p *Periphery) RedeemForMinTokenB(caller common.Address, pool EPool, eToken common.Address, amount, minOutputB *uint256.Int, deadline uint64) error {
	return p.redeemForMinOutput(caller, pool, eToken, amount, minOutputB, deadline, false)
}

func (p *Periphery) redeemForMinOutput(caller common.Address, pool EPool, eToken common.Address, amount, minOutput *uint256.Int, deadline uint64, payInA bool) error {
	if err := p.approvedPool(pool); err != nil {
		return err
	}
	if err := p.checkDeadline(deadline); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return epool.ErrZeroAmount
	}
	if minOutput == nil {
		return ErrInsufficientOutputAmount
	}
	et, err := pool.EToken(eToken)
	if err != nil {
		return err
	}

	return p.env.Atomic(func() error {
		if err := et.TransferFrom(p.address, caller, p.address, amount); err != nil {
			return err
		}
		amountA, amountB, err := pool.RedeemExact(p.address, eToken, amount)
		if err != nil {
			return err
		}

		var outToken, sellToken token.Token = pool.TokenA(), pool.TokenB()
		output, sell := amountA.Clone(), amountB
		if !payInA {
			outToken, sellToken = pool.TokenB(), pool.TokenA()
			output, sell = amountB.Clone(), amountA
		}
		if !sell.IsZero() {
			out, err := p.router.SwapExactTokensForTokens(p.address, amm.ExactInputParams{
				TokenIn:   sellToken.Address(),
				TokenOut:  outToken.Address(),
				Fee:       p.feeTier(pool),
				Recipient: p.address,
				Deadline:  deadline,
				AmountIn:  sell,
			})
			if err != nil {
				return err
			}
			output.Add(output, out)
		}
		if output.Lt(minOutput) {
			return ErrInsufficientOutputAmount
		}
		if err := outToken.Transfer(p.address, caller, output); err != nil {
			return err
		}
		p.logger.Info("redeemed via periphery",
			zap.String("epool", pool.Address().Hex()),
			zap.String("etoken", eToken.Hex()),
			zap.String("user", caller.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("output", output.Dec()),
		)
		return p.events.Emit("RedeemedEToken", pool.Address(), eToken, amount, amountA, amountB, caller)
	})
}
