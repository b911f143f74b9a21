package periphery

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/epmath"
)

// MinInputAmountAForEToken returns the TokenA that IssueForMaxTokenA needs
// for amount eTokens at current pair prices.
func (p *Periphery) MinInputAmountAForEToken(pool EPool, eToken common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.minInputAmount(pool, eToken, amount, true)
}

// MinInputAmountBForEToken returns the TokenB that IssueForMaxTokenB needs.
func (p *Periphery) MinInputAmountBForEToken(pool EPool, eToken common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.minInputAmount(pool, eToken, amount, false)
}

func (p *Periphery) minInputAmount(pool EPool, eToken common.Address, amount *uint256.Int, payInA bool) (*uint256.Int, error) {
	amountA, amountB, err := p.helper.TokenATokenBForEToken(pool, eToken, amount)
	if err != nil {
		return nil, err
	}
	tokenIn, tokenOut := pool.TokenA().Address(), pool.TokenB().Address()
	direct, swapped := amountA, amountB
	if !payInA {
		tokenIn, tokenOut = tokenOut, tokenIn
		direct, swapped = amountB, amountA
	}
	if swapped.IsZero() {
		return direct, nil
	}
	in, err := p.router.GetAmountIn(tokenIn, tokenOut, p.feeTier(pool), swapped)
	if err != nil {
		return nil, err
	}
	return epmath.Add(direct, in)
}

// MaxOutputAmountAForEToken returns the TokenA RedeemForMinTokenA would pay
// for amount eTokens at current pair prices, net of the redemption fee.
func (p *Periphery) MaxOutputAmountAForEToken(pool EPool, eToken common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.maxOutputAmount(pool, eToken, amount, true)
}

// MaxOutputAmountBForEToken returns the TokenB RedeemForMinTokenB would pay.
func (p *Periphery) MaxOutputAmountBForEToken(pool EPool, eToken common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.maxOutputAmount(pool, eToken, amount, false)
}

func (p *Periphery) maxOutputAmount(pool EPool, eToken common.Address, amount *uint256.Int, payInA bool) (*uint256.Int, error) {
	grossA, grossB, err := p.helper.RedeemAmounts(pool, eToken, amount)
	if err != nil {
		return nil, err
	}
	feeA, feeB, err := epmath.FeeAFeeB(grossA, grossB, pool.FeeRate())
	if err != nil {
		return nil, err
	}
	netA, netB := new(uint256.Int).Sub(grossA, feeA), new(uint256.Int).Sub(grossB, feeB)
	tokenIn, tokenOut := pool.TokenB().Address(), pool.TokenA().Address()
	kept, sold := netA, netB
	if !payInA {
		tokenIn, tokenOut = tokenOut, tokenIn
		kept, sold = netB, netA
	}
	if sold.IsZero() {
		return kept, nil
	}
	out, err := p.router.GetAmountOut(tokenIn, tokenOut, p.feeTier(pool), sold)
	if err != nil {
		return nil, err
	}
	return epmath.Add(kept, out)
}

// ETokenForMinInputAmountAUnsafe estimates the eTokens amountA buys through
// IssueForMaxTokenA. The split follows the tranche's current ratio and the
// pair's spot reserves, which a trader can move.
func (p *Periphery) ETokenForMinInputAmountAUnsafe(pool EPool, eToken common.Address, amountA *uint256.Int) (*uint256.Int, error) {
	keepA, valueB, err := p.helper.TokenATokenBForTokenA(pool, eToken, amountA)
	if err != nil {
		return nil, err
	}
	if valueB.IsZero() {
		return p.helper.ETokenForTokenATokenB(pool, eToken, keepA, valueB)
	}
	sellA := new(uint256.Int).Sub(amountA, keepA)
	boughtB, err := p.router.GetAmountOut(pool.TokenA().Address(), pool.TokenB().Address(), p.feeTier(pool), sellA)
	if err != nil {
		return nil, err
	}
	return p.helper.ETokenForTokenATokenB(pool, eToken, keepA, boughtB)
}

// ETokenForMinInputAmountBUnsafe estimates the eTokens amountB buys through
// IssueForMaxTokenB.
func (p *Periphery) ETokenForMinInputAmountBUnsafe(pool EPool, eToken common.Address, amountB *uint256.Int) (*uint256.Int, error) {
	valueA, keepB, err := p.helper.TokenATokenBForTokenB(pool, eToken, amountB)
	if err != nil {
		return nil, err
	}
	if valueA.IsZero() {
		return p.helper.ETokenForTokenATokenB(pool, eToken, valueA, keepB)
	}
	sellB := new(uint256.Int).Sub(amountB, keepB)
	boughtA, err := p.router.GetAmountOut(pool.TokenB().Address(), pool.TokenA().Address(), p.feeTier(pool), sellB)
	if err != nil {
		return nil, err
	}
	return p.helper.ETokenForTokenATokenB(pool, eToken, boughtA, keepB)
}
