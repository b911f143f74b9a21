package periphery

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/amm"
	"exposurePool/internal/epmath"
	"exposurePool/internal/epool"
	"exposurePool/internal/events"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

// DefaultFeeTier is the pair fee used for token pairs without an explicit
// tier.
const DefaultFeeTier uint32 = 3000

// EPool is the pool surface the periphery drives.
type EPool interface {
	epool.View
	TokenA() token.Token
	TokenB() token.Token
	EToken(eToken common.Address) (*token.EToken, error)
	RebalanceDelta() (epmath.Delta, error)
	IssueExact(caller, eToken common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int, error)
	RedeemExact(caller, eToken common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int, error)
	Rebalance(caller common.Address, fracDelta *uint256.Int) (epmath.Delta, error)
}

// Router executes single-pair swaps on behalf of the periphery.
type Router interface {
	Address() common.Address
	GetAmountIn(tokenIn, tokenOut common.Address, fee uint32, amountOut *uint256.Int) (*uint256.Int, error)
	GetAmountOut(tokenIn, tokenOut common.Address, fee uint32, amountIn *uint256.Int) (*uint256.Int, error)
	SwapExactTokensForTokens(caller common.Address, p amm.ExactInputParams) (*uint256.Int, error)
	SwapTokensForExactTokens(caller common.Address, p amm.ExactOutputParams) (*uint256.Int, error)
}

// PairSource looks up the pair used for flash swaps.
type PairSource interface {
	GetPair(tokenA, tokenB common.Address, fee uint32) (*amm.Pair, error)
}

// SubsidySource covers flash swap shortfalls for its beneficiaries.
type SubsidySource interface {
	Address() common.Address
	IsBeneficiary(account common.Address) bool
	RequestSubsidy(caller common.Address, tok token.Token, amount *uint256.Int) error
}

// Config wires a periphery to its collaborators.
type Config struct {
	Address              common.Address
	Controller           epool.Roles
	Pairs                PairSource
	Router               Router
	Subsidy              SubsidySource
	Helper               *epool.Helper
	MaxFlashSwapSlippage *uint256.Int
	Logger               *zap.Logger
}

type tokenPair [2]common.Address

// Periphery wraps pools with single-asset issuance and redemption and
// funds rebalances with flash swaps.
type Periphery struct {
	env    *txn.Env
	events *events.Emitter
	logger *zap.Logger

	address              common.Address
	controller           epool.Roles
	pairs                PairSource
	router               Router
	subsidy              SubsidySource
	helper               *epool.Helper
	maxFlashSwapSlippage *uint256.Int
	approved             map[common.Address]EPool
	feeTiers             map[tokenPair]uint32

	pending *flashSwap
}

// New creates a periphery.
func New(env *txn.Env, cfg Config) (*Periphery, error) {
	if cfg.Controller == nil {
		return nil, ErrInvalidController
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Helper == nil {
		cfg.Helper = epool.NewHelper(common.Address{})
	}
	slippage := epmath.EPoolSF.Clone()
	if cfg.MaxFlashSwapSlippage != nil {
		slippage = cfg.MaxFlashSwapSlippage.Clone()
	}
	return &Periphery{
		env:                  env,
		events:               events.NewEmitter(env, events.Periphery, cfg.Address),
		logger:               cfg.Logger,
		address:              cfg.Address,
		controller:           cfg.Controller,
		pairs:                cfg.Pairs,
		router:               cfg.Router,
		subsidy:              cfg.Subsidy,
		helper:               cfg.Helper,
		maxFlashSwapSlippage: slippage,
		approved:             make(map[common.Address]EPool),
		feeTiers:             make(map[tokenPair]uint32),
	}, nil
}

func (p *Periphery) Address() common.Address {
	return p.address
}

func (p *Periphery) Controller() epool.Roles {
	return p.controller
}

func (p *Periphery) Helper() *epool.Helper {
	return p.helper
}

func (p *Periphery) Subsidy() SubsidySource {
	return p.subsidy
}

func (p *Periphery) MaxFlashSwapSlippage() *uint256.Int {
	return p.maxFlashSwapSlippage.Clone()
}

// IsApproved reports whether pool may be used through the periphery.
func (p *Periphery) IsApproved(pool common.Address) bool {
	_, ok := p.approved[pool]
	return ok
}

// FeeTierForPair returns the pair fee used between two tokens.
func (p *Periphery) FeeTierForPair(tokenA, tokenB common.Address) uint32 {
	if fee, ok := p.feeTiers[sortPair(tokenA, tokenB)]; ok {
		return fee
	}
	return DefaultFeeTier
}

func sortPair(a, b common.Address) tokenPair {
	token0, token1, err := amm.SortTokens(a, b)
	if err != nil {
		return tokenPair{a, b}
	}
	return tokenPair{token0, token1}
}

func (p *Periphery) feeTier(pool EPool) uint32 {
	return p.FeeTierForPair(pool.TokenA().Address(), pool.TokenB().Address())
}

func (p *Periphery) approvedPool(pool EPool) error {
	if pool == nil || !p.IsApproved(pool.Address()) {
		return ErrUnapprovedEPool
	}
	return nil
}

func (p *Periphery) checkDeadline(deadline uint64) error {
	if p.env.Now() > deadline {
		return ErrDeadlineExpired
	}
	return nil
}

// SetController replaces the role registry.
func (p *Periphery) SetController(caller common.Address, controller epool.Roles) error {
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

// SetEPoolApproval allows or revokes pool and updates the token
// allowances the pool and the router draw on.
func (p *Periphery) SetEPoolApproval(caller common.Address, pool EPool, approved bool) error {
	if !p.controller.IsDaoOrGuardian(caller) {
		return ErrNotDaoOrGuardian
	}
	return p.env.Atomic(func() error {
		allowance := new(uint256.Int)
		if approved {
			allowance = token.MaxAllowance
		}
		for _, tok := range []token.Token{pool.TokenA(), pool.TokenB()} {
			if err := tok.Approve(p.address, pool.Address(), allowance); err != nil {
				return err
			}
			if approved && p.router != nil {
				if err := tok.Approve(p.address, p.router.Address(), token.MaxAllowance); err != nil {
					return err
				}
			}
		}

		addr := pool.Address()
		prev, existed := p.approved[addr]
		if approved {
			p.approved[addr] = pool
		} else {
			delete(p.approved, addr)
		}
		p.env.Record(func() {
			if existed {
				p.approved[addr] = prev
			} else {
				delete(p.approved, addr)
			}
		})
		p.logger.Info("epool approval",
			zap.String("epool", addr.Hex()),
			zap.Bool("approved", approved),
		)
		return p.events.Emit("SetEPoolApproval", addr, approved)
	})
}

// SetMaxFlashSwapSlippage sets the ceiling on cost/received for flash swap
// rebalances, as a 1e18 fixed-point ratio.
func (p *Periphery) SetMaxFlashSwapSlippage(caller common.Address, slippage *uint256.Int) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	if slippage == nil {
		return ErrInvalidSlippage
	}
	return p.env.Atomic(func() error {
		prev := p.maxFlashSwapSlippage
		p.maxFlashSwapSlippage = slippage.Clone()
		p.env.Record(func() { p.maxFlashSwapSlippage = prev })
		return p.events.Emit("SetMaxFlashSwapSlippage", slippage)
	})
}

// SetFeeTierForPair selects the pair fee tier between two tokens.
func (p *Periphery) SetFeeTierForPair(caller, tokenA, tokenB common.Address, feeTier uint32) error {
	if !p.controller.IsDaoOrGuardian(caller) {
		return ErrNotDaoOrGuardian
	}
	return p.env.Atomic(func() error {
		key := sortPair(tokenA, tokenB)
		prev, existed := p.feeTiers[key]
		p.feeTiers[key] = feeTier
		p.env.Record(func() {
			if existed {
				p.feeTiers[key] = prev
			} else {
				delete(p.feeTiers, key)
			}
		})
		return p.events.Emit("SetFeeTierForPair", tokenA, tokenB, feeTier)
	})
}

// Recover sends tokens held by the periphery to the dao. The periphery
// keeps no balance between calls, so all of it is excess.
func (p *Periphery) Recover(caller common.Address, tok token.Token, amount *uint256.Int) error {
	if !p.controller.IsDao(caller) {
		return ErrNotDao
	}
	if amount == nil || amount.IsZero() || amount.Gt(tok.BalanceOf(p.address)) {
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
