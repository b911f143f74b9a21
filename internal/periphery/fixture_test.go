package periphery

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/amm"
	"exposurePool/internal/controller"
	"exposurePool/internal/epmath"
	"exposurePool/internal/epool"
	"exposurePool/internal/events"
	"exposurePool/internal/model"
	"exposurePool/internal/oracle"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

var (
	dao      = common.HexToAddress("0x00000000000000000000000000000000000000da")
	guardian = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	user     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	keeper   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	lp       = common.HexToAddress("0x00000000000000000000000000000000000000b0")

	poolAddr      = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	peripheryAddr = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	subsidyAddr   = common.HexToAddress("0x0000000000000000000000000000000000000e03")

	ratio30To70 = uint256.MustFromDecimal("428571428571428571")
	one         = uint256.NewInt(1e18)
)

func units(v uint64, decimals uint8) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), epmath.ScaleFor(decimals))
}

func dec(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

var errNotBeneficiary = errors.New("subsidy: not beneficiary")

// fakeSubsidy pays beneficiaries from its own token balances.
type fakeSubsidy struct {
	address       common.Address
	beneficiaries map[common.Address]bool
	requested     []*uint256.Int
}

func (s *fakeSubsidy) Address() common.Address { return s.address }

func (s *fakeSubsidy) IsBeneficiary(account common.Address) bool {
	return s.beneficiaries[account]
}

func (s *fakeSubsidy) RequestSubsidy(caller common.Address, tok token.Token, amount *uint256.Int) error {
	if !s.beneficiaries[caller] {
		return errNotBeneficiary
	}
	s.requested = append(s.requested, amount.Clone())
	return tok.Transfer(s.address, caller, amount)
}

type fixture struct {
	env        *txn.Env
	clock      *txn.ManualClock
	controller *controller.Controller
	weth       *token.ERC20
	usdc       *token.ERC20
	aggregator *oracle.Static
	pool       *epool.Pool
	pairs      *amm.Factory
	router     *amm.Router
	pair       *amm.Pair
	subsidy    *fakeSubsidy
	periphery  *Periphery
	eToken     common.Address
}

// newFixture builds a 30/70 WETH/USDC pool at rate 2000 holding 1 eToken,
// a 0.05% pair with pairWETH/pairUSDC liquidity, and an approved periphery.
func newFixture(t *testing.T, pairWETH, pairUSDC *uint256.Int) *fixture {
	t.Helper()
	clock := txn.NewManualClock(1700000000)
	env := txn.NewEnv(31337, clock, nil)
	ctrl := controller.New(env, common.HexToAddress("0xc0"), dao, nil)
	if err := ctrl.SetGuardian(dao, guardian); err != nil {
		t.Fatalf("set guardian: %v", err)
	}
	weth := token.NewERC20(env, common.HexToAddress("0x0a"), "Wrapped Ether", "WETH", 18)
	usdc := token.NewERC20(env, common.HexToAddress("0x0b"), "USD Coin", "USDC", 6)
	aggregator := oracle.NewStatic(common.HexToAddress("0xa9"), units(2000, 18))
	pool, err := epool.New(env, epool.Config{
		Address:    poolAddr,
		TokenA:     weth,
		TokenB:     usdc,
		Aggregator: aggregator,
		Controller: ctrl,
		Factory:    token.NewFactory(env, common.HexToAddress("0xf0")),
	})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	eToken, err := pool.AddTranche(dao, ratio30To70, "EToken WETH30/USDC70", "ET_WETH30/USDC70")
	if err != nil {
		t.Fatalf("add tranche: %v", err)
	}

	pairs := amm.NewFactory(env, common.HexToAddress("0xf1"), nil)
	pair, err := pairs.CreatePair(weth, usdc, 500)
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if err := weth.Mint(pair.Address(), pairWETH); err != nil {
		t.Fatalf("seed pair: %v", err)
	}
	if err := usdc.Mint(pair.Address(), pairUSDC); err != nil {
		t.Fatalf("seed pair: %v", err)
	}
	if err := pair.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	router := amm.NewRouter(env, common.HexToAddress("0xf2"), pairs)

	subsidy := &fakeSubsidy{address: subsidyAddr, beneficiaries: map[common.Address]bool{}}
	p, err := New(env, Config{
		Address:              peripheryAddr,
		Controller:           ctrl,
		Pairs:                pairs,
		Router:               router,
		Subsidy:              subsidy,
		MaxFlashSwapSlippage: dec("1200000000000000000"),
	})
	if err != nil {
		t.Fatalf("new periphery: %v", err)
	}
	if err := p.SetFeeTierForPair(dao, weth.Address(), usdc.Address(), 500); err != nil {
		t.Fatalf("fee tier: %v", err)
	}
	if err := p.SetEPoolApproval(dao, pool, true); err != nil {
		t.Fatalf("approve pool: %v", err)
	}

	f := &fixture{
		env:        env,
		clock:      clock,
		controller: ctrl,
		weth:       weth,
		usdc:       usdc,
		aggregator: aggregator,
		pool:       pool,
		pairs:      pairs,
		router:     router,
		pair:       pair,
		subsidy:    subsidy,
		periphery:  p,
		eToken:     eToken,
	}
	f.fund(t, lp, units(10, 18), units(100000, 6), poolAddr)
	if _, _, err := pool.IssueExact(lp, eToken, one); err != nil {
		t.Fatalf("seed tranche: %v", err)
	}
	env.DrainLogs()
	return f
}

func (f *fixture) fund(t *testing.T, account common.Address, amountA, amountB *uint256.Int, spender common.Address) {
	t.Helper()
	for _, step := range []struct {
		tok    *token.ERC20
		amount *uint256.Int
	}{{f.weth, amountA}, {f.usdc, amountB}} {
		if err := step.tok.Mint(account, step.amount); err != nil {
			t.Fatalf("mint: %v", err)
		}
		if err := step.tok.Approve(account, spender, token.MaxAllowance); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
}

func (f *fixture) deadline() uint64 {
	return f.clock.Now() + 600
}

// peripheryEvents decodes the periphery's logs since the last drain.
func (f *fixture) peripheryEvents(t *testing.T) []*model.TypedEvent {
	t.Helper()
	decoder, err := events.NewDecoder(events.Periphery)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	var out []*model.TypedEvent
	for _, lr := range f.env.DrainLogs() {
		if lr.Address != peripheryAddr.Hex() {
			continue
		}
		ev, err := decoder.Decode(lr)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

func diff(after, before *uint256.Int) *uint256.Int {
	if after.Lt(before) {
		return new(uint256.Int).Sub(before, after)
	}
	return new(uint256.Int).Sub(after, before)
}
