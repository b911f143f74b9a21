package keeper

import (
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
	"exposurePool/internal/periphery"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

var (
	dao      = common.HexToAddress("0x00000000000000000000000000000000000000da")
	guardian = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	user     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bot      = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	lp       = common.HexToAddress("0x00000000000000000000000000000000000000b0")

	poolAddr      = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	peripheryAddr = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	subsidyAddr   = common.HexToAddress("0x0000000000000000000000000000000000000e03")
	adapterAddr   = common.HexToAddress("0x0000000000000000000000000000000000000e04")

	ratio30To70 = uint256.MustFromDecimal("428571428571428571")
	one         = uint256.NewInt(1e18)
)

func units(v uint64, decimals uint8) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), epmath.ScaleFor(decimals))
}

type fixture struct {
	env        *txn.Env
	clock      *txn.ManualClock
	controller *controller.Controller
	weth       *token.ERC20
	usdc       *token.ERC20
	aggregator *oracle.Static
	pool       *epool.Pool
	pair       *amm.Pair
	subsidy    *SubsidyPool
	periphery  *periphery.Periphery
	adapter    *NetworkAdapter
	eToken     common.Address
}

// newFixture builds a 30/70 WETH/USDC pool at rate 2000 holding 1 eToken,
// a 0.05% pair seeded with pairWETH/pairUSDC, a periphery backed by a real
// subsidy pool and an adapter with the pool registered.
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

	subsidy := NewSubsidyPool(env, subsidyAddr, ctrl, nil)
	p, err := periphery.New(env, periphery.Config{
		Address:              peripheryAddr,
		Controller:           ctrl,
		Pairs:                pairs,
		Router:               amm.NewRouter(env, common.HexToAddress("0xf2"), pairs),
		Subsidy:              subsidy,
		MaxFlashSwapSlippage: uint256.MustFromDecimal("1200000000000000000"),
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

	adapter := NewNetworkAdapter(env, adapterAddr, ctrl, epool.NewHelper(common.HexToAddress("0xe5")), nil)
	if err := adapter.AddEPool(dao, pool, p); err != nil {
		t.Fatalf("add epool: %v", err)
	}

	for _, step := range []struct {
		tok    *token.ERC20
		amount *uint256.Int
	}{{weth, units(10, 18)}, {usdc, units(100000, 6)}} {
		if err := step.tok.Mint(lp, step.amount); err != nil {
			t.Fatalf("mint: %v", err)
		}
		if err := step.tok.Approve(lp, poolAddr, token.MaxAllowance); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	if _, _, err := pool.IssueExact(lp, eToken, one); err != nil {
		t.Fatalf("seed tranche: %v", err)
	}
	env.DrainLogs()

	return &fixture{
		env:        env,
		clock:      clock,
		controller: ctrl,
		weth:       weth,
		usdc:       usdc,
		aggregator: aggregator,
		pool:       pool,
		pair:       pair,
		subsidy:    subsidy,
		periphery:  p,
		adapter:    adapter,
		eToken:     eToken,
	}
}

// eventsOf decodes the logs emitted by address since the last drain.
func (f *fixture) eventsOf(t *testing.T, contract events.Contract, address common.Address) []*model.TypedEvent {
	t.Helper()
	decoder, err := events.NewDecoder(contract)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	var out []*model.TypedEvent
	for _, lr := range f.env.DrainLogs() {
		if lr.Address != address.Hex() {
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
