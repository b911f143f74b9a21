package epool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/controller"
	"exposurePool/internal/epmath"
	"exposurePool/internal/events"
	"exposurePool/internal/model"
	"exposurePool/internal/oracle"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

var (
	dao       = common.HexToAddress("0x00000000000000000000000000000000000000da")
	guardian  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	feesOwner = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	user      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	user2     = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	keeper    = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	poolAddr = common.HexToAddress("0x0000000000000000000000000000000000000e01")

	ratio30To70 = uint256.MustFromDecimal("428571428571428571")
	ratio50To50 = uint256.MustFromDecimal("1000000000000000000")
	ratio70To30 = uint256.MustFromDecimal("2333333333333333333")
	one         = uint256.NewInt(1e18)
)

type fixture struct {
	env        *txn.Env
	clock      *txn.ManualClock
	controller *controller.Controller
	tokenA     *token.ERC20
	tokenB     *token.ERC20
	aggregator *oracle.Static
	pool       *Pool
	helper     *Helper
}

func dec(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

// units returns v whole tokens with decimals.
func units(v uint64, decimals uint8) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), epmath.ScaleFor(decimals))
}

func newFixture(t *testing.T, decimalsA, decimalsB uint8, rate *uint256.Int) *fixture {
	t.Helper()
	clock := txn.NewManualClock(1700000000)
	env := txn.NewEnv(31337, clock, nil)
	ctrl := controller.New(env, common.HexToAddress("0xc0"), dao, nil)
	if err := ctrl.SetGuardian(dao, guardian); err != nil {
		t.Fatalf("set guardian: %v", err)
	}
	if err := ctrl.SetFeesOwner(dao, feesOwner); err != nil {
		t.Fatalf("set fees owner: %v", err)
	}
	tokenA := token.NewERC20(env, common.HexToAddress("0x0a"), "Token A", "TKA", decimalsA)
	tokenB := token.NewERC20(env, common.HexToAddress("0x0b"), "Token B", "TKB", decimalsB)
	aggregator := oracle.NewStatic(common.HexToAddress("0xa9"), rate)

	pool, err := New(env, Config{
		Address:    poolAddr,
		TokenA:     tokenA,
		TokenB:     tokenB,
		Aggregator: aggregator,
		Controller: ctrl,
		Factory:    token.NewFactory(env, common.HexToAddress("0xf0")),
	})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	env.DrainLogs()
	return &fixture{
		env:        env,
		clock:      clock,
		controller: ctrl,
		tokenA:     tokenA,
		tokenB:     tokenB,
		aggregator: aggregator,
		pool:       pool,
		helper:     NewHelper(common.HexToAddress("0x0e0e")),
	}
}

func (f *fixture) fund(t *testing.T, account common.Address, amountA, amountB *uint256.Int) {
	t.Helper()
	if err := f.tokenA.Mint(account, amountA); err != nil {
		t.Fatalf("mint A: %v", err)
	}
	if err := f.tokenB.Mint(account, amountB); err != nil {
		t.Fatalf("mint B: %v", err)
	}
	if err := f.tokenA.Approve(account, poolAddr, token.MaxAllowance); err != nil {
		t.Fatalf("approve A: %v", err)
	}
	if err := f.tokenB.Approve(account, poolAddr, token.MaxAllowance); err != nil {
		t.Fatalf("approve B: %v", err)
	}
}

func (f *fixture) addTranche(t *testing.T, ratio *uint256.Int) common.Address {
	t.Helper()
	eToken, err := f.pool.AddTranche(dao, ratio, "EToken", "ET")
	if err != nil {
		t.Fatalf("add tranche: %v", err)
	}
	return eToken
}

func (f *fixture) issue(t *testing.T, account, eToken common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int) {
	t.Helper()
	amountA, amountB, err := f.pool.IssueExact(account, eToken, amount)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return amountA, amountB
}

func (f *fixture) setRate(rate *uint256.Int) {
	f.aggregator.SetAnswer(rate)
}

// poolEvents decodes the pool's logs since the last drain.
func (f *fixture) poolEvents(t *testing.T) []*model.TypedEvent {
	t.Helper()
	decoder, err := events.NewDecoder(events.EPool)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	var out []*model.TypedEvent
	for _, lr := range f.env.DrainLogs() {
		if lr.Address != poolAddr.Hex() {
			continue
		}
		event, err := decoder.Decode(lr)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, event)
	}
	return out
}

func eventNames(evs []*model.TypedEvent) []string {
	names := make([]string, 0, len(evs))
	for _, e := range evs {
		names = append(names, e.EventName)
	}
	return names
}

// checkReserves asserts sum(reserves) == balance - fees for both assets.
func (f *fixture) checkReserves(t *testing.T) {
	t.Helper()
	sumA, sumB := new(uint256.Int), new(uint256.Int)
	for _, tr := range f.pool.GetTranches() {
		sumA.Add(sumA, tr.ReserveA)
		sumB.Add(sumB, tr.ReserveB)
	}
	wantA := new(uint256.Int).Sub(f.tokenA.BalanceOf(poolAddr), f.pool.CumulativeFeeA())
	wantB := new(uint256.Int).Sub(f.tokenB.BalanceOf(poolAddr), f.pool.CumulativeFeeB())
	if !sumA.Eq(wantA) || !sumB.Eq(wantB) {
		t.Fatalf("reserve accounting broken: A %s != %s, B %s != %s", sumA.Dec(), wantA.Dec(), sumB.Dec(), wantB.Dec())
	}
}

// valueInB returns the tranche value in native TokenB at the current rate.
func (f *fixture) valueInB(t *testing.T, eToken common.Address) *uint256.Int {
	t.Helper()
	tr, err := f.pool.GetTranche(eToken)
	if err != nil {
		t.Fatalf("get tranche: %v", err)
	}
	v, err := f.helper.TotalB(f.pool, tr.ReserveA, tr.ReserveB)
	if err != nil {
		t.Fatalf("total B: %v", err)
	}
	return v
}
