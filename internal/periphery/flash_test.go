package periphery

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/epmath"
)

func (f *fixture) ratioDeviation(t *testing.T) *uint256.Int {
	t.Helper()
	ratio, err := f.periphery.Helper().CurrentRatio(f.pool, f.eToken)
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	deviation, err := epmath.Deviation(ratio, ratio30To70)
	if err != nil {
		t.Fatalf("deviation: %v", err)
	}
	return deviation
}

func (f *fixture) assertNoPeripheryBalance(t *testing.T) {
	t.Helper()
	if !f.weth.BalanceOf(peripheryAddr).IsZero() || !f.usdc.BalanceOf(peripheryAddr).IsZero() {
		t.Fatalf("periphery kept a balance: %s WETH %s USDC",
			f.weth.BalanceOf(peripheryAddr).Dec(), f.usdc.BalanceOf(peripheryAddr).Dec())
	}
}

func TestFlashSwapWithLeftover(t *testing.T) {
	// The pair prices WETH at 2300 while the oracle says 2200, so selling
	// the released WETH costs less than the pool hands out.
	f := newFixture(t, units(100, 18), units(230000, 6))
	f.aggregator.SetAnswer(units(2200, 18))

	est, err := f.periphery.EstimateFlashSwap(f.pool)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	got := []string{est.Borrowed.Dec(), est.Received.Dec(), est.Cost.Dec(), est.Shortfall.Dec()}
	want := []string{"42000000", "19090908954545454", "18273341438546442", "0"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("estimate mismatch: %v", got)
	}
	if est.BorrowToken != f.usdc.Address() || est.RepayToken != f.weth.Address() || est.Pair != f.pair.Address() {
		t.Fatalf("estimate legs mismatch: %+v", est)
	}
	f.env.DrainLogs()

	k0, k1 := f.pair.GetReserves()
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, nil); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if got := f.weth.BalanceOf(keeper); got.Dec() != "817567515999012" {
		t.Fatalf("keeper leftover mismatch: %s", got.Dec())
	}
	if dev := f.ratioDeviation(t); dev.Gt(uint256.NewInt(1e10)) {
		t.Fatalf("pool not rebalanced: deviation %s", dev.Dec())
	}
	r0, r1 := f.pair.GetReserves()
	if !r0.Eq(new(uint256.Int).Add(k0, est.Cost)) || !r1.Eq(new(uint256.Int).Sub(k1, est.Borrowed)) {
		t.Fatalf("pair reserves mismatch: %s %s", r0.Dec(), r1.Dec())
	}
	f.assertNoPeripheryBalance(t)

	evs := f.peripheryEvents(t)
	wantFields := map[string]string{
		"ePool":   poolAddr.Hex(),
		"deltaA":  "19090908954545454",
		"deltaB":  "42000000",
		"rChange": "0",
		"subsidy": "0",
		"keeper":  keeper.Hex(),
	}
	if len(evs) != 1 || evs[0].EventName != "RebalancedWithFlashSwap" || !reflect.DeepEqual(evs[0].Fields, wantFields) {
		t.Fatalf("flash swap event mismatch: %+v", evs)
	}
}

func TestFlashSwapRChangeOne(t *testing.T) {
	// The oracle drops to 1800; the pool needs WETH, borrowed from a pair
	// that sells it at 1700.
	f := newFixture(t, units(100, 18), units(170000, 6))
	f.aggregator.SetAnswer(units(1800, 18))
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, nil); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if got := f.usdc.BalanceOf(keeper); got.Dec() != "2304227" {
		t.Fatalf("keeper leftover mismatch: %s", got.Dec())
	}
	tr, _ := f.pool.GetTranche(f.eToken)
	if tr.ReserveA.Dec() != "323333333500000000" {
		t.Fatalf("reserveA mismatch: %s", tr.ReserveA.Dec())
	}
	f.assertNoPeripheryBalance(t)
}

func TestFlashSwapShortfallFromSubsidy(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	f.aggregator.SetAnswer(units(2200, 18))
	if err := f.weth.Mint(subsidyAddr, one); err != nil {
		t.Fatalf("fund subsidy: %v", err)
	}
	f.subsidy.beneficiaries[peripheryAddr] = true
	f.env.DrainLogs()

	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, nil); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	shortfall := dec("1924009430941812")
	if len(f.subsidy.requested) != 1 || !f.subsidy.requested[0].Eq(shortfall) {
		t.Fatalf("subsidy requests mismatch: %v", f.subsidy.requested)
	}
	if got := new(uint256.Int).Sub(one, f.weth.BalanceOf(subsidyAddr)); !got.Eq(shortfall) {
		t.Fatalf("subsidy paid %s", got.Dec())
	}
	if !f.weth.BalanceOf(keeper).IsZero() {
		t.Fatalf("keeper should get nothing on a shortfall")
	}
	evs := f.peripheryEvents(t)
	if len(evs) != 1 || evs[0].Field("subsidy") != shortfall.Dec() {
		t.Fatalf("subsidy not reported: %+v", evs)
	}
	f.assertNoPeripheryBalance(t)
}

func TestFlashSwapShortfallSplit(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	f.aggregator.SetAnswer(units(2200, 18))
	capped := uint256.NewInt(1e15)
	if err := f.weth.Mint(subsidyAddr, capped); err != nil {
		t.Fatalf("fund subsidy: %v", err)
	}
	f.subsidy.beneficiaries[peripheryAddr] = true

	// Without funds the keeper cannot cover the rest.
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, nil); err == nil {
		t.Fatalf("expected the keeper's share of the shortfall to fail")
	}
	if !f.weth.BalanceOf(subsidyAddr).Eq(capped) {
		t.Fatalf("failed rebalance spent the subsidy")
	}

	f.fund(t, keeper, one, new(uint256.Int), peripheryAddr)
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, nil); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	paid := new(uint256.Int).Sub(one, f.weth.BalanceOf(keeper))
	if want := new(uint256.Int).Sub(dec("1924009430941812"), capped); !paid.Eq(want) {
		t.Fatalf("keeper paid %s, want %s", paid.Dec(), want.Dec())
	}
	if !f.weth.BalanceOf(subsidyAddr).IsZero() {
		t.Fatalf("subsidy should be drained")
	}
}

func TestFlashSwapWithoutBeneficiaryChargesCaller(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	f.aggregator.SetAnswer(units(2200, 18))
	if err := f.weth.Mint(subsidyAddr, one); err != nil {
		t.Fatalf("fund subsidy: %v", err)
	}
	f.fund(t, keeper, one, new(uint256.Int), peripheryAddr)
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, nil); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if len(f.subsidy.requested) != 0 {
		t.Fatalf("non-beneficiary requested a subsidy")
	}
	if paid := new(uint256.Int).Sub(one, f.weth.BalanceOf(keeper)); paid.Dec() != "1924009430941812" {
		t.Fatalf("keeper paid %s", paid.Dec())
	}
}

func TestFlashSwapExcessiveSlippage(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	f.aggregator.SetAnswer(units(2200, 18))
	f.fund(t, keeper, one, new(uint256.Int), peripheryAddr)
	before, _ := f.pool.GetTranche(f.eToken)
	r0, r1 := f.pair.GetReserves()
	f.env.DrainLogs()

	// cost/received is about 1.1008.
	err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, dec("1050000000000000000"))
	if !errors.Is(err, ErrExcessiveSlippage) {
		t.Fatalf("expected excessive slippage, got %v", err)
	}
	after, _ := f.pool.GetTranche(f.eToken)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("failed flash swap changed the tranche")
	}
	if a, b := f.pair.GetReserves(); !a.Eq(r0) || !b.Eq(r1) {
		t.Fatalf("failed flash swap changed the pair")
	}
	if logs := f.env.DrainLogs(); len(logs) != 0 {
		t.Fatalf("failed flash swap emitted %d logs", len(logs))
	}

	if err := f.periphery.SetMaxFlashSwapSlippage(dao, dec("1100000000000000000")); err != nil {
		t.Fatalf("slippage: %v", err)
	}
	// An override above the ceiling is clamped to it.
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, dec("2000000000000000000")); !errors.Is(err, ErrExcessiveSlippage) {
		t.Fatalf("expected the ceiling to apply, got %v", err)
	}
	if err := f.periphery.SetMaxFlashSwapSlippage(dao, dec("1110000000000000000")); err != nil {
		t.Fatalf("slippage: %v", err)
	}
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, new(uint256.Int)); err != nil {
		t.Fatalf("rebalance within the ceiling: %v", err)
	}
}

func TestFlashSwapNothingToRebalance(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	if _, err := f.periphery.EstimateFlashSwap(f.pool); !errors.Is(err, ErrNothingToRebalance) {
		t.Fatalf("expected nothing to rebalance, got %v", err)
	}
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, nil); !errors.Is(err, ErrNothingToRebalance) {
		t.Fatalf("expected nothing to rebalance, got %v", err)
	}

	// A deviated tranche that is not yet eligible is also nothing to do.
	f.aggregator.SetAnswer(units(2200, 18))
	if err := f.pool.SetRebalanceMinRDiv(dao, one); err != nil {
		t.Fatalf("min rdiv: %v", err)
	}
	if err := f.pool.SetRebalanceInterval(dao, 1<<40); err != nil {
		t.Fatalf("interval: %v", err)
	}
	if err := f.periphery.RebalanceWithFlashSwap(keeper, f.pool, nil); !errors.Is(err, ErrNothingToRebalance) {
		t.Fatalf("expected nothing to rebalance, got %v", err)
	}
}

func TestFlashSwapCallbackRejectsStrangers(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	zero := new(uint256.Int)
	err := f.periphery.OnFlashSwap(f.pair.Address(), peripheryAddr, zero, one, poolAddr.Bytes())
	if !errors.Is(err, ErrUnexpectedCallback) {
		t.Fatalf("callback without a pending swap should fail, got %v", err)
	}
	err = f.periphery.OnFlashSwap(common.HexToAddress("0xbad"), keeper, zero, one, nil)
	if !errors.Is(err, ErrUnexpectedCallback) {
		t.Fatalf("expected unexpected callback, got %v", err)
	}
}
