package epool

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/epmath"
	"exposurePool/internal/fault"
	"exposurePool/internal/oracle"
	"exposurePool/internal/token"
)

func TestAddTranche(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))

	if _, err := f.pool.AddTranche(user, ratio30To70, "E", "E"); !errors.Is(err, ErrNotDao) {
		t.Fatalf("expected not dao, got %v", err)
	}
	if _, err := f.pool.AddTranche(dao, uint256.NewInt(0), "E", "E"); !errors.Is(err, ErrInvalidTargetRatio) {
		t.Fatalf("expected invalid target ratio, got %v", err)
	}
	for i := 0; i < MaxTranches; i++ {
		f.addTranche(t, ratio30To70)
	}
	_, err := f.pool.AddTranche(dao, ratio30To70, "E", "E")
	if !errors.Is(err, ErrMaxTrancheCount) {
		t.Fatalf("expected max tranche count, got %v", err)
	}
	if fault.KindOf(err) != fault.State {
		t.Fatalf("max tranche count should be a state error, got %s", fault.KindOf(err))
	}

	first, err := f.pool.TranchesByIndex(0)
	if err != nil {
		t.Fatalf("tranches by index: %v", err)
	}
	tr, err := f.pool.GetTranche(first)
	if err != nil {
		t.Fatalf("get tranche: %v", err)
	}
	if !tr.TargetRatio.Eq(ratio30To70) || !tr.ReserveA.IsZero() || !tr.SFactorE.Eq(epmath.SFactorE) {
		t.Fatalf("unexpected tranche: %+v", tr)
	}
	if _, err := f.pool.TranchesByIndex(MaxTranches); !errors.Is(err, ErrUnknownTranche) {
		t.Fatalf("expected unknown tranche, got %v", err)
	}

	evs := f.poolEvents(t)
	if len(evs) != MaxTranches || evs[0].EventName != "AddedTranche" || evs[0].Field("eToken") != first.Hex() {
		t.Fatalf("unexpected events: %v", eventNames(evs))
	}
}

func TestIssueExactFirstDeposit(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))
	eToken := f.addTranche(t, ratio30To70)
	f.fund(t, user, units(10, 18), units(100000, 6))
	f.env.DrainLogs()

	amountA, amountB := f.issue(t, user, eToken, one)
	if amountA.Dec() != "300000000000000000" || amountB.Dec() != "1260000001" {
		t.Fatalf("issue amounts mismatch: %s %s", amountA.Dec(), amountB.Dec())
	}
	et, err := f.pool.EToken(eToken)
	if err != nil {
		t.Fatalf("etoken: %v", err)
	}
	if !et.BalanceOf(user).Eq(one) {
		t.Fatalf("shares not minted: %s", et.BalanceOf(user))
	}
	tr, _ := f.pool.GetTranche(eToken)
	if !tr.ReserveA.Eq(amountA) || !tr.ReserveB.Eq(amountB) {
		t.Fatalf("reserves mismatch: %s %s", tr.ReserveA.Dec(), tr.ReserveB.Dec())
	}
	f.checkReserves(t)

	evs := f.poolEvents(t)
	if len(evs) != 1 || evs[0].EventName != "IssuedEToken" {
		t.Fatalf("unexpected events: %v", eventNames(evs))
	}
	want := map[string]string{
		"eToken":  eToken.Hex(),
		"amount":  "1000000000000000000",
		"amountA": "300000000000000000",
		"amountB": "1260000001",
		"user":    user.Hex(),
	}
	if !reflect.DeepEqual(evs[0].Fields, want) {
		t.Fatalf("event fields mismatch: %v", evs[0].Fields)
	}
}

func TestIssueExactFailures(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))
	eToken := f.addTranche(t, ratio30To70)

	if _, _, err := f.pool.IssueExact(user, common.HexToAddress("0xdead"), one); !errors.Is(err, ErrUnknownTranche) {
		t.Fatalf("expected unknown tranche, got %v", err)
	}
	if _, _, err := f.pool.IssueExact(user, eToken, uint256.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}

	// TokenB is funded but never approved.
	if err := f.tokenA.Mint(user, units(10, 18)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.tokenA.Approve(user, poolAddr, token.MaxAllowance); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.tokenB.Mint(user, units(100000, 6)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.env.DrainLogs()

	_, _, err := f.pool.IssueExact(user, eToken, one)
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
	if fault.KindOf(err) != fault.Insufficiency {
		t.Fatalf("expected insufficiency kind, got %s", fault.KindOf(err))
	}
	tr, _ := f.pool.GetTranche(eToken)
	if !tr.ReserveA.IsZero() || !tr.ReserveB.IsZero() {
		t.Fatalf("failed issue left reserves behind")
	}
	if !f.tokenA.BalanceOf(poolAddr).IsZero() || !f.tokenA.BalanceOf(user).Eq(units(10, 18)) {
		t.Fatalf("failed issue moved TokenA")
	}
	if len(f.env.DrainLogs()) != 0 {
		t.Fatalf("failed issue emitted logs")
	}

	if err := f.controller.SetPausedIssuance(guardian, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !f.pool.PausedIssuance() {
		t.Fatalf("pool should report paused issuance")
	}
	if _, _, err := f.pool.IssueExact(user, eToken, one); !errors.Is(err, ErrPausedIssuance) {
		t.Fatalf("expected paused issuance, got %v", err)
	}
}

func TestRedeemWorksWhilePaused(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))
	eToken := f.addTranche(t, ratio30To70)
	f.fund(t, user, units(10, 18), units(100000, 6))
	f.issue(t, user, eToken, one)

	if err := f.controller.SetPausedIssuance(dao, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, _, err := f.pool.RedeemExact(user, eToken, one); err != nil {
		t.Fatalf("redeem while paused: %v", err)
	}
}

func TestRoundTripWithoutFee(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))
	eToken := f.addTranche(t, ratio30To70)
	startA, startB := units(10, 18), units(100000, 6)
	f.fund(t, user, startA, startB)

	amountA, amountB := f.issue(t, user, eToken, one)
	outA, outB, err := f.pool.RedeemExact(user, eToken, one)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !outA.Eq(amountA) || !outB.Eq(amountB) {
		t.Fatalf("round trip mismatch: in %s/%s out %s/%s", amountA.Dec(), amountB.Dec(), outA.Dec(), outB.Dec())
	}
	if !f.tokenA.BalanceOf(user).Eq(startA) || !f.tokenB.BalanceOf(user).Eq(startB) {
		t.Fatalf("user balances not restored")
	}
	tr, _ := f.pool.GetTranche(eToken)
	if !tr.ReserveA.IsZero() || !tr.ReserveB.IsZero() {
		t.Fatalf("reserves should be empty after full redemption")
	}
	f.checkReserves(t)
}

func TestRedeemFeeScenario(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))
	eToken := f.addTranche(t, ratio50To50)
	if err := f.pool.SetFeeRate(dao, uint256.NewInt(1e16)); err != nil {
		t.Fatalf("set fee rate: %v", err)
	}
	f.fund(t, user, units(1000, 18), units(1000000, 6))

	// 10e18 shares of an empty tranche are worth 100 TokenA.
	shares := units(10, 18)
	amountA, amountB := f.issue(t, user, eToken, shares)
	if amountA.Dec() != "50000000000000000000" || amountB.Dec() != "90000000000" {
		t.Fatalf("issue amounts mismatch: %s %s", amountA.Dec(), amountB.Dec())
	}
	f.env.DrainLogs()

	netA, netB, err := f.pool.RedeemExact(user, eToken, shares)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if netA.Dec() != "49500000000000000000" || netB.Dec() != "89100000000" {
		t.Fatalf("net amounts mismatch: %s %s", netA.Dec(), netB.Dec())
	}
	if f.pool.CumulativeFeeA().Dec() != "500000000000000000" || f.pool.CumulativeFeeB().Dec() != "900000000" {
		t.Fatalf("fees mismatch: %s %s", f.pool.CumulativeFeeA().Dec(), f.pool.CumulativeFeeB().Dec())
	}
	f.checkReserves(t)
	evs := f.poolEvents(t)
	if len(evs) != 1 || evs[0].EventName != "RedeemedEToken" || evs[0].Field("amountA") != netA.Dec() || evs[0].Field("amountB") != netB.Dec() {
		t.Fatalf("unexpected redeem event: %v", evs)
	}

	if err := f.pool.TransferFees(user2); err != nil {
		t.Fatalf("transfer fees: %v", err)
	}
	if f.tokenA.BalanceOf(feesOwner).Dec() != "500000000000000000" || f.tokenB.BalanceOf(feesOwner).Dec() != "900000000" {
		t.Fatalf("fees owner not credited")
	}
	if !f.pool.CumulativeFeeA().IsZero() || !f.pool.CumulativeFeeB().IsZero() {
		t.Fatalf("fees not zeroed")
	}
	evs = f.poolEvents(t)
	if len(evs) != 1 || evs[0].EventName != "TransferFees" || evs[0].Field("feesOwner") != feesOwner.Hex() {
		t.Fatalf("unexpected fee events: %v", eventNames(evs))
	}

	if err := f.pool.TransferFees(user2); err != nil {
		t.Fatalf("transfer of zero fees should succeed: %v", err)
	}
	if evs := f.poolEvents(t); len(evs) != 0 {
		t.Fatalf("zero fee transfer emitted %v", eventNames(evs))
	}
	f.checkReserves(t)
}

func TestRedeemBoundaries(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))
	eToken := f.addTranche(t, ratio30To70)
	f.fund(t, user, units(10, 18), units(100000, 6))
	f.issue(t, user, eToken, one)

	_, _, err := f.pool.RedeemExact(user, eToken, new(uint256.Int).Add(one, uint256.NewInt(1)))
	if !errors.Is(err, ErrInsufficientEToken) {
		t.Fatalf("expected insufficient etoken, got %v", err)
	}
	if fault.KindOf(err) != fault.Insufficiency {
		t.Fatalf("expected insufficiency kind, got %s", fault.KindOf(err))
	}
	if _, _, err := f.pool.RedeemExact(user2, eToken, one); !errors.Is(err, ErrInsufficientEToken) {
		t.Fatalf("expected insufficient etoken for non-holder, got %v", err)
	}
	// One wei of shares pays out nothing and must fail loudly.
	if _, _, err := f.pool.RedeemExact(user, eToken, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestSharesProportional(t *testing.T) {
	f := newFixture(t, 18, 18, units(2000, 18))
	eToken := f.addTranche(t, ratio50To50)
	f.fund(t, user, units(1000, 18), units(1000000, 18))

	amountA, amountB := f.issue(t, user, eToken, one)
	if amountA.Dec() != "500000000000000000" || amountB.Dec() != "1000000000000000000000" {
		t.Fatalf("seed amounts mismatch: %s %s", amountA.Dec(), amountB.Dec())
	}

	depositA, depositB := dec("100000000000000000"), dec("200000000000000000000")
	base, err := f.helper.ETokenForTokenATokenB(f.pool, eToken, depositA, depositB)
	if err != nil {
		t.Fatalf("shares: %v", err)
	}
	for _, k := range []uint64{1, 2, 10} {
		kk := uint256.NewInt(k)
		got, err := f.helper.ETokenForTokenATokenB(f.pool, eToken,
			new(uint256.Int).Mul(depositA, kk), new(uint256.Int).Mul(depositB, kk))
		if err != nil {
			t.Fatalf("shares k=%d: %v", k, err)
		}
		if want := new(uint256.Int).Mul(base, kk); !got.Eq(want) {
			t.Fatalf("k=%d: shares %s != %s", k, got.Dec(), want.Dec())
		}
		a, b, err := f.helper.TokenATokenBForEToken(f.pool, eToken, got)
		if err != nil {
			t.Fatalf("quote k=%d: %v", k, err)
		}
		if !a.Eq(new(uint256.Int).Mul(depositA, kk)) || !b.Eq(new(uint256.Int).Mul(depositB, kk)) {
			t.Fatalf("k=%d: quote %s/%s not proportional", k, a.Dec(), b.Dec())
		}
	}
}

func TestSettersValidateAndEmit(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))

	err := f.pool.SetFeeRate(dao, new(uint256.Int).Add(FeeRateLimit, uint256.NewInt(1)))
	if !errors.Is(err, ErrFeeRateAboveLimit) || fault.KindOf(err) != fault.Policy {
		t.Fatalf("expected policy fee rate error, got %v", err)
	}
	if err := f.pool.SetFeeRate(guardian, uint256.NewInt(1)); !errors.Is(err, ErrNotDao) {
		t.Fatalf("expected not dao, got %v", err)
	}
	if err := f.pool.SetRebalanceMode(dao, 2); !errors.Is(err, ErrInvalidRebalanceMode) {
		t.Fatalf("expected invalid mode, got %v", err)
	}
	if err := f.pool.SetFeeRate(dao, nil); !errors.Is(err, ErrFeeRateAboveLimit) {
		t.Fatalf("expected nil fee rate to be rejected, got %v", err)
	}
	if err := f.pool.SetRebalanceMinRDiv(dao, nil); !errors.Is(err, ErrInvalidMinRDiv) || fault.KindOf(err) != fault.Policy {
		t.Fatalf("expected nil min rdiv to be rejected, got %v", err)
	}

	if err := f.pool.SetFeeRate(dao, FeeRateLimit); err != nil {
		t.Fatalf("set fee rate: %v", err)
	}
	if err := f.pool.SetRebalanceMode(dao, RebalanceModeAnd); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if err := f.pool.SetRebalanceMinRDiv(dao, uint256.NewInt(5e16)); err != nil {
		t.Fatalf("set min rdiv: %v", err)
	}
	if err := f.pool.SetRebalanceInterval(dao, 3600); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	if err := f.pool.SetAggregator(dao, oracle.NewStatic(common.HexToAddress("0xa8"), units(1, 18)), true); err != nil {
		t.Fatalf("set aggregator: %v", err)
	}
	ctrl2 := f.controller
	if err := f.pool.SetController(dao, ctrl2); err != nil {
		t.Fatalf("set controller: %v", err)
	}

	if !f.pool.FeeRate().Eq(FeeRateLimit) || f.pool.RebalanceMode() != RebalanceModeAnd ||
		f.pool.RebalanceMinRDiv().Uint64() != 5e16 || f.pool.RebalanceInterval() != 3600 || !f.pool.InverseRate() {
		t.Fatalf("setters not applied")
	}

	evs := f.poolEvents(t)
	want := []string{"SetFeeRate", "SetRebalanceMode", "SetRebalanceMinRDiv", "SetRebalanceInterval", "SetAggregator", "SetController"}
	if !reflect.DeepEqual(eventNames(evs), want) {
		t.Fatalf("events mismatch: %v", eventNames(evs))
	}
	if evs[4].Field("aggregator") != common.HexToAddress("0xa8").Hex() || evs[4].Field("inverseRate") != "true" {
		t.Fatalf("aggregator event mismatch: %v", evs[4].Fields)
	}
}

func TestInverseRate(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))
	answer := units(1800, 18)
	if err := f.pool.SetAggregator(dao, oracle.NewStatic(common.Address{}, answer), true); err != nil {
		t.Fatalf("set aggregator: %v", err)
	}
	rate, err := f.pool.GetRate()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	want := new(uint256.Int).Div(new(uint256.Int).Mul(one, one), answer)
	if !rate.Eq(want) {
		t.Fatalf("inverse rate %s != %s", rate.Dec(), want.Dec())
	}
}

func TestRecover(t *testing.T) {
	f := newFixture(t, 18, 6, units(1800, 18))
	eToken := f.addTranche(t, ratio30To70)
	if err := f.pool.SetFeeRate(dao, uint256.NewInt(1e16)); err != nil {
		t.Fatalf("fee rate: %v", err)
	}
	f.fund(t, user, units(10, 18), units(100000, 6))
	f.issue(t, user, eToken, units(2, 18))
	if _, _, err := f.pool.RedeemExact(user, eToken, one); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := f.pool.Recover(dao, f.tokenA, uint256.NewInt(1)); !errors.Is(err, ErrNoExcess) {
		t.Fatalf("expected no excess without stray tokens, got %v", err)
	}

	stray := uint256.NewInt(12345)
	if err := f.tokenA.Transfer(user, poolAddr, stray); err != nil {
		t.Fatalf("stray transfer: %v", err)
	}
	tokenX := token.NewERC20(f.env, common.HexToAddress("0x0c"), "Token X", "TKX", 8)
	if err := tokenX.Mint(poolAddr, uint256.NewInt(777)); err != nil {
		t.Fatalf("mint X: %v", err)
	}

	if err := f.pool.Recover(user, f.tokenA, stray); !errors.Is(err, ErrNotDao) {
		t.Fatalf("expected not dao, got %v", err)
	}
	if err := f.pool.Recover(dao, f.tokenA, new(uint256.Int).Add(stray, uint256.NewInt(1))); !errors.Is(err, ErrNoExcess) {
		t.Fatalf("expected no excess beyond stray amount, got %v", err)
	}
	f.env.DrainLogs()
	if err := f.pool.Recover(dao, f.tokenA, stray); err != nil {
		t.Fatalf("recover A: %v", err)
	}
	if err := f.pool.Recover(dao, tokenX, uint256.NewInt(777)); err != nil {
		t.Fatalf("recover X: %v", err)
	}
	if !f.tokenA.BalanceOf(dao).Eq(stray) || tokenX.BalanceOf(dao).Uint64() != 777 {
		t.Fatalf("dao not credited")
	}
	evs := f.poolEvents(t)
	if !reflect.DeepEqual(eventNames(evs), []string{"RecoveredToken", "RecoveredToken"}) {
		t.Fatalf("events mismatch: %v", eventNames(evs))
	}
	f.checkReserves(t)
}
