package keeper

import (
	"errors"
	"reflect"
	"testing"

	"github.com/holiman/uint256"

	"exposurePool/internal/events"
	"exposurePool/internal/token"
)

func TestSubsidyPoolBeneficiaries(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	if err := f.subsidy.SetBeneficiary(user, user, true); !errors.Is(err, ErrSubsidyNotDaoOrGuardian) {
		t.Fatalf("expected not dao or guardian, got %v", err)
	}
	if err := f.subsidy.SetBeneficiary(guardian, bot, true); err != nil {
		t.Fatalf("set beneficiary: %v", err)
	}
	if !f.subsidy.IsBeneficiary(bot) {
		t.Fatalf("beneficiary not recorded")
	}
	evs := f.eventsOf(t, events.SubsidyPool, subsidyAddr)
	want := map[string]string{"beneficiary": bot.Hex(), "canRequest": "true"}
	if len(evs) != 1 || evs[0].EventName != "SetBeneficiary" || !reflect.DeepEqual(evs[0].Fields, want) {
		t.Fatalf("event mismatch: %+v", evs)
	}

	if err := f.subsidy.SetBeneficiary(dao, bot, false); err != nil {
		t.Fatalf("unset beneficiary: %v", err)
	}
	if f.subsidy.IsBeneficiary(bot) {
		t.Fatalf("beneficiary not removed")
	}
}

func TestSubsidyPoolRequest(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	if err := f.weth.Mint(subsidyAddr, one); err != nil {
		t.Fatalf("fund: %v", err)
	}
	amount := uint256.NewInt(4e17)
	if err := f.subsidy.RequestSubsidy(bot, f.weth, amount); !errors.Is(err, ErrNotBeneficiary) {
		t.Fatalf("expected not beneficiary, got %v", err)
	}
	if err := f.subsidy.SetBeneficiary(dao, bot, true); err != nil {
		t.Fatalf("set beneficiary: %v", err)
	}
	f.env.DrainLogs()

	if err := f.subsidy.RequestSubsidy(bot, f.weth, amount); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !f.weth.BalanceOf(bot).Eq(amount) {
		t.Fatalf("beneficiary balance mismatch: %s", f.weth.BalanceOf(bot).Dec())
	}
	evs := f.eventsOf(t, events.SubsidyPool, subsidyAddr)
	want := map[string]string{"beneficiary": bot.Hex(), "token": f.weth.Address().Hex(), "amount": amount.Dec()}
	if len(evs) != 1 || evs[0].EventName != "RequestedSubsidy" || !reflect.DeepEqual(evs[0].Fields, want) {
		t.Fatalf("event mismatch: %+v", evs)
	}

	if err := f.subsidy.RequestSubsidy(bot, f.weth, one); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if logs := f.env.DrainLogs(); len(logs) != 0 {
		t.Fatalf("failed request emitted %d logs", len(logs))
	}
}

func TestSubsidyPoolAdmin(t *testing.T) {
	f := newFixture(t, units(100, 18), units(200000, 6))
	if err := f.usdc.Mint(subsidyAddr, units(5, 6)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := f.subsidy.Recover(guardian, f.usdc, units(1, 6)); !errors.Is(err, ErrSubsidyNotDao) {
		t.Fatalf("expected not dao, got %v", err)
	}
	if err := f.subsidy.Recover(dao, f.usdc, units(6, 6)); !errors.Is(err, ErrSubsidyNoExcess) {
		t.Fatalf("expected no excess, got %v", err)
	}
	if err := f.subsidy.Recover(dao, f.usdc, units(5, 6)); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !f.usdc.BalanceOf(dao).Eq(units(5, 6)) {
		t.Fatalf("dao balance mismatch: %s", f.usdc.BalanceOf(dao).Dec())
	}

	if err := f.subsidy.SetController(guardian, f.controller); !errors.Is(err, ErrSubsidyNotDao) {
		t.Fatalf("expected not dao, got %v", err)
	}
	if err := f.subsidy.SetController(dao, nil); !errors.Is(err, ErrInvalidController) {
		t.Fatalf("expected invalid controller, got %v", err)
	}
	if err := f.subsidy.SetController(dao, f.controller); err != nil {
		t.Fatalf("set controller: %v", err)
	}
}
