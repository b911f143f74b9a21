package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/holiman/uint256"
)

const flashScenario = `
name: flash-30-70
chain_id: 31337
start_time: 1700000000
dao: "0x00000000000000000000000000000000000000da"
guardian: "0x00000000000000000000000000000000000000ee"
tokens:
  - {symbol: WETH, name: Wrapped Ether, decimals: 18}
  - {symbol: USDC, name: USD Coin, decimals: 6}
oracle:
  answer: "2000"
pool:
  token_a: WETH
  token_b: USDC
  tranches:
    - {name: EToken WETH30/USDC70, symbol: ET_WETH30/USDC70, target_ratio: "0.428571428571428571"}
pair:
  fee: 500
  amount_a: "100"
  amount_b: "230000"
periphery:
  max_flash_swap_slippage: "1.2"
accounts:
  lp:
    balances: {WETH: "10", USDC: "100000"}
steps:
  - {action: issue, account: lp, amount: "1"}
  - {action: set_rate, answer: "2200"}
  - {action: upkeep, account: keeper}
  - {action: upkeep, account: keeper, expect_error: "upkeep not needed"}
`

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"0.3", 18, "300000000000000000"},
		{"1400.000001", 6, "1400000001"},
		{"", 6, "0"},
		{"0.428571428571428571", 18, "428571428571428571"},
	}
	for _, tc := range cases {
		got, err := parseUnits(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got.Dec() != tc.want {
			t.Fatalf("parse %q: got %s want %s", tc.in, got.Dec(), tc.want)
		}
	}
	for _, bad := range []string{"-1", "abc", "0.0000001"} {
		if _, err := parseUnits(bad, 6); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
	if got := FormatUnits(uint256.NewInt(1400000001), 6); got != "1400.000001" {
		t.Fatalf("format mismatch: %s", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing dao", "tokens: [{symbol: A}, {symbol: B}]\npool: {token_a: A, token_b: B, tranches: [{target_ratio: '1'}]}", "dao is required"},
		{"undeclared pool token", "dao: '0x01'\ntokens: [{symbol: A}]\npool: {token_a: A, token_b: B, tranches: [{target_ratio: '1'}]}", "not declared"},
		{"no tranches", "dao: '0x01'\ntokens: [{symbol: A}, {symbol: B}]\npool: {token_a: A, token_b: B}", "at least one tranche"},
		{"unknown account", "dao: '0x01'\ntokens: [{symbol: A}, {symbol: B}]\npool: {token_a: A, token_b: B, tranches: [{target_ratio: '1'}]}\nsteps: [{action: issue, account: bob}]", "unknown account bob"},
		{"unknown tranche", "dao: '0x01'\ntokens: [{symbol: A}, {symbol: B}]\npool: {token_a: A, token_b: B, tranches: [{target_ratio: '1'}]}\nsteps: [{action: issue, tranche: 3}]", "unknown tranche 3"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRunFlashScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(flashScenario), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	w, err := Build(sc, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	results, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 4 || results[0].Detail != "0.3 WETH, 1400.000001 USDC" {
		t.Fatalf("results mismatch: %+v", results)
	}
	if got := w.TokenA.BalanceOf(w.Keeper); got.Dec() != "817567515999012" {
		t.Fatalf("keeper leftover mismatch: %s", got.Dec())
	}

	snaps, err := w.Snapshots()
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].TotalSupply != "1000000000000000000" || snaps[0].Rate != "2200000000000000000000" {
		t.Fatalf("snapshot mismatch: %+v", snaps)
	}
	ratio := uint256.MustFromDecimal(snaps[0].CurrentRatio)
	target := uint256.MustFromDecimal("428571428571428571")
	diff := new(uint256.Int)
	if ratio.Gt(target) {
		diff.Sub(ratio, target)
	} else {
		diff.Sub(target, ratio)
	}
	if diff.Gt(uint256.NewInt(1e10)) {
		t.Fatalf("tranche not rebalanced: %s", snaps[0].CurrentRatio)
	}
	if snaps[0].LastRebalancedAt != 1700000000 {
		t.Fatalf("last rebalanced mismatch: %d", snaps[0].LastRebalancedAt)
	}
}

func TestRunStopsOnUnexpectedOutcome(t *testing.T) {
	sc, err := Parse([]byte(flashScenario))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sc.Steps = []Step{
		{Action: "issue", Account: "lp", Amount: "1", ExpectErr: "paused"},
		{Action: "set_rate", Answer: "2200"},
	}
	w, err := Build(sc, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	results, err := w.Run(context.Background())
	if !errors.Is(err, ErrUnexpectedOutcome) {
		t.Fatalf("expected unexpected outcome, got %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("run should stop at the first step, got %d results", len(results))
	}
}

func TestRunExpectedFailureIsReverted(t *testing.T) {
	sc, err := Parse([]byte(flashScenario))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sc.Steps = []Step{
		{Action: "pause_issuance", Account: ""},
		{Action: "issue", Account: "lp", Amount: "1", ExpectErr: "paused"},
		{Action: "resume_issuance"},
		{Action: "issue", Account: "lp", Amount: "0.5"},
	}
	w, err := Build(sc, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	results, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var actions []string
	for _, r := range results {
		actions = append(actions, r.Action)
	}
	if !reflect.DeepEqual(actions, []string{"pause_issuance", "issue", "resume_issuance", "issue"}) {
		t.Fatalf("actions mismatch: %v", actions)
	}
	supply, err := w.Pool.TotalSupply(w.ETokens[0])
	if err != nil || supply.Dec() != "500000000000000000" {
		t.Fatalf("supply mismatch: %v %v", supply, err)
	}
}
