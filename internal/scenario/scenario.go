// Package scenario loads YAML descriptions of an engine deployment and a
// sequence of actions, builds the deployment and replays the actions.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is the root of a scenario file. Amounts are human decimals in
// the unit of the token they refer to; ratios and rates are plain decimals.
type Scenario struct {
	Name      string             `yaml:"name"`
	ChainID   uint64             `yaml:"chain_id"`
	StartTime uint64             `yaml:"start_time"`
	Dao       string             `yaml:"dao"`
	Guardian  string             `yaml:"guardian"`
	FeesOwner string             `yaml:"fees_owner"`
	Tokens    []TokenSpec        `yaml:"tokens"`
	Oracle    OracleSpec         `yaml:"oracle"`
	Pool      PoolSpec           `yaml:"pool"`
	Pair      *PairSpec          `yaml:"pair"`
	Periphery PeripherySpec      `yaml:"periphery"`
	Keeper    KeeperSpec         `yaml:"keeper"`
	Accounts  map[string]Account `yaml:"accounts"`
	Steps     []Step             `yaml:"steps"`
}

type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// OracleSpec configures the price source. Answer is the initial answer of
// the in-memory aggregator, ignored when the caller injects a live feed.
type OracleSpec struct {
	Answer      string `yaml:"answer"`
	InverseRate bool   `yaml:"inverse_rate"`
}

type PoolSpec struct {
	TokenA            string        `yaml:"token_a"`
	TokenB            string        `yaml:"token_b"`
	FeeRate           string        `yaml:"fee_rate"`
	RebalanceMode     uint8         `yaml:"rebalance_mode"`
	RebalanceMinRDiv  string        `yaml:"rebalance_min_rdiv"`
	RebalanceInterval uint64        `yaml:"rebalance_interval"`
	Tranches          []TrancheSpec `yaml:"tranches"`
}

type TrancheSpec struct {
	Name        string `yaml:"name"`
	Symbol      string `yaml:"symbol"`
	TargetRatio string `yaml:"target_ratio"`
}

// PairSpec seeds the AMM pair used for swaps and flash swaps.
type PairSpec struct {
	Fee     uint32 `yaml:"fee"`
	AmountA string `yaml:"amount_a"`
	AmountB string `yaml:"amount_b"`
}

type PeripherySpec struct {
	MaxFlashSwapSlippage string `yaml:"max_flash_swap_slippage"`
}

type KeeperSpec struct {
	Address           string            `yaml:"address"`
	RebalanceInterval uint64            `yaml:"rebalance_interval"`
	RebalanceMinRDiv  string            `yaml:"rebalance_min_rdiv"`
	Subsidy           map[string]string `yaml:"subsidy"`
}

// Account is a named actor with initial token balances.
type Account struct {
	Address  string            `yaml:"address"`
	Balances map[string]string `yaml:"balances"`
}

// Step is one action. Only the fields the action uses are read.
type Step struct {
	Action    string `yaml:"action"`
	Account   string `yaml:"account"`
	Tranche   int    `yaml:"tranche"`
	Amount    string `yaml:"amount"`
	Limit     string `yaml:"limit"`
	Answer    string `yaml:"answer"`
	Frac      string `yaml:"frac"`
	Seconds   uint64 `yaml:"seconds"`
	Slippage  string `yaml:"slippage"`
	ExpectErr string `yaml:"expect_error"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates scenario YAML.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks references between sections.
func (s *Scenario) Validate() error {
	if s.ChainID == 0 {
		s.ChainID = 31337
	}
	if s.Dao == "" {
		return fmt.Errorf("scenario: dao is required")
	}
	symbols := make(map[string]bool, len(s.Tokens))
	for _, tok := range s.Tokens {
		if tok.Symbol == "" {
			return fmt.Errorf("scenario: token without symbol")
		}
		if symbols[tok.Symbol] {
			return fmt.Errorf("scenario: duplicate token %s", tok.Symbol)
		}
		symbols[tok.Symbol] = true
	}
	if !symbols[s.Pool.TokenA] || !symbols[s.Pool.TokenB] {
		return fmt.Errorf("scenario: pool tokens %q/%q are not declared", s.Pool.TokenA, s.Pool.TokenB)
	}
	if s.Pool.TokenA == s.Pool.TokenB {
		return fmt.Errorf("scenario: pool tokens must differ")
	}
	if len(s.Pool.Tranches) == 0 {
		return fmt.Errorf("scenario: at least one tranche is required")
	}
	for name, acct := range s.Accounts {
		for sym := range acct.Balances {
			if !symbols[sym] {
				return fmt.Errorf("scenario: account %s holds undeclared token %s", name, sym)
			}
		}
	}
	for sym := range s.Keeper.Subsidy {
		if !symbols[sym] {
			return fmt.Errorf("scenario: subsidy in undeclared token %s", sym)
		}
	}
	for i, step := range s.Steps {
		if step.Action == "" {
			return fmt.Errorf("scenario: step %d has no action", i)
		}
		if step.Account != "" {
			if _, ok := s.Accounts[step.Account]; !ok && step.Account != "keeper" {
				return fmt.Errorf("scenario: step %d uses unknown account %s", i, step.Account)
			}
		}
		if step.Tranche < 0 || step.Tranche >= len(s.Pool.Tranches) {
			return fmt.Errorf("scenario: step %d uses unknown tranche %d", i, step.Tranche)
		}
	}
	return nil
}
