package scenario

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/amm"
	"exposurePool/internal/controller"
	"exposurePool/internal/epool"
	"exposurePool/internal/keeper"
	"exposurePool/internal/model"
	"exposurePool/internal/oracle"
	"exposurePool/internal/periphery"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

// KeeperAccount is the account name that resolves to the keeper address.
const KeeperAccount = "keeper"

// Options override parts of the deployment.
type Options struct {
	// Aggregator replaces the in-memory oracle, e.g. with a live feed.
	Aggregator oracle.Aggregator
	// Clock replaces the manual clock starting at the scenario start time.
	Clock  txn.Clock
	Logger *zap.Logger
}

// World is a deployed scenario.
type World struct {
	Scenario *Scenario

	Env        *txn.Env
	Clock      *txn.ManualClock
	Controller *controller.Controller
	Tokens     map[string]*token.ERC20
	TokenA     *token.ERC20
	TokenB     *token.ERC20
	Oracle     *oracle.Static
	Pool       *epool.Pool
	ETokens    []common.Address
	Helper     *epool.Helper

	Pairs     *amm.Factory
	Router    *amm.Router
	Pair      *amm.Pair
	Periphery *periphery.Periphery
	Subsidy   *keeper.SubsidyPool
	Adapter   *keeper.NetworkAdapter

	Dao      common.Address
	Keeper   common.Address
	Accounts map[string]common.Address

	logger *zap.Logger
}

// AccountAddress returns the address declared for name, or one derived
// from the name when none is declared.
func AccountAddress(name, declared string) (common.Address, error) {
	if declared == "" {
		return common.BytesToAddress(crypto.Keccak256([]byte(name))[12:]), nil
	}
	if !common.IsHexAddress(declared) {
		return common.Address{}, fmt.Errorf("invalid address %q for %s", declared, name)
	}
	return common.HexToAddress(declared), nil
}

// Build deploys sc into a fresh environment.
func Build(sc *Scenario, opts Options) (*World, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &World{
		Scenario: sc,
		Tokens:   make(map[string]*token.ERC20),
		Accounts: make(map[string]common.Address),
		logger:   logger,
	}

	clock := opts.Clock
	if clock == nil {
		w.Clock = txn.NewManualClock(sc.StartTime)
		clock = w.Clock
	}
	w.Env = txn.NewEnv(sc.ChainID, clock, logger)

	var err error
	if w.Dao, err = AccountAddress("dao", sc.Dao); err != nil {
		return nil, err
	}
	if w.Keeper, err = AccountAddress(KeeperAccount, sc.Keeper.Address); err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		fn   func(opts Options) error
	}{
		{"controller", w.deployController},
		{"tokens", w.deployTokens},
		{"pool", w.deployPool},
		{"amm", w.deployAMM},
		{"keeper", w.deployKeeper},
		{"accounts", w.fundAccounts},
	}
	for _, step := range steps {
		if err := step.fn(opts); err != nil {
			return nil, fmt.Errorf("deploy %s: %w", step.name, err)
		}
	}
	logger.Info("scenario deployed",
		zap.String("scenario", sc.Name),
		zap.String("epool", w.Pool.Address().Hex()),
		zap.Int("tranches", len(w.ETokens)),
		zap.Bool("periphery", w.Periphery != nil),
	)
	return w, nil
}

func (w *World) deployController(Options) error {
	w.Controller = controller.New(w.Env, w.Env.Deploy(w.Dao), w.Dao, w.logger)
	if w.Scenario.Guardian != "" {
		guardian, err := AccountAddress("guardian", w.Scenario.Guardian)
		if err != nil {
			return err
		}
		if err := w.Controller.SetGuardian(w.Dao, guardian); err != nil {
			return err
		}
	}
	if w.Scenario.FeesOwner != "" {
		owner, err := AccountAddress("fees_owner", w.Scenario.FeesOwner)
		if err != nil {
			return err
		}
		if err := w.Controller.SetFeesOwner(w.Dao, owner); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) deployTokens(Options) error {
	for _, spec := range w.Scenario.Tokens {
		name := spec.Name
		if name == "" {
			name = spec.Symbol
		}
		w.Tokens[spec.Symbol] = token.NewERC20(w.Env, w.Env.Deploy(w.Dao), name, spec.Symbol, spec.Decimals)
	}
	w.TokenA = w.Tokens[w.Scenario.Pool.TokenA]
	w.TokenB = w.Tokens[w.Scenario.Pool.TokenB]
	return nil
}

func (w *World) deployPool(opts Options) error {
	spec := w.Scenario.Pool
	aggregator := opts.Aggregator
	if aggregator == nil {
		answer, err := parseFixed(w.Scenario.Oracle.Answer)
		if err != nil {
			return err
		}
		w.Oracle = oracle.NewStatic(w.Env.Deploy(w.Dao), answer)
		aggregator = w.Oracle
	}

	pool, err := epool.New(w.Env, epool.Config{
		Address:     w.Env.Deploy(w.Dao),
		TokenA:      w.TokenA,
		TokenB:      w.TokenB,
		Aggregator:  aggregator,
		InverseRate: w.Scenario.Oracle.InverseRate,
		Controller:  w.Controller,
		Factory:     token.NewFactory(w.Env, w.Env.Deploy(w.Dao)),
		Logger:      w.logger,
	})
	if err != nil {
		return err
	}
	w.Pool = pool
	w.Helper = epool.NewHelper(w.Env.Deploy(w.Dao))

	if spec.FeeRate != "" {
		feeRate, err := parseFixed(spec.FeeRate)
		if err != nil {
			return err
		}
		if err := pool.SetFeeRate(w.Dao, feeRate); err != nil {
			return err
		}
	}
	if spec.RebalanceMode != epool.RebalanceModeOr {
		if err := pool.SetRebalanceMode(w.Dao, spec.RebalanceMode); err != nil {
			return err
		}
	}
	if spec.RebalanceMinRDiv != "" {
		minRDiv, err := parseFixed(spec.RebalanceMinRDiv)
		if err != nil {
			return err
		}
		if err := pool.SetRebalanceMinRDiv(w.Dao, minRDiv); err != nil {
			return err
		}
	}
	if spec.RebalanceInterval > 0 {
		if err := pool.SetRebalanceInterval(w.Dao, spec.RebalanceInterval); err != nil {
			return err
		}
	}
	for _, t := range spec.Tranches {
		ratio, err := parseFixed(t.TargetRatio)
		if err != nil {
			return err
		}
		eToken, err := pool.AddTranche(w.Dao, ratio, t.Name, t.Symbol)
		if err != nil {
			return err
		}
		w.ETokens = append(w.ETokens, eToken)
	}
	return nil
}

func (w *World) deployAMM(Options) error {
	spec := w.Scenario.Pair
	if spec == nil {
		return nil
	}
	fee := spec.Fee
	if fee == 0 {
		fee = periphery.DefaultFeeTier
	}
	w.Pairs = amm.NewFactory(w.Env, w.Env.Deploy(w.Dao), w.logger)
	w.Router = amm.NewRouter(w.Env, w.Env.Deploy(w.Dao), w.Pairs)
	pair, err := w.Pairs.CreatePair(w.TokenA, w.TokenB, fee)
	if err != nil {
		return err
	}
	w.Pair = pair
	if err := w.mint(w.TokenA, pair.Address(), spec.AmountA); err != nil {
		return err
	}
	if err := w.mint(w.TokenB, pair.Address(), spec.AmountB); err != nil {
		return err
	}
	return pair.Sync()
}

func (w *World) deployKeeper(Options) error {
	w.Subsidy = keeper.NewSubsidyPool(w.Env, w.Env.Deploy(w.Dao), w.Controller, w.logger)
	for _, sym := range sortedKeys(w.Scenario.Keeper.Subsidy) {
		if err := w.mint(w.Tokens[sym], w.Subsidy.Address(), w.Scenario.Keeper.Subsidy[sym]); err != nil {
			return err
		}
	}
	if w.Pair == nil {
		return nil
	}

	cfg := periphery.Config{
		Address:    w.Env.Deploy(w.Dao),
		Controller: w.Controller,
		Pairs:      w.Pairs,
		Router:     w.Router,
		Subsidy:    w.Subsidy,
		Helper:     w.Helper,
		Logger:     w.logger,
	}
	if s := w.Scenario.Periphery.MaxFlashSwapSlippage; s != "" {
		slippage, err := parseFixed(s)
		if err != nil {
			return err
		}
		cfg.MaxFlashSwapSlippage = slippage
	}
	p, err := periphery.New(w.Env, cfg)
	if err != nil {
		return err
	}
	w.Periphery = p
	if err := p.SetFeeTierForPair(w.Dao, w.TokenA.Address(), w.TokenB.Address(), w.Pair.Fee()); err != nil {
		return err
	}
	if err := p.SetEPoolApproval(w.Dao, w.Pool, true); err != nil {
		return err
	}
	if err := w.Subsidy.SetBeneficiary(w.Dao, p.Address(), true); err != nil {
		return err
	}

	w.Adapter = keeper.NewNetworkAdapter(w.Env, w.Env.Deploy(w.Dao), w.Controller, w.Helper, w.logger)
	if err := w.Adapter.AddEPool(w.Dao, w.Pool, p); err != nil {
		return err
	}
	if iv := w.Scenario.Keeper.RebalanceInterval; iv > 0 {
		if err := w.Adapter.SetKeeperRebalanceInterval(w.Dao, iv); err != nil {
			return err
		}
	}
	if s := w.Scenario.Keeper.RebalanceMinRDiv; s != "" {
		minRDiv, err := parseFixed(s)
		if err != nil {
			return err
		}
		if err := w.Adapter.SetKeeperRebalanceMinRDiv(w.Dao, minRDiv); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) fundAccounts(Options) error {
	w.Accounts[KeeperAccount] = w.Keeper
	for _, name := range sortedKeys(w.Scenario.Accounts) {
		acct := w.Scenario.Accounts[name]
		addr, err := AccountAddress(name, acct.Address)
		if err != nil {
			return err
		}
		w.Accounts[name] = addr
		for _, sym := range sortedKeys(acct.Balances) {
			if err := w.mint(w.Tokens[sym], addr, acct.Balances[sym]); err != nil {
				return err
			}
		}
		spenders := []common.Address{w.Pool.Address()}
		if w.Periphery != nil {
			spenders = append(spenders, w.Periphery.Address())
		}
		for _, tok := range []*token.ERC20{w.TokenA, w.TokenB} {
			for _, spender := range spenders {
				if err := tok.Approve(addr, spender, token.MaxAllowance); err != nil {
					return err
				}
			}
		}
		if w.Periphery != nil {
			for _, eToken := range w.ETokens {
				et, err := w.Pool.EToken(eToken)
				if err != nil {
					return err
				}
				if err := et.Approve(addr, w.Periphery.Address(), token.MaxAllowance); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (w *World) mint(tok *token.ERC20, to common.Address, amount string) error {
	value, err := parseUnits(amount, tok.Decimals())
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	return tok.Mint(to, value)
}

// Snapshots captures every tranche of the pool at the current block time.
func (w *World) Snapshots() ([]model.TrancheSnapshot, error) {
	rate, err := w.Pool.GetRate()
	if err != nil {
		return nil, err
	}
	captured := w.now()
	out := make([]model.TrancheSnapshot, 0, len(w.ETokens))
	for i, eToken := range w.ETokens {
		t, err := w.Pool.GetTranche(eToken)
		if err != nil {
			return nil, err
		}
		supply, err := w.Pool.TotalSupply(eToken)
		if err != nil {
			return nil, err
		}
		ratio := new(uint256.Int)
		if !t.ReserveA.IsZero() || !t.ReserveB.IsZero() {
			if ratio, err = w.Helper.CurrentRatio(w.Pool, eToken); err != nil {
				return nil, err
			}
		}
		out = append(out, model.TrancheSnapshot{
			ChainID:          w.Env.ChainID(),
			PoolAddress:      w.Pool.Address().Hex(),
			EToken:           eToken.Hex(),
			Index:            i,
			TargetRatio:      t.TargetRatio.Dec(),
			CurrentRatio:     ratio.Dec(),
			ReserveA:         t.ReserveA.Dec(),
			ReserveB:         t.ReserveB.Dec(),
			TotalSupply:      supply.Dec(),
			Rate:             rate.Dec(),
			LastRebalancedAt: t.LastRebalancedAt,
			CapturedAt:       captured,
		})
	}
	return out, nil
}
