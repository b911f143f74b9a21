package keeper

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/epmath"
	"exposurePool/internal/epool"
	"exposurePool/internal/events"
	"exposurePool/internal/periphery"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

// Rebalancer is the periphery surface the adapter drives.
type Rebalancer interface {
	Address() common.Address
	Subsidy() periphery.SubsidySource
	EstimateFlashSwap(pool periphery.EPool) (periphery.FlashSwapEstimate, error)
	RebalanceWithFlashSwap(caller common.Address, pool periphery.EPool, maxSlippage *uint256.Int) error
}

type registration struct {
	pool      periphery.EPool
	periphery Rebalancer
}

// Upkeep is the outcome of CheckUpkeep for one pool.
type Upkeep struct {
	Pool     common.Address
	Estimate periphery.FlashSwapEstimate
}

// NetworkAdapter decides when registered pools need a flash swap rebalance
// and performs it on behalf of an off-chain keeper.
type NetworkAdapter struct {
	env    *txn.Env
	events *events.Emitter
	logger *zap.Logger

	address    common.Address
	controller epool.Roles
	helper     *epool.Helper

	pools               []registration
	lastKeeperRebalance map[common.Address]uint64
	rebalanceInterval   uint64
	rebalanceMinRDiv    *uint256.Int
}

var performDataArgs = func() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "ePool", Type: addressType}}
}()

// NewNetworkAdapter creates an adapter at address.
func NewNetworkAdapter(env *txn.Env, address common.Address, controller epool.Roles, helper *epool.Helper, logger *zap.Logger) *NetworkAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if helper == nil {
		helper = epool.NewHelper(common.Address{})
	}
	return &NetworkAdapter{
		env:                 env,
		events:              events.NewEmitter(env, events.NetworkAdapter, address),
		logger:              logger,
		address:             address,
		controller:          controller,
		helper:              helper,
		lastKeeperRebalance: make(map[common.Address]uint64),
		rebalanceMinRDiv:    new(uint256.Int),
	}
}

func (a *NetworkAdapter) Address() common.Address {
	return a.address
}

func (a *NetworkAdapter) Controller() epool.Roles {
	return a.controller
}

func (a *NetworkAdapter) Helper() *epool.Helper {
	return a.helper
}

func (a *NetworkAdapter) KeeperRebalanceInterval() uint64 {
	return a.rebalanceInterval
}

func (a *NetworkAdapter) KeeperRebalanceMinRDiv() *uint256.Int {
	return a.rebalanceMinRDiv.Clone()
}

// EPools lists registered pools in registration order.
func (a *NetworkAdapter) EPools() []common.Address {
	out := make([]common.Address, 0, len(a.pools))
	for _, r := range a.pools {
		out = append(out, r.pool.Address())
	}
	return out
}

// PeripheryForEPool returns the periphery registered for pool, or the zero
// address.
func (a *NetworkAdapter) PeripheryForEPool(pool common.Address) common.Address {
	if i := a.indexOf(pool); i >= 0 {
		return a.pools[i].periphery.Address()
	}
	return common.Address{}
}

// LastKeeperRebalance returns when the adapter last rebalanced pool.
func (a *NetworkAdapter) LastKeeperRebalance(pool common.Address) uint64 {
	return a.lastKeeperRebalance[pool]
}

func (a *NetworkAdapter) indexOf(pool common.Address) int {
	for i, r := range a.pools {
		if r.pool.Address() == pool {
			return i
		}
	}
	return -1
}

// SetController replaces the role registry.
func (a *NetworkAdapter) SetController(caller common.Address, controller epool.Roles) error {
	if !a.controller.IsDao(caller) {
		return ErrAdapterNotDao
	}
	if controller == nil {
		return ErrInvalidController
	}
	return a.env.Atomic(func() error {
		prev := a.controller
		a.controller = controller
		a.env.Record(func() { a.controller = prev })
		return a.events.Emit("SetController", controller.Address())
	})
}

// AddEPool registers pool with the periphery that rebalances it.
func (a *NetworkAdapter) AddEPool(caller common.Address, pool periphery.EPool, rebalancer Rebalancer) error {
	if !a.controller.IsDaoOrGuardian(caller) {
		return ErrAdapterNotDaoOrGuardian
	}
	if a.indexOf(pool.Address()) >= 0 {
		return ErrEPoolExists
	}
	return a.env.Atomic(func() error {
		a.pools = append(a.pools, registration{pool: pool, periphery: rebalancer})
		a.env.Record(func() { a.pools = a.pools[:len(a.pools)-1] })
		return a.events.Emit("AddedEPool", pool.Address(), rebalancer.Address())
	})
}

// RemoveEPool unregisters pool.
func (a *NetworkAdapter) RemoveEPool(caller, pool common.Address) error {
	if !a.controller.IsDaoOrGuardian(caller) {
		return ErrAdapterNotDaoOrGuardian
	}
	i := a.indexOf(pool)
	if i < 0 {
		return ErrUnknownEPool
	}
	return a.env.Atomic(func() error {
		prev := a.pools
		a.pools = append(append([]registration(nil), prev[:i]...), prev[i+1:]...)
		a.env.Record(func() { a.pools = prev })
		return a.events.Emit("RemovedEPool", pool)
	})
}

// SetEPoolHelper replaces the helper used to measure deviations.
func (a *NetworkAdapter) SetEPoolHelper(caller common.Address, helper *epool.Helper) error {
	if !a.controller.IsDaoOrGuardian(caller) {
		return ErrAdapterNotDaoOrGuardian
	}
	if helper == nil {
		helper = epool.NewHelper(common.Address{})
	}
	return a.env.Atomic(func() error {
		prev := a.helper
		a.helper = helper
		a.env.Record(func() { a.helper = prev })
		return a.events.Emit("SetEPoolHelper", helper.Address())
	})
}

// SetKeeperRebalanceInterval sets the minimum time between two keeper
// rebalances of the same pool.
func (a *NetworkAdapter) SetKeeperRebalanceInterval(caller common.Address, interval uint64) error {
	if !a.controller.IsDaoOrGuardian(caller) {
		return ErrAdapterNotDaoOrGuardian
	}
	return a.env.Atomic(func() error {
		prev := a.rebalanceInterval
		a.rebalanceInterval = interval
		a.env.Record(func() { a.rebalanceInterval = prev })
		return a.events.Emit("SetKeeperRebalanceInterval", new(uint256.Int).SetUint64(interval))
	})
}

// SetKeeperRebalanceMinRDiv sets the minimum deviation worth an upkeep.
func (a *NetworkAdapter) SetKeeperRebalanceMinRDiv(caller common.Address, minRDiv *uint256.Int) error {
	if !a.controller.IsDaoOrGuardian(caller) {
		return ErrAdapterNotDaoOrGuardian
	}
	if minRDiv == nil {
		minRDiv = new(uint256.Int)
	}
	return a.env.Atomic(func() error {
		prev := a.rebalanceMinRDiv
		a.rebalanceMinRDiv = minRDiv.Clone()
		a.env.Record(func() { a.rebalanceMinRDiv = prev })
		return a.events.Emit("SetKeeperRebalanceMinRDiv", minRDiv)
	})
}

func (a *NetworkAdapter) intervalElapsed(pool common.Address) bool {
	last, ok := a.lastKeeperRebalance[pool]
	if !ok {
		return true
	}
	return epmath.Elapsed(a.env.Now(), last, a.rebalanceInterval)
}

// check reports whether r needs an upkeep now.
func (a *NetworkAdapter) check(r registration) (Upkeep, bool) {
	addr := r.pool.Address()
	log := a.logger.With(zap.String("epool", addr.Hex()))
	if !a.intervalElapsed(addr) {
		return Upkeep{}, false
	}
	eligible, err := r.pool.RebalanceDelta()
	if err != nil {
		log.Debug("rebalance delta unavailable", zap.Error(err))
		return Upkeep{}, false
	}
	if eligible.IsZero() {
		return Upkeep{}, false
	}
	full, err := a.helper.Delta(r.pool)
	if err != nil {
		log.Debug("helper delta unavailable", zap.Error(err))
		return Upkeep{}, false
	}
	if full.RDiv == nil || full.RDiv.Lt(a.rebalanceMinRDiv) {
		return Upkeep{}, false
	}
	est, err := r.periphery.EstimateFlashSwap(r.pool)
	if err != nil {
		log.Debug("flash swap estimate failed", zap.Error(err))
		return Upkeep{}, false
	}
	if !est.Shortfall.IsZero() && !a.subsidyCovers(r, est) {
		log.Debug("shortfall not covered", zap.String("shortfall", est.Shortfall.Dec()))
		return Upkeep{}, false
	}
	return Upkeep{Pool: addr, Estimate: est}, true
}

func (a *NetworkAdapter) subsidyCovers(r registration, est periphery.FlashSwapEstimate) bool {
	subsidy := r.periphery.Subsidy()
	if subsidy == nil || !subsidy.IsBeneficiary(r.periphery.Address()) {
		return false
	}
	repay := r.pool.TokenA()
	if repay.Address() != est.RepayToken {
		repay = r.pool.TokenB()
	}
	return !repay.BalanceOf(subsidy.Address()).Lt(est.Shortfall)
}

// CheckUpkeep returns the first pool that needs a rebalance and the
// performData to hand to PerformUpkeep.
func (a *NetworkAdapter) CheckUpkeep() (bool, []byte, error) {
	upkeep, ok := a.NextUpkeep()
	if !ok {
		return false, nil, nil
	}
	data, err := performDataArgs.Pack(upkeep.Pool)
	if err != nil {
		return false, nil, err
	}
	return true, data, nil
}

// NextUpkeep is CheckUpkeep with the decoded result.
func (a *NetworkAdapter) NextUpkeep() (Upkeep, bool) {
	for _, r := range a.pools {
		if upkeep, ok := a.check(r); ok {
			return upkeep, true
		}
	}
	return Upkeep{}, false
}

// DecodePerformData returns the pool address packed by CheckUpkeep.
func DecodePerformData(data []byte) (common.Address, error) {
	values, err := performDataArgs.Unpack(data)
	if err != nil || len(values) != 1 {
		return common.Address{}, ErrInvalidPerformData
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, ErrInvalidPerformData
	}
	return addr, nil
}

// PerformUpkeep rebalances the pool named by performData and forwards any
// leftover to caller.
func (a *NetworkAdapter) PerformUpkeep(caller common.Address, performData []byte) error {
	addr, err := DecodePerformData(performData)
	if err != nil {
		return err
	}
	i := a.indexOf(addr)
	if i < 0 {
		return ErrUnknownEPool
	}
	if !a.intervalElapsed(addr) {
		return ErrUpkeepNotNeeded
	}
	r := a.pools[i]
	tokens := []token.Token{r.pool.TokenA(), r.pool.TokenB()}

	return a.env.Atomic(func() error {
		prev, existed := a.lastKeeperRebalance[addr]
		a.lastKeeperRebalance[addr] = a.env.Now()
		a.env.Record(func() {
			if existed {
				a.lastKeeperRebalance[addr] = prev
			} else {
				delete(a.lastKeeperRebalance, addr)
			}
		})

		before := make([]*uint256.Int, len(tokens))
		for j, tok := range tokens {
			before[j] = tok.BalanceOf(a.address)
		}
		if err := r.periphery.RebalanceWithFlashSwap(a.address, r.pool, nil); err != nil {
			return err
		}
		for j, tok := range tokens {
			after := tok.BalanceOf(a.address)
			if !after.Gt(before[j]) {
				continue
			}
			gain := new(uint256.Int).Sub(after, before[j])
			if err := tok.Transfer(a.address, caller, gain); err != nil {
				return err
			}
		}
		a.logger.Info("upkeep performed", zap.String("epool", addr.Hex()), zap.String("keeper", caller.Hex()))
		return nil
	})
}
