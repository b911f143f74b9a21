package epool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/epmath"
	"exposurePool/internal/events"
	"exposurePool/internal/oracle"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

const (
	// MaxTranches bounds the cost of pool-wide operations.
	MaxTranches = 5

	// RebalanceModeOr makes a tranche eligible when either condition holds.
	RebalanceModeOr uint8 = 0
	// RebalanceModeAnd requires both the deviation and the interval.
	RebalanceModeAnd uint8 = 1
)

// FeeRateLimit is the highest accepted fee rate (50%).
var FeeRateLimit = uint256.NewInt(5e17)

// Roles is the role registry consulted by admin-gated calls.
type Roles interface {
	Address() common.Address
	IsDao(account common.Address) bool
	IsDaoOrGuardian(account common.Address) bool
	Dao() common.Address
	FeesOwner() common.Address
	PausedIssuance() bool
}

// ETokenFactory deploys tranche share tokens.
type ETokenFactory interface {
	CreateEToken(ePool common.Address, name, symbol string) *token.EToken
}

// Config wires a pool to its collaborators.
type Config struct {
	Address     common.Address
	TokenA      token.Token
	TokenB      token.Token
	Aggregator  oracle.Aggregator
	InverseRate bool
	Controller  Roles
	Factory     ETokenFactory
	Logger      *zap.Logger
}

// Tranche is a read-only view of a tranche.
type Tranche struct {
	EToken           common.Address
	ReserveA         *uint256.Int
	ReserveB         *uint256.Int
	TargetRatio      *uint256.Int
	SFactorE         *uint256.Int
	LastRebalancedAt uint64
}

type tranche struct {
	eToken           *token.EToken
	reserveA         *uint256.Int
	reserveB         *uint256.Int
	targetRatio      *uint256.Int
	lastRebalancedAt uint64
}

func (t *tranche) math() epmath.Tranche {
	return epmath.Tranche{ReserveA: t.reserveA, ReserveB: t.reserveB, TargetRatio: t.targetRatio}
}

func (t *tranche) view() Tranche {
	return Tranche{
		EToken:           t.eToken.Address(),
		ReserveA:         t.reserveA.Clone(),
		ReserveB:         t.reserveB.Clone(),
		TargetRatio:      t.targetRatio.Clone(),
		SFactorE:         epmath.SFactorE.Clone(),
		LastRebalancedAt: t.lastRebalancedAt,
	}
}

// Pool holds the reserves of every tranche and is the only writer of them.
// Mutating calls take the acting address first and are atomic on env.
type Pool struct {
	env     *txn.Env
	events  *events.Emitter
	logger  *zap.Logger
	address common.Address

	tokenA  token.Token
	tokenB  token.Token
	scales  epmath.Scales
	factory ETokenFactory

	controller  Roles
	aggregator  oracle.Aggregator
	inverseRate bool

	feeRate        *uint256.Int
	cumulativeFeeA *uint256.Int
	cumulativeFeeB *uint256.Int

	rebalanceMode     uint8
	rebalanceMinRDiv  *uint256.Int
	rebalanceInterval uint64

	tranches map[common.Address]*tranche
	order    []common.Address
}

// New creates a pool.
func New(env *txn.Env, cfg Config) (*Pool, error) {
	if cfg.TokenA == nil || cfg.TokenB == nil {
		return nil, fmt.Errorf("epool: missing token")
	}
	if cfg.TokenA.Address() == cfg.TokenB.Address() {
		return nil, fmt.Errorf("epool: identical tokens")
	}
	if cfg.Aggregator == nil {
		return nil, ErrInvalidAggregator
	}
	if cfg.Controller == nil {
		return nil, ErrInvalidController
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("epool: missing etoken factory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		env:              env,
		events:           events.NewEmitter(env, events.EPool, cfg.Address),
		logger:           logger,
		address:          cfg.Address,
		tokenA:           cfg.TokenA,
		tokenB:           cfg.TokenB,
		scales:           epmath.NewScales(cfg.TokenA.Decimals(), cfg.TokenB.Decimals()),
		factory:          cfg.Factory,
		controller:       cfg.Controller,
		aggregator:       cfg.Aggregator,
		inverseRate:      cfg.InverseRate,
		feeRate:          new(uint256.Int),
		cumulativeFeeA:   new(uint256.Int),
		cumulativeFeeB:   new(uint256.Int),
		rebalanceMinRDiv: new(uint256.Int),
		tranches:         make(map[common.Address]*tranche),
	}, nil
}

func (p *Pool) Address() common.Address {
	return p.address
}

func (p *Pool) TokenA() token.Token {
	return p.tokenA
}

func (p *Pool) TokenB() token.Token {
	return p.tokenB
}

func (p *Pool) Scales() epmath.Scales {
	return p.scales
}

func (p *Pool) SFactorA() *uint256.Int {
	return p.scales.A.Clone()
}

func (p *Pool) SFactorB() *uint256.Int {
	return p.scales.B.Clone()
}

func (p *Pool) Controller() Roles {
	return p.controller
}

func (p *Pool) InverseRate() bool {
	return p.inverseRate
}

func (p *Pool) FeeRate() *uint256.Int {
	return p.feeRate.Clone()
}

func (p *Pool) RebalanceMode() uint8 {
	return p.rebalanceMode
}

func (p *Pool) RebalanceInterval() uint64 {
	return p.rebalanceInterval
}

// CumulativeFeeA returns the uncollected TokenA fees.
func (p *Pool) CumulativeFeeA() *uint256.Int {
	return p.cumulativeFeeA.Clone()
}

// CumulativeFeeB returns the uncollected TokenB fees.
func (p *Pool) CumulativeFeeB() *uint256.Int {
	return p.cumulativeFeeB.Clone()
}

// RebalanceMinRDiv returns the deviation that makes a tranche eligible.
func (p *Pool) RebalanceMinRDiv() *uint256.Int {
	return p.rebalanceMinRDiv.Clone()
}

// PausedIssuance reports the controller's issuance pause.
func (p *Pool) PausedIssuance() bool {
	return p.controller.PausedIssuance()
}

// Aggregator returns the rate source.
func (p *Pool) Aggregator() oracle.Aggregator {
	return p.aggregator
}

// GetRate returns the price of TokenA in TokenB, 1e18 scaled.
func (p *Pool) GetRate() (*uint256.Int, error) {
	answer, err := p.aggregator.LatestAnswer()
	if err != nil {
		return nil, fmt.Errorf("epool: rate: %w", err)
	}
	if answer.IsZero() {
		return nil, epmath.ErrZeroRate
	}
	if !p.inverseRate {
		return answer, nil
	}
	return epmath.MulDiv(epmath.SFactorI, epmath.SFactorI, answer, epmath.Down)
}

// GetTranche returns the tranche of eToken.
func (p *Pool) GetTranche(eToken common.Address) (Tranche, error) {
	t, ok := p.tranches[eToken]
	if !ok {
		return Tranche{}, ErrUnknownTranche
	}
	return t.view(), nil
}

// GetTranches returns every tranche in creation order.
func (p *Pool) GetTranches() []Tranche {
	out := make([]Tranche, 0, len(p.order))
	for _, addr := range p.order {
		out = append(out, p.tranches[addr].view())
	}
	return out
}

// TranchesByIndex returns the eToken of the i-th tranche.
func (p *Pool) TranchesByIndex(i int) (common.Address, error) {
	if i < 0 || i >= len(p.order) {
		return common.Address{}, ErrUnknownTranche
	}
	return p.order[i], nil
}

// EToken returns the share token of a tranche.
func (p *Pool) EToken(eToken common.Address) (*token.EToken, error) {
	t, ok := p.tranches[eToken]
	if !ok {
		return nil, ErrUnknownTranche
	}
	return t.eToken, nil
}

// AddTranche creates an empty tranche with an immutable target ratio.
func (p *Pool) AddTranche(caller common.Address, targetRatio *uint256.Int, name, symbol string) (common.Address, error) {
	if !p.controller.IsDao(caller) {
		return common.Address{}, ErrNotDao
	}
	if len(p.order) >= MaxTranches {
		return common.Address{}, ErrMaxTrancheCount
	}
	if targetRatio == nil || targetRatio.IsZero() || targetRatio.Eq(epmath.MaxRatio) {
		return common.Address{}, ErrInvalidTargetRatio
	}

	var eTokenAddr common.Address
	err := p.env.Atomic(func() error {
		eToken := p.factory.CreateEToken(p.address, name, symbol)
		eTokenAddr = eToken.Address()
		p.tranches[eTokenAddr] = &tranche{
			eToken:      eToken,
			reserveA:    new(uint256.Int),
			reserveB:    new(uint256.Int),
			targetRatio: targetRatio.Clone(),
		}
		p.order = append(p.order, eTokenAddr)
		p.env.Record(func() {
			delete(p.tranches, eTokenAddr)
			p.order = p.order[:len(p.order)-1]
		})
		p.logger.Info("tranche added",
			zap.String("etoken", eTokenAddr.Hex()),
			zap.String("target_ratio", targetRatio.Dec()),
		)
		return p.events.Emit("AddedTranche", eTokenAddr)
	})
	if err != nil {
		return common.Address{}, err
	}
	return eTokenAddr, nil
}

func (p *Pool) mathTranches() []epmath.Tranche {
	out := make([]epmath.Tranche, 0, len(p.order))
	for _, addr := range p.order {
		out = append(out, p.tranches[addr].math())
	}
	return out
}

func (p *Pool) setUint(field **uint256.Int, value *uint256.Int) {
	prev := *field
	*field = value
	p.env.Record(func() { *field = prev })
}

func (p *Pool) setTimestamp(field *uint64, value uint64) {
	prev := *field
	*field = value
	p.env.Record(func() { *field = prev })
}

// TotalSupply returns the eToken supply of a tranche.
func (p *Pool) TotalSupply(eToken common.Address) (*uint256.Int, error) {
	t, ok := p.tranches[eToken]
	if !ok {
		return nil, ErrUnknownTranche
	}
	return t.eToken.TotalSupply(), nil
}
