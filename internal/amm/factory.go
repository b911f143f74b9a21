package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

// Fee tiers accepted by the factory.
var FeeTiers = []uint32{100, 500, 3000, 10000}

type pairKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

// Factory deploys and indexes pairs by token pair and fee tier.
type Factory struct {
	env     *txn.Env
	address common.Address
	logger  *zap.Logger
	pairs   map[pairKey]*Pair
	all     []*Pair
}

func NewFactory(env *txn.Env, address common.Address, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		env:     env,
		address: address,
		logger:  logger,
		pairs:   make(map[pairKey]*Pair),
	}
}

func (f *Factory) Address() common.Address {
	return f.address
}

// CreatePair deploys the pair of tokenA and tokenB at fee.
func (f *Factory) CreatePair(tokenA, tokenB token.Token, fee uint32) (*Pair, error) {
	if !validFee(fee) {
		return nil, ErrInvalidFeeTier
	}
	token0, token1 := tokenA, tokenB
	first, _, err := SortTokens(tokenA.Address(), tokenB.Address())
	if err != nil {
		return nil, err
	}
	if first != tokenA.Address() {
		token0, token1 = tokenB, tokenA
	}
	key := pairKey{token0: token0.Address(), token1: token1.Address(), fee: fee}
	if _, ok := f.pairs[key]; ok {
		return nil, ErrPairExists
	}

	var pair *Pair
	err = f.env.Atomic(func() error {
		pair = newPair(f.env, f.env.Deploy(f.address), token0, token1, fee, f.logger)
		f.pairs[key] = pair
		f.all = append(f.all, pair)
		f.env.Record(func() {
			delete(f.pairs, key)
			f.all = f.all[:len(f.all)-1]
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info("created pair",
		zap.String("pair", pair.Address().Hex()),
		zap.String("token0", token0.Symbol()),
		zap.String("token1", token1.Symbol()),
		zap.Uint32("fee", fee),
	)
	return pair, nil
}

// GetPair returns the pair of two tokens at fee in either order.
func (f *Factory) GetPair(tokenA, tokenB common.Address, fee uint32) (*Pair, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	pair, ok := f.pairs[pairKey{token0: token0, token1: token1, fee: fee}]
	if !ok {
		return nil, ErrUnknownPair
	}
	return pair, nil
}

// Pairs returns every pair in creation order.
func (f *Factory) Pairs() []*Pair {
	return append([]*Pair(nil), f.all...)
}

func validFee(fee uint32) bool {
	for _, tier := range FeeTiers {
		if fee == tier {
			return true
		}
	}
	return false
}
