package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/epmath"
)

const aggregatorV3ABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "latestRoundData", "outputs": [
    {"internalType": "uint80", "name": "roundId", "type": "uint80"},
    {"internalType": "int256", "name": "answer", "type": "int256"},
    {"internalType": "uint256", "name": "startedAt", "type": "uint256"},
    {"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
    {"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
  ], "stateMutability": "view", "type": "function"}
]`

var (
	aggregatorV3ABI     abi.ABI
	aggregatorV3ABIOnce sync.Once
	aggregatorV3ABIErr  error
)

// AggregatorV3ABI returns the parsed price feed ABI.
func AggregatorV3ABI() (abi.ABI, error) {
	aggregatorV3ABIOnce.Do(func() {
		aggregatorV3ABI, aggregatorV3ABIErr = abi.JSON(strings.NewReader(aggregatorV3ABIJSON))
	})
	return aggregatorV3ABI, aggregatorV3ABIErr
}

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Round is one price feed answer scaled to 1e18.
type Round struct {
	RoundID   uint64
	Answer    *uint256.Int
	UpdatedAt uint64
}

// Feed reads an on-chain price feed and serves the last fetched answer.
type Feed struct {
	caller  ContractCaller
	address common.Address
	logger  *zap.Logger

	mu       sync.RWMutex
	decimals *uint8
	last     *Round
}

// NewFeed returns a feed reading the aggregator at address.
func NewFeed(caller ContractCaller, address common.Address, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{caller: caller, address: address, logger: logger}
}

// Address returns the price feed contract address.
func (f *Feed) Address() common.Address {
	return f.address
}

// LatestAnswer returns the last refreshed answer.
func (f *Feed) LatestAnswer() (*uint256.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return nil, ErrNoAnswer
	}
	return f.last.Answer.Clone(), nil
}

// Last returns the last refreshed round.
func (f *Feed) Last() (Round, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return Round{}, false
	}
	return *f.last, true
}

// Refresh fetches the latest round from chain.
func (f *Feed) Refresh(ctx context.Context) (Round, error) {
	parsed, err := AggregatorV3ABI()
	if err != nil {
		return Round{}, fmt.Errorf("parse aggregator abi: %w", err)
	}

	decimals, err := f.feedDecimals(ctx, parsed)
	if err != nil {
		return Round{}, err
	}

	values, err := f.call(ctx, parsed, "latestRoundData")
	if err != nil {
		return Round{}, err
	}
	if len(values) != 5 {
		return Round{}, fmt.Errorf("unexpected latestRoundData values: %d", len(values))
	}
	roundID, ok := values[0].(*big.Int)
	if !ok {
		return Round{}, fmt.Errorf("unsupported roundId type %T", values[0])
	}
	answer, ok := values[1].(*big.Int)
	if !ok {
		return Round{}, fmt.Errorf("unsupported answer type %T", values[1])
	}
	updatedAt, ok := values[3].(*big.Int)
	if !ok {
		return Round{}, fmt.Errorf("unsupported updatedAt type %T", values[3])
	}
	if answer.Sign() <= 0 {
		return Round{}, fmt.Errorf("non-positive answer %s: %w", answer, ErrNoAnswer)
	}

	raw, overflow := uint256.FromBig(answer)
	if overflow {
		return Round{}, epmath.ErrOverflow
	}
	scaled, err := epmath.MulDiv(raw, epmath.SFactorI, epmath.ScaleFor(decimals), epmath.Down)
	if err != nil {
		return Round{}, err
	}

	round := Round{RoundID: roundID.Uint64(), Answer: scaled, UpdatedAt: updatedAt.Uint64()}
	f.mu.Lock()
	f.last = &round
	f.mu.Unlock()
	f.logger.Debug("oracle refreshed",
		zap.String("aggregator", f.address.Hex()),
		zap.Uint64("round", round.RoundID),
		zap.String("answer", scaled.Dec()),
	)
	return round, nil
}

func (f *Feed) feedDecimals(ctx context.Context, parsed abi.ABI) (uint8, error) {
	f.mu.RLock()
	cached := f.decimals
	f.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}
	values, err := f.call(ctx, parsed, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unsupported decimals type %T", values[0])
	}
	f.mu.Lock()
	f.decimals = &decimals
	f.mu.Unlock()
	return decimals, nil
}

func (f *Feed) call(ctx context.Context, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &f.address, Data: data}
	resp, err := f.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}
