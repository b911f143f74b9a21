package events

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract names an event ABI.
type Contract string

const (
	EPool          Contract = "EPool"
	Periphery      Contract = "EPoolPeriphery"
	Controller     Contract = "Controller"
	SubsidyPool    Contract = "KeeperSubsidyPool"
	NetworkAdapter Contract = "KeeperNetworkAdapter"
	ERC20          Contract = "ERC20"
	Pair           Contract = "Pair"
)

// Contracts lists every known contract ABI in decode priority order.
var Contracts = []Contract{EPool, Periphery, Controller, SubsidyPool, NetworkAdapter, ERC20, Pair}

const ePoolABIJSON = `[
  {"anonymous": false, "name": "AddedTranche", "type": "event", "inputs": [
    {"indexed": true, "name": "eToken", "type": "address"}]},
  {"anonymous": false, "name": "SetController", "type": "event", "inputs": [
    {"indexed": false, "name": "controller", "type": "address"}]},
  {"anonymous": false, "name": "SetAggregator", "type": "event", "inputs": [
    {"indexed": false, "name": "aggregator", "type": "address"},
    {"indexed": false, "name": "inverseRate", "type": "bool"}]},
  {"anonymous": false, "name": "SetFeeRate", "type": "event", "inputs": [
    {"indexed": false, "name": "feeRate", "type": "uint256"}]},
  {"anonymous": false, "name": "SetRebalanceMode", "type": "event", "inputs": [
    {"indexed": false, "name": "mode", "type": "uint256"}]},
  {"anonymous": false, "name": "SetRebalanceMinRDiv", "type": "event", "inputs": [
    {"indexed": false, "name": "minRDiv", "type": "uint256"}]},
  {"anonymous": false, "name": "SetRebalanceInterval", "type": "event", "inputs": [
    {"indexed": false, "name": "interval", "type": "uint256"}]},
  {"anonymous": false, "name": "TransferFees", "type": "event", "inputs": [
    {"indexed": true, "name": "feesOwner", "type": "address"},
    {"indexed": false, "name": "cumulativeFeeA", "type": "uint256"},
    {"indexed": false, "name": "cumulativeFeeB", "type": "uint256"}]},
  {"anonymous": false, "name": "RecoveredToken", "type": "event", "inputs": [
    {"indexed": true, "name": "token", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"}]},
  {"anonymous": false, "name": "IssuedEToken", "type": "event", "inputs": [
    {"indexed": true, "name": "eToken", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"},
    {"indexed": false, "name": "amountA", "type": "uint256"},
    {"indexed": false, "name": "amountB", "type": "uint256"},
    {"indexed": false, "name": "user", "type": "address"}]},
  {"anonymous": false, "name": "RedeemedEToken", "type": "event", "inputs": [
    {"indexed": true, "name": "eToken", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"},
    {"indexed": false, "name": "amountA", "type": "uint256"},
    {"indexed": false, "name": "amountB", "type": "uint256"},
    {"indexed": false, "name": "user", "type": "address"}]},
  {"anonymous": false, "name": "RebalancedTranche", "type": "event", "inputs": [
    {"indexed": true, "name": "eToken", "type": "address"},
    {"indexed": false, "name": "deltaA", "type": "uint256"},
    {"indexed": false, "name": "deltaB", "type": "uint256"},
    {"indexed": false, "name": "rChange", "type": "uint256"},
    {"indexed": false, "name": "rDiv", "type": "uint256"}]},
  {"anonymous": false, "name": "RebalancedPool", "type": "event", "inputs": [
    {"indexed": false, "name": "deltaA", "type": "uint256"},
    {"indexed": false, "name": "deltaB", "type": "uint256"},
    {"indexed": false, "name": "rChange", "type": "uint256"},
    {"indexed": false, "name": "rDiv", "type": "uint256"}]}
]`

const peripheryABIJSON = `[
  {"anonymous": false, "name": "IssuedEToken", "type": "event", "inputs": [
    {"indexed": true, "name": "ePool", "type": "address"},
    {"indexed": true, "name": "eToken", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"},
    {"indexed": false, "name": "amountA", "type": "uint256"},
    {"indexed": false, "name": "amountB", "type": "uint256"},
    {"indexed": false, "name": "user", "type": "address"}]},
  {"anonymous": false, "name": "RedeemedEToken", "type": "event", "inputs": [
    {"indexed": true, "name": "ePool", "type": "address"},
    {"indexed": true, "name": "eToken", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"},
    {"indexed": false, "name": "amountA", "type": "uint256"},
    {"indexed": false, "name": "amountB", "type": "uint256"},
    {"indexed": false, "name": "user", "type": "address"}]},
  {"anonymous": false, "name": "RebalancedWithFlashSwap", "type": "event", "inputs": [
    {"indexed": true, "name": "ePool", "type": "address"},
    {"indexed": false, "name": "deltaA", "type": "uint256"},
    {"indexed": false, "name": "deltaB", "type": "uint256"},
    {"indexed": false, "name": "rChange", "type": "uint256"},
    {"indexed": false, "name": "subsidy", "type": "uint256"},
    {"indexed": false, "name": "keeper", "type": "address"}]},
  {"anonymous": false, "name": "SetController", "type": "event", "inputs": [
    {"indexed": false, "name": "controller", "type": "address"}]},
  {"anonymous": false, "name": "SetEPoolApproval", "type": "event", "inputs": [
    {"indexed": true, "name": "ePool", "type": "address"},
    {"indexed": false, "name": "approval", "type": "bool"}]},
  {"anonymous": false, "name": "SetMaxFlashSwapSlippage", "type": "event", "inputs": [
    {"indexed": false, "name": "maxFlashSwapSlippage", "type": "uint256"}]},
  {"anonymous": false, "name": "SetFeeTierForPair", "type": "event", "inputs": [
    {"indexed": true, "name": "tokenA", "type": "address"},
    {"indexed": true, "name": "tokenB", "type": "address"},
    {"indexed": false, "name": "feeTier", "type": "uint24"}]},
  {"anonymous": false, "name": "RecoveredToken", "type": "event", "inputs": [
    {"indexed": true, "name": "token", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"}]}
]`

const controllerABIJSON = `[
  {"anonymous": false, "name": "SetDao", "type": "event", "inputs": [
    {"indexed": false, "name": "dao", "type": "address"}]},
  {"anonymous": false, "name": "SetGuardian", "type": "event", "inputs": [
    {"indexed": false, "name": "guardian", "type": "address"}]},
  {"anonymous": false, "name": "SetFeesOwner", "type": "event", "inputs": [
    {"indexed": false, "name": "feesOwner", "type": "address"}]},
  {"anonymous": false, "name": "SetPausedIssuance", "type": "event", "inputs": [
    {"indexed": false, "name": "pausedIssuance", "type": "bool"}]}
]`

const subsidyPoolABIJSON = `[
  {"anonymous": false, "name": "SetController", "type": "event", "inputs": [
    {"indexed": false, "name": "controller", "type": "address"}]},
  {"anonymous": false, "name": "SetBeneficiary", "type": "event", "inputs": [
    {"indexed": true, "name": "beneficiary", "type": "address"},
    {"indexed": false, "name": "canRequest", "type": "bool"}]},
  {"anonymous": false, "name": "RequestedSubsidy", "type": "event", "inputs": [
    {"indexed": true, "name": "beneficiary", "type": "address"},
    {"indexed": true, "name": "token", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"}]},
  {"anonymous": false, "name": "RecoveredToken", "type": "event", "inputs": [
    {"indexed": true, "name": "token", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"}]}
]`

const networkAdapterABIJSON = `[
  {"anonymous": false, "name": "SetController", "type": "event", "inputs": [
    {"indexed": false, "name": "controller", "type": "address"}]},
  {"anonymous": false, "name": "AddedEPool", "type": "event", "inputs": [
    {"indexed": true, "name": "ePool", "type": "address"},
    {"indexed": true, "name": "ePoolPeriphery", "type": "address"}]},
  {"anonymous": false, "name": "RemovedEPool", "type": "event", "inputs": [
    {"indexed": true, "name": "ePool", "type": "address"}]},
  {"anonymous": false, "name": "SetEPoolHelper", "type": "event", "inputs": [
    {"indexed": false, "name": "ePoolHelper", "type": "address"}]},
  {"anonymous": false, "name": "SetKeeperRebalanceInterval", "type": "event", "inputs": [
    {"indexed": false, "name": "interval", "type": "uint256"}]},
  {"anonymous": false, "name": "SetKeeperRebalanceMinRDiv", "type": "event", "inputs": [
    {"indexed": false, "name": "minRDiv", "type": "uint256"}]}
]`

const erc20ABIJSON = `[
  {"anonymous": false, "name": "Transfer", "type": "event", "inputs": [
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}]},
  {"anonymous": false, "name": "Approval", "type": "event", "inputs": [
    {"indexed": true, "name": "owner", "type": "address"},
    {"indexed": true, "name": "spender", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}]}
]`

const pairABIJSON = `[
  {"anonymous": false, "name": "Swap", "type": "event", "inputs": [
    {"indexed": true, "name": "sender", "type": "address"},
    {"indexed": false, "name": "amount0In", "type": "uint256"},
    {"indexed": false, "name": "amount1In", "type": "uint256"},
    {"indexed": false, "name": "amount0Out", "type": "uint256"},
    {"indexed": false, "name": "amount1Out", "type": "uint256"},
    {"indexed": true, "name": "to", "type": "address"}]},
  {"anonymous": false, "name": "Sync", "type": "event", "inputs": [
    {"indexed": false, "name": "reserve0", "type": "uint256"},
    {"indexed": false, "name": "reserve1", "type": "uint256"}]}
]`

var abiSources = map[Contract]string{
	EPool:          ePoolABIJSON,
	Periphery:      peripheryABIJSON,
	Controller:     controllerABIJSON,
	SubsidyPool:    subsidyPoolABIJSON,
	NetworkAdapter: networkAdapterABIJSON,
	ERC20:          erc20ABIJSON,
	Pair:           pairABIJSON,
}

var (
	parsedABIs     map[Contract]abi.ABI
	parsedABIsOnce sync.Once
	parsedABIsErr  error
)

// ABI returns the parsed event ABI of contract.
func ABI(contract Contract) (abi.ABI, error) {
	parsedABIsOnce.Do(func() {
		parsedABIs = make(map[Contract]abi.ABI, len(abiSources))
		for name, src := range abiSources {
			parsed, err := abi.JSON(strings.NewReader(src))
			if err != nil {
				parsedABIsErr = fmt.Errorf("parse %s abi: %w", name, err)
				return
			}
			parsedABIs[name] = parsed
		}
	})
	if parsedABIsErr != nil {
		return abi.ABI{}, parsedABIsErr
	}
	parsed, ok := parsedABIs[contract]
	if !ok {
		return abi.ABI{}, fmt.Errorf("unknown contract: %s", contract)
	}
	return parsed, nil
}
