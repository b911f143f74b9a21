package epool

import "exposurePool/internal/fault"

var (
	ErrNotDao                = fault.New(fault.Authorization, "epool: not dao")
	ErrPausedIssuance        = fault.New(fault.State, "epool: issuance paused")
	ErrUnknownTranche        = fault.New(fault.State, "epool: unknown tranche")
	ErrMaxTrancheCount       = fault.New(fault.State, "epool: max tranche count")
	ErrInvalidTargetRatio    = fault.New(fault.State, "epool: invalid target ratio")
	ErrInvalidRebalanceMode  = fault.New(fault.State, "epool: invalid rebalance mode")
	ErrInvalidAggregator     = fault.New(fault.State, "epool: invalid aggregator")
	ErrInvalidController     = fault.New(fault.State, "epool: invalid controller")
	ErrZeroAmount            = fault.New(fault.Insufficiency, "epool: zero amount")
	ErrInsufficientEToken    = fault.New(fault.Insufficiency, "epool: insufficient etoken")
	ErrInsufficientLiquidity = fault.New(fault.Insufficiency, "epool: insufficient liquidity")
	ErrNoExcess              = fault.New(fault.Insufficiency, "epool: no excess")
	ErrFeeRateAboveLimit     = fault.New(fault.Policy, "epool: fee rate above limit")
	ErrInvalidMinRDiv        = fault.New(fault.Policy, "epool: invalid rebalance min rDiv")
	ErrFracDeltaAboveOne     = fault.New(fault.Policy, "epool: fracDelta above 1.0")
)
