package periphery

import "exposurePool/internal/fault"

var (
	ErrNotDao                   = fault.New(fault.Authorization, "EPoolPeriphery: not dao")
	ErrNotDaoOrGuardian         = fault.New(fault.Authorization, "EPoolPeriphery: not dao or guardian")
	ErrUnapprovedEPool          = fault.New(fault.State, "EPoolPeriphery: unapproved EPool")
	ErrInvalidController        = fault.New(fault.State, "EPoolPeriphery: invalid controller")
	ErrUnexpectedCallback       = fault.New(fault.State, "EPoolPeriphery: unexpected callback")
	ErrInsufficientMaxInput     = fault.New(fault.Insufficiency, "EPoolPeriphery: insufficient max. input")
	ErrInsufficientOutputAmount = fault.New(fault.Insufficiency, "EPoolPeriphery: insufficient output amount")
	ErrNoExcess                 = fault.New(fault.Insufficiency, "EPoolPeriphery: no excess")
	ErrDeadlineExpired          = fault.New(fault.Policy, "EPoolPeriphery: deadline expired")
	ErrNothingToRebalance       = fault.New(fault.Policy, "EPoolPeriphery: nothing to rebalance")
	ErrExcessiveSlippage        = fault.New(fault.Policy, "EPoolPeriphery: excessive slippage")
	ErrInvalidSlippage          = fault.New(fault.Policy, "EPoolPeriphery: invalid slippage")
)
