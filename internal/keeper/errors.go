package keeper

import "exposurePool/internal/fault"

var (
	ErrSubsidyNotDao           = fault.New(fault.Authorization, "KeeperSubsidyPool: not dao")
	ErrSubsidyNotDaoOrGuardian = fault.New(fault.Authorization, "KeeperSubsidyPool: not dao or guardian")
	ErrNotBeneficiary          = fault.New(fault.Authorization, "KeeperSubsidyPool: not beneficiary")
	ErrSubsidyNoExcess         = fault.New(fault.Insufficiency, "KeeperSubsidyPool: no excess")

	ErrAdapterNotDao           = fault.New(fault.Authorization, "KeeperNetworkAdapter: not dao")
	ErrAdapterNotDaoOrGuardian = fault.New(fault.Authorization, "KeeperNetworkAdapter: not dao or guardian")
	ErrEPoolExists             = fault.New(fault.State, "KeeperNetworkAdapter: EPool exists")
	ErrUnknownEPool            = fault.New(fault.State, "KeeperNetworkAdapter: unknown EPool")
	ErrInvalidPerformData      = fault.New(fault.State, "KeeperNetworkAdapter: invalid perform data")
	ErrUpkeepNotNeeded         = fault.New(fault.Policy, "KeeperNetworkAdapter: upkeep not needed")

	ErrInvalidController = fault.New(fault.State, "keeper: invalid controller")
)
