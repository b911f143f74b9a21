package keeper

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/epool"
	"exposurePool/internal/events"
	"exposurePool/internal/token"
	"exposurePool/internal/txn"
)

// SubsidyPool holds tokens that allow-listed beneficiaries may draw to cover
// flash swap shortfalls. It is funded by plain transfers.
type SubsidyPool struct {
	env    *txn.Env
	events *events.Emitter
	logger *zap.Logger

	address       common.Address
	controller    epool.Roles
	beneficiaries map[common.Address]bool
}

// NewSubsidyPool creates a subsidy pool at address.
func NewSubsidyPool(env *txn.Env, address common.Address, controller epool.Roles, logger *zap.Logger) *SubsidyPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubsidyPool{
		env:           env,
		events:        events.NewEmitter(env, events.SubsidyPool, address),
		logger:        logger,
		address:       address,
		controller:    controller,
		beneficiaries: make(map[common.Address]bool),
	}
}

func (s *SubsidyPool) Address() common.Address { return s.address }
func (s *SubsidyPool) Controller() epool.Roles { return s.controller }

// IsBeneficiary reports whether account may request subsidies.
func (s *SubsidyPool) IsBeneficiary(account common.Address) bool {
	return s.beneficiaries[account]
}

// SetController replaces the role registry.
func (s *SubsidyPool) SetController(caller common.Address, controller epool.Roles) error {
	if !s.controller.IsDao(caller) {
		return ErrSubsidyNotDao
	}
	if controller == nil {
		return ErrInvalidController
	}
	return s.env.Atomic(func() error {
		prev := s.controller
		s.controller = controller
		s.env.Record(func() { s.controller = prev })
		return s.events.Emit("SetController", controller.Address())
	})
}

// SetBeneficiary allows or disallows beneficiary to request subsidies.
func (s *SubsidyPool) SetBeneficiary(caller, beneficiary common.Address, canRequest bool) error {
	if !s.controller.IsDaoOrGuardian(caller) {
		return ErrSubsidyNotDaoOrGuardian
	}
	return s.env.Atomic(func() error {
		prev, existed := s.beneficiaries[beneficiary]
		if canRequest {
			s.beneficiaries[beneficiary] = true
		} else {
			delete(s.beneficiaries, beneficiary)
		}
		s.env.Record(func() {
			if existed {
				s.beneficiaries[beneficiary] = prev
			} else {
				delete(s.beneficiaries, beneficiary)
			}
		})
		return s.events.Emit("SetBeneficiary", beneficiary, canRequest)
	})
}

// RequestSubsidy sends amount of tok to the calling beneficiary.
func (s *SubsidyPool) RequestSubsidy(caller common.Address, tok token.Token, amount *uint256.Int) error {
	if !s.IsBeneficiary(caller) {
		return ErrNotBeneficiary
	}
	return s.env.Atomic(func() error {
		if err := tok.Transfer(s.address, caller, amount); err != nil {
			return err
		}
		s.logger.Info("subsidy paid",
			zap.String("beneficiary", caller.Hex()),
			zap.String("token", tok.Symbol()),
			zap.String("amount", amount.Dec()),
		)
		return s.events.Emit("RequestedSubsidy", caller, tok.Address(), amount)
	})
}

// Recover sends amount of tok to the dao.
func (s *SubsidyPool) Recover(caller common.Address, tok token.Token, amount *uint256.Int) error {
	if !s.controller.IsDao(caller) {
		return ErrSubsidyNotDao
	}
	if amount == nil || amount.IsZero() || amount.Gt(tok.BalanceOf(s.address)) {
		return ErrSubsidyNoExcess
	}
	return s.env.Atomic(func() error {
		if err := tok.Transfer(s.address, s.controller.Dao(), amount); err != nil {
			return err
		}
		return s.events.Emit("RecoveredToken", tok.Address(), amount)
	})
}
