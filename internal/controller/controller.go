package controller

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"exposurePool/internal/events"
	"exposurePool/internal/fault"
	"exposurePool/internal/txn"
)

var (
	ErrNotDao           = fault.New(fault.Authorization, "controller: not dao")
	ErrNotDaoOrGuardian = fault.New(fault.Authorization, "controller: not dao or guardian")
)

// Controller holds the roles shared by every engine contract and the global
// issuance pause.
type Controller struct {
	env    *txn.Env
	events *events.Emitter
	logger *zap.Logger

	address        common.Address
	dao            common.Address
	guardian       common.Address
	feesOwner      common.Address
	pausedIssuance bool
}

// New creates a controller at address. Every role starts as dao.
func New(env *txn.Env, address, dao common.Address, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		env:       env,
		events:    events.NewEmitter(env, events.Controller, address),
		logger:    logger,
		address:   address,
		dao:       dao,
		guardian:  dao,
		feesOwner: dao,
	}
}

func (c *Controller) Address() common.Address   { return c.address }
func (c *Controller) Dao() common.Address       { return c.dao }
func (c *Controller) Guardian() common.Address  { return c.guardian }
func (c *Controller) FeesOwner() common.Address { return c.feesOwner }
func (c *Controller) PausedIssuance() bool      { return c.pausedIssuance }

// IsDao reports whether account is the dao.
func (c *Controller) IsDao(account common.Address) bool {
	return account == c.dao
}

// IsDaoOrGuardian reports whether account holds either role.
func (c *Controller) IsDaoOrGuardian(account common.Address) bool {
	return account == c.dao || account == c.guardian
}

// SetDao transfers the dao role.
func (c *Controller) SetDao(caller, dao common.Address) error {
	return c.setAddress(caller, &c.dao, dao, "SetDao")
}

// SetGuardian replaces the guardian.
func (c *Controller) SetGuardian(caller, guardian common.Address) error {
	return c.setAddress(caller, &c.guardian, guardian, "SetGuardian")
}

// SetFeesOwner replaces the recipient of pool fees.
func (c *Controller) SetFeesOwner(caller, feesOwner common.Address) error {
	return c.setAddress(caller, &c.feesOwner, feesOwner, "SetFeesOwner")
}

// SetPausedIssuance pauses or resumes issuance on every pool.
func (c *Controller) SetPausedIssuance(caller common.Address, paused bool) error {
	if !c.IsDaoOrGuardian(caller) {
		return ErrNotDaoOrGuardian
	}
	return c.env.Atomic(func() error {
		prev := c.pausedIssuance
		c.pausedIssuance = paused
		c.env.Record(func() { c.pausedIssuance = prev })
		c.logger.Info("issuance pause updated", zap.Bool("paused", paused))
		return c.events.Emit("SetPausedIssuance", paused)
	})
}

func (c *Controller) setAddress(caller common.Address, field *common.Address, value common.Address, event string) error {
	if !c.IsDao(caller) {
		return ErrNotDao
	}
	return c.env.Atomic(func() error {
		prev := *field
		*field = value
		c.env.Record(func() { *field = prev })
		c.logger.Info("role updated", zap.String("event", event), zap.String("address", value.Hex()))
		return c.events.Emit(event, value)
	})
}
