package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/fault"
	"exposurePool/internal/txn"
)

var ErrNotEPool = fault.New(fault.Authorization, "etoken: not epool")

// EToken is a tranche share token. Only its pool can mint and burn.
type EToken struct {
	*ERC20
	ePool common.Address
}

// EPool returns the pool allowed to mint and burn.
func (e *EToken) EPool() common.Address {
	return e.ePool
}

// Mint creates shares for to.
func (e *EToken) Mint(caller, to common.Address, amount *uint256.Int) error {
	if caller != e.ePool {
		return ErrNotEPool
	}
	return e.env.Atomic(func() error {
		return e.mint(to, amount)
	})
}

// Burn destroys shares held by from.
func (e *EToken) Burn(caller, from common.Address, amount *uint256.Int) error {
	if caller != e.ePool {
		return ErrNotEPool
	}
	return e.env.Atomic(func() error {
		return e.burn(from, amount)
	})
}

// Factory deploys eTokens at deterministic addresses.
type Factory struct {
	env     *txn.Env
	address common.Address
}

// NewFactory returns a factory deploying from address.
func NewFactory(env *txn.Env, address common.Address) *Factory {
	return &Factory{env: env, address: address}
}

// Address returns the deployer address.
func (f *Factory) Address() common.Address {
	return f.address
}

// CreateEToken deploys an 18-decimal eToken controlled by ePool.
func (f *Factory) CreateEToken(ePool common.Address, name, symbol string) *EToken {
	address := f.env.Deploy(f.address)
	return &EToken{
		ERC20: NewERC20(f.env, address, name, symbol, 18),
		ePool: ePool,
	}
}
