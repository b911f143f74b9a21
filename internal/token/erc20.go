package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/events"
	"exposurePool/internal/fault"
	"exposurePool/internal/txn"
)

var (
	ErrInsufficientBalance   = fault.New(fault.Insufficiency, "erc20: transfer amount exceeds balance")
	ErrInsufficientAllowance = fault.New(fault.Insufficiency, "erc20: transfer amount exceeds allowance")
	ErrBurnExceedsBalance    = fault.New(fault.Insufficiency, "erc20: burn amount exceeds balance")
	ErrZeroAddress           = fault.New(fault.State, "erc20: zero address")
)

// Token is the ERC20 surface used by the engine. Mutating calls take the
// acting address first.
type Token interface {
	Address() common.Address
	Symbol() string
	Decimals() uint8
	TotalSupply() *uint256.Int
	BalanceOf(owner common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	Transfer(caller, to common.Address, amount *uint256.Int) error
	TransferFrom(caller, from, to common.Address, amount *uint256.Int) error
	Approve(caller, spender common.Address, amount *uint256.Int) error
}

// MaxAllowance is an allowance that is never decremented.
var MaxAllowance = new(uint256.Int).SetAllOne()

// ERC20 is an in-memory token whose every mutation is journaled on env.
type ERC20 struct {
	env      *txn.Env
	events   *events.Emitter
	address  common.Address
	name     string
	symbol   string
	decimals uint8

	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

// NewERC20 creates a token at address.
func NewERC20(env *txn.Env, address common.Address, name, symbol string, decimals uint8) *ERC20 {
	return &ERC20{
		env:        env,
		events:     events.NewEmitter(env, events.ERC20, address),
		address:    address,
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		supply:     new(uint256.Int),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *ERC20) Address() common.Address { return t.address }
func (t *ERC20) Name() string            { return t.name }
func (t *ERC20) Symbol() string          { return t.symbol }
func (t *ERC20) Decimals() uint8         { return t.decimals }

// TotalSupply returns the minted supply.
func (t *ERC20) TotalSupply() *uint256.Int {
	return t.supply.Clone()
}

// BalanceOf returns the balance of owner.
func (t *ERC20) BalanceOf(owner common.Address) *uint256.Int {
	if b, ok := t.balances[owner]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// Allowance returns what spender may move on behalf of owner.
func (t *ERC20) Allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

// Transfer moves amount from caller to to.
func (t *ERC20) Transfer(caller, to common.Address, amount *uint256.Int) error {
	return t.env.Atomic(func() error {
		return t.transfer(caller, to, amount)
	})
}

// TransferFrom moves amount from from to to using caller's allowance.
func (t *ERC20) TransferFrom(caller, from, to common.Address, amount *uint256.Int) error {
	return t.env.Atomic(func() error {
		allowance := t.Allowance(from, caller)
		if !allowance.Eq(MaxAllowance) {
			if allowance.Lt(amount) {
				return ErrInsufficientAllowance
			}
			t.setAllowance(from, caller, new(uint256.Int).Sub(allowance, amount))
		}
		return t.transfer(from, to, amount)
	})
}

// Approve sets the allowance of spender over caller's tokens.
func (t *ERC20) Approve(caller, spender common.Address, amount *uint256.Int) error {
	return t.env.Atomic(func() error {
		if spender == (common.Address{}) {
			return ErrZeroAddress
		}
		t.setAllowance(caller, spender, amount.Clone())
		return t.events.Emit("Approval", caller, spender, amount)
	})
}

// Mint creates amount for to. It is unrestricted and meant for test tokens;
// restricted tokens wrap it.
func (t *ERC20) Mint(to common.Address, amount *uint256.Int) error {
	return t.env.Atomic(func() error {
		return t.mint(to, amount)
	})
}

func (t *ERC20) mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	supply, overflow := new(uint256.Int).AddOverflow(t.supply, amount)
	if overflow {
		return fault.New(fault.Arithmetic, "erc20: supply overflow")
	}
	t.setSupply(supply)
	t.setBalance(to, new(uint256.Int).Add(t.BalanceOf(to), amount))
	return t.events.Emit("Transfer", common.Address{}, to, amount)
}

func (t *ERC20) burn(from common.Address, amount *uint256.Int) error {
	balance := t.BalanceOf(from)
	if balance.Lt(amount) {
		return ErrBurnExceedsBalance
	}
	t.setBalance(from, new(uint256.Int).Sub(balance, amount))
	t.setSupply(new(uint256.Int).Sub(t.supply, amount))
	return t.events.Emit("Transfer", from, common.Address{}, amount)
}

func (t *ERC20) transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	balance := t.BalanceOf(from)
	if balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	t.setBalance(from, new(uint256.Int).Sub(balance, amount))
	t.setBalance(to, new(uint256.Int).Add(t.BalanceOf(to), amount))
	return t.events.Emit("Transfer", from, to, amount)
}

func (t *ERC20) setSupply(v *uint256.Int) {
	prev := t.supply
	t.supply = v
	t.env.Record(func() { t.supply = prev })
}

func (t *ERC20) setBalance(owner common.Address, v *uint256.Int) {
	prev, existed := t.balances[owner]
	t.balances[owner] = v
	t.env.Record(func() {
		if existed {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
}

func (t *ERC20) setAllowance(owner, spender common.Address, v *uint256.Int) {
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = byOwner
	}
	prev, existed := byOwner[spender]
	byOwner[spender] = v
	t.env.Record(func() {
		if existed {
			byOwner[spender] = prev
		} else {
			delete(byOwner, spender)
		}
	})
}
