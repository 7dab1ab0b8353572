// Package token implements a fixed-supply ERC20 token contract.
package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/contracts"
)

const (
	Kind = "Token"

	Name     = "Token"
	Symbol   = "TKN"
	Decimals = common.EtherDecimals
)

// Revert reasons, matching OpenZeppelin's ERC20.
const (
	ReasonTransferExceedsBalance = "ERC20: transfer amount exceeds balance"
	ReasonInsufficientAllowance  = "ERC20: insufficient allowance"
	ReasonTransferFromZero       = "ERC20: transfer from the zero address"
	ReasonTransferToZero         = "ERC20: transfer to the zero address"
	ReasonApproveFromZero        = "ERC20: approve from the zero address"
	ReasonApproveToZero          = "ERC20: approve to the zero address"
)

// InitialSupply is minted to the deployer.
var InitialSupply = common.Ether(50_000_000_000)

// Token is an ERC20 token whose whole supply is minted at deployment.
type Token struct {
	owner       ethCommon.Address
	totalSupply *big.Int
	balances    map[ethCommon.Address]*big.Int
	allowances  map[ethCommon.Address]map[ethCommon.Address]*big.Int
}

var (
	_ chain.Contract    = (*Token)(nil)
	_ chain.Initializer = (*Token)(nil)
)

func New() *Token {
	return &Token{
		totalSupply: new(big.Int),
		balances:    map[ethCommon.Address]*big.Int{},
		allowances:  map[ethCommon.Address]map[ethCommon.Address]*big.Int{},
	}
}

// Factory restores tokens from persisted state.
func Factory() chain.Contract {
	return New()
}

func (t *Token) Kind() string {
	return Kind
}

func (t *Token) ABI() *abi.ABI {
	return contracts.Token
}

// Init makes the deployer the owner and mints InitialSupply to them.
func (t *Token) Init(env chain.Env) error {
	t.owner = env.Caller()
	return t.mint(env, env.Caller(), InitialSupply)
}

func (t *Token) Owner() ethCommon.Address {
	return t.owner
}

func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.totalSupply)
}

func (t *Token) BalanceOf(account ethCommon.Address) *big.Int {
	if b, ok := t.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) Allowance(owner, spender ethCommon.Address) *big.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Transfer moves amount from the caller to `to`.
func (t *Token) Transfer(env chain.Env, to ethCommon.Address, amount *big.Int) error {
	return t.transfer(env, env.Caller(), to, amount)
}

// Approve sets the caller's allowance for spender.
func (t *Token) Approve(env chain.Env, spender ethCommon.Address, amount *big.Int) error {
	return t.approve(env, env.Caller(), spender, amount)
}

// TransferFrom moves amount from `from` to `to` using the caller's allowance.
func (t *Token) TransferFrom(env chain.Env, from, to ethCommon.Address, amount *big.Int) error {
	if err := t.spendAllowance(env, from, env.Caller(), amount); err != nil {
		return err
	}
	return t.transfer(env, from, to, amount)
}

func (t *Token) transfer(env chain.Env, from, to ethCommon.Address, amount *big.Int) error {
	if from == (ethCommon.Address{}) {
		return common.Revert(common.ErrInvalidArgument, ReasonTransferFromZero)
	}
	if to == (ethCommon.Address{}) {
		return common.Revert(common.ErrInvalidArgument, ReasonTransferToZero)
	}
	fromBalance := t.BalanceOf(from)
	if fromBalance.Cmp(amount) < 0 {
		return common.Revert(common.ErrInsufficientBalance, ReasonTransferExceedsBalance)
	}
	t.balances[from] = fromBalance.Sub(fromBalance, amount)
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	return env.Emit("Transfer", from, to, new(big.Int).Set(amount))
}

func (t *Token) mint(env chain.Env, to ethCommon.Address, amount *big.Int) error {
	t.totalSupply = new(big.Int).Add(t.totalSupply, amount)
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	return env.Emit("Transfer", ethCommon.Address{}, to, new(big.Int).Set(amount))
}

func (t *Token) approve(env chain.Env, owner, spender ethCommon.Address, amount *big.Int) error {
	if owner == (ethCommon.Address{}) {
		return common.Revert(common.ErrInvalidArgument, ReasonApproveFromZero)
	}
	if spender == (ethCommon.Address{}) {
		return common.Revert(common.ErrInvalidArgument, ReasonApproveToZero)
	}
	if t.allowances[owner] == nil {
		t.allowances[owner] = map[ethCommon.Address]*big.Int{}
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
	return env.Emit("Approval", owner, spender, new(big.Int).Set(amount))
}

// spendAllowance leaves an infinite (max uint256) allowance untouched.
func (t *Token) spendAllowance(env chain.Env, owner, spender ethCommon.Address, amount *big.Int) error {
	current := t.Allowance(owner, spender)
	if current.Cmp(math.MaxBig256) == 0 {
		return nil
	}
	if current.Cmp(amount) < 0 {
		return common.Revert(common.ErrInsufficientAllowance, ReasonInsufficientAllowance)
	}
	return t.approve(env, owner, spender, current.Sub(current, amount))
}

func (t *Token) Invoke(env chain.Env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "name":
		return []interface{}{Name}, nil
	case "symbol":
		return []interface{}{Symbol}, nil
	case "decimals":
		return []interface{}{uint8(Decimals)}, nil
	case "owner":
		return []interface{}{t.owner}, nil
	case "totalSupply":
		return []interface{}{t.TotalSupply()}, nil
	case "balanceOf":
		return []interface{}{t.BalanceOf(args[0].(ethCommon.Address))}, nil
	case "allowance":
		return []interface{}{t.Allowance(args[0].(ethCommon.Address), args[1].(ethCommon.Address))}, nil
	case "transfer":
		if err := t.Transfer(env, args[0].(ethCommon.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return []interface{}{true}, nil
	case "approve":
		if err := t.Approve(env, args[0].(ethCommon.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return []interface{}{true}, nil
	case "transferFrom":
		if err := t.TransferFrom(env, args[0].(ethCommon.Address), args[1].(ethCommon.Address), args[2].(*big.Int)); err != nil {
			return nil, err
		}
		return []interface{}{true}, nil
	default:
		return nil, fmt.Errorf("token: unsupported method %s", method)
	}
}

func (t *Token) Clone() chain.Contract {
	c := New()
	c.owner = t.owner
	c.totalSupply = new(big.Int).Set(t.totalSupply)
	for account, balance := range t.balances {
		c.balances[account] = new(big.Int).Set(balance)
	}
	for owner, spenders := range t.allowances {
		c.allowances[owner] = make(map[ethCommon.Address]*big.Int, len(spenders))
		for spender, amount := range spenders {
			c.allowances[owner][spender] = new(big.Int).Set(amount)
		}
	}
	return c
}
