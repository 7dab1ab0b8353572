// Package vault implements a role-gated token vault.
//
// Anyone may deposit the configured token. Withdrawals require the
// withdrawer role, the withdraw switch and a per-call ceiling, checked in
// that order before the token balance.
package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/contracts"
)

const Kind = "Vault"

const (
	ReasonNotWithdrawer       = "Caller is not a withdrawer"
	ReasonWithdrawDisabled    = "Withdraw is not available"
	ReasonExceedMaximum       = "Exceed maximum amount"
	ReasonInsufficientBalance = "Insufficient account balance"
	ReasonTokenNotSet         = "Token is not set"
	ReasonRenounceOnlySelf    = "AccessControl: can only renounce roles for self"
)

var (
	// DefaultAdminRole administers every role.
	DefaultAdminRole = ethCommon.Hash{}

	WithdrawerRole = common.RoleID("WITHDRAWER_ROLE")
)

type Vault struct {
	token             ethCommon.Address
	withdrawEnabled   bool
	maxWithdrawAmount *big.Int
	roles             map[ethCommon.Hash]map[ethCommon.Address]struct{}
}

var (
	_ chain.Contract    = (*Vault)(nil)
	_ chain.Initializer = (*Vault)(nil)
)

func New() *Vault {
	return &Vault{
		maxWithdrawAmount: new(big.Int),
		roles:             map[ethCommon.Hash]map[ethCommon.Address]struct{}{},
	}
}

// Factory restores vaults from persisted state.
func Factory() chain.Contract {
	return New()
}

func (v *Vault) Kind() string {
	return Kind
}

func (v *Vault) ABI() *abi.ABI {
	return contracts.Vault
}

// Init grants the deployer DefaultAdminRole.
func (v *Vault) Init(env chain.Env) error {
	return v.grantRole(env, DefaultAdminRole, env.Caller())
}

func (v *Vault) Token() ethCommon.Address {
	return v.token
}

func (v *Vault) WithdrawEnabled() bool {
	return v.withdrawEnabled
}

func (v *Vault) MaxWithdrawAmount() *big.Int {
	return new(big.Int).Set(v.maxWithdrawAmount)
}

func (v *Vault) HasRole(role ethCommon.Hash, account ethCommon.Address) bool {
	_, ok := v.roles[role][account]
	return ok
}

// RoleAdmin returns the role that administers `role`. Every role is
// administered by DefaultAdminRole.
func (v *Vault) RoleAdmin(role ethCommon.Hash) ethCommon.Hash {
	return DefaultAdminRole
}

func (v *Vault) SetToken(env chain.Env, token ethCommon.Address) error {
	v.token = token
	return nil
}

func (v *Vault) SetWithdrawEnable(env chain.Env, enabled bool) error {
	v.withdrawEnabled = enabled
	return nil
}

func (v *Vault) SetMaxWithdrawAmount(env chain.Env, amount *big.Int) error {
	v.maxWithdrawAmount = new(big.Int).Set(amount)
	return nil
}

func (v *Vault) requireToken() error {
	if v.token == (ethCommon.Address{}) {
		return common.Revert(common.ErrInvalidArgument, ReasonTokenNotSet)
	}
	return nil
}

// Deposit pulls amount of the token from the caller. The caller must have
// approved the vault beforehand.
func (v *Vault) Deposit(env chain.Env, amount *big.Int) error {
	if err := v.requireToken(); err != nil {
		return err
	}
	out, err := env.Call(v.token, "balanceOf", env.Caller())
	if err != nil {
		return err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return fmt.Errorf("vault: unexpected balanceOf result %T", out[0])
	}
	if amount.Cmp(balance) > 0 {
		return common.Revert(common.ErrInsufficientBalance, ReasonInsufficientBalance)
	}
	if _, err := env.Call(v.token, "transferFrom", env.Caller(), env.Self(), amount); err != nil {
		return err
	}
	return env.Emit("Deposited", env.Caller(), new(big.Int).Set(amount))
}

// Withdraw sends amount of the token held by the vault to `to`.
func (v *Vault) Withdraw(env chain.Env, to ethCommon.Address, amount *big.Int) error {
	if !v.HasRole(WithdrawerRole, env.Caller()) {
		return common.Revert(common.ErrUnauthorized, ReasonNotWithdrawer)
	}
	if !v.withdrawEnabled {
		return common.Revert(common.ErrFeatureDisabled, ReasonWithdrawDisabled)
	}
	if amount.Cmp(v.maxWithdrawAmount) > 0 {
		return common.Revert(common.ErrLimitExceeded, ReasonExceedMaximum)
	}
	if err := v.requireToken(); err != nil {
		return err
	}
	if _, err := env.Call(v.token, "transfer", to, amount); err != nil {
		return err
	}
	return env.Emit("Withdrawn", env.Caller(), to, new(big.Int).Set(amount))
}
