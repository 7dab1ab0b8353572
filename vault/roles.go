package vault

import (
	"fmt"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/common"
)

func (v *Vault) checkRole(role ethCommon.Hash, account ethCommon.Address) error {
	if v.HasRole(role, account) {
		return nil
	}
	return common.Revert(common.ErrUnauthorized, fmt.Sprintf(
		"AccessControl: account %s is missing role %s",
		strings.ToLower(account.Hex()), role.Hex(),
	))
}

// GrantRole requires the caller to hold the role's admin role.
func (v *Vault) GrantRole(env chain.Env, role ethCommon.Hash, account ethCommon.Address) error {
	if err := v.checkRole(v.RoleAdmin(role), env.Caller()); err != nil {
		return err
	}
	return v.grantRole(env, role, account)
}

// RevokeRole requires the caller to hold the role's admin role.
func (v *Vault) RevokeRole(env chain.Env, role ethCommon.Hash, account ethCommon.Address) error {
	if err := v.checkRole(v.RoleAdmin(role), env.Caller()); err != nil {
		return err
	}
	return v.revokeRole(env, role, account)
}

// RenounceRole drops one of the caller's own roles.
func (v *Vault) RenounceRole(env chain.Env, role ethCommon.Hash, account ethCommon.Address) error {
	if account != env.Caller() {
		return common.Revert(common.ErrUnauthorized, ReasonRenounceOnlySelf)
	}
	return v.revokeRole(env, role, account)
}

// Granting a held role or revoking a missing one is a no-op without events.
func (v *Vault) grantRole(env chain.Env, role ethCommon.Hash, account ethCommon.Address) error {
	if v.HasRole(role, account) {
		return nil
	}
	if v.roles[role] == nil {
		v.roles[role] = map[ethCommon.Address]struct{}{}
	}
	v.roles[role][account] = struct{}{}
	return env.Emit("RoleGranted", role, account, env.Caller())
}

func (v *Vault) revokeRole(env chain.Env, role ethCommon.Hash, account ethCommon.Address) error {
	if !v.HasRole(role, account) {
		return nil
	}
	delete(v.roles[role], account)
	if len(v.roles[role]) == 0 {
		delete(v.roles, role)
	}
	return env.Emit("RoleRevoked", role, account, env.Caller())
}
