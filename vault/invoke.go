package vault

import (
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/tokenvault/tokenvault/chain"
)

func (v *Vault) Invoke(env chain.Env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "DEFAULT_ADMIN_ROLE":
		return []interface{}{[32]byte(DefaultAdminRole)}, nil
	case "WITHDRAWER_ROLE":
		return []interface{}{[32]byte(WithdrawerRole)}, nil
	case "token", "getTokenAddress":
		return []interface{}{v.token}, nil
	case "withdrawEnable":
		return []interface{}{v.withdrawEnabled}, nil
	case "maxWithdrawAmount":
		return []interface{}{v.MaxWithdrawAmount()}, nil
	case "hasRole":
		return []interface{}{v.HasRole(roleArg(args[0]), args[1].(ethCommon.Address))}, nil
	case "getRoleAdmin":
		return []interface{}{[32]byte(v.RoleAdmin(roleArg(args[0])))}, nil
	case "setToken":
		return nil, v.SetToken(env, args[0].(ethCommon.Address))
	case "setWithdrawEnable":
		return nil, v.SetWithdrawEnable(env, args[0].(bool))
	case "setMaxWithdrawAmount":
		return nil, v.SetMaxWithdrawAmount(env, args[0].(*big.Int))
	case "deposit":
		return nil, v.Deposit(env, args[0].(*big.Int))
	case "withdraw":
		return nil, v.Withdraw(env, args[0].(ethCommon.Address), args[1].(*big.Int))
	case "grantRole":
		return nil, v.GrantRole(env, roleArg(args[0]), args[1].(ethCommon.Address))
	case "revokeRole":
		return nil, v.RevokeRole(env, roleArg(args[0]), args[1].(ethCommon.Address))
	case "renounceRole":
		return nil, v.RenounceRole(env, roleArg(args[0]), args[1].(ethCommon.Address))
	default:
		return nil, fmt.Errorf("vault: unsupported method %s", method)
	}
}

// roleArg converts a decoded bytes32 argument.
func roleArg(arg interface{}) ethCommon.Hash {
	switch r := arg.(type) {
	case [32]byte:
		return r
	case ethCommon.Hash:
		return r
	default:
		panic(fmt.Sprintf("vault: unexpected role argument %T", arg))
	}
}
