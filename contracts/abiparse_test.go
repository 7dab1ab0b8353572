package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var (
	alice = ethCommon.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = ethCommon.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func packLog(t *testing.T, contractABI *abi.ABI, name string, args ...interface{}) *types.Log {
	event := contractABI.Events[name]
	var indexed []interface{}
	var data []interface{}
	for i, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, args[i])
		} else {
			data = append(data, args[i])
		}
	}
	topics := []ethCommon.Hash{event.ID}
	for _, arg := range indexed {
		ts, err := abi.MakeTopics([]interface{}{arg})
		require.NoError(t, err)
		topics = append(topics, ts[0][0])
	}
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return &types.Log{Topics: topics, Data: packed}
}

func TestDecodeTransfer(t *testing.T) {
	amount := new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
	l := packLog(t, Token, "Transfer", alice, bob, amount)

	event, err := DecodeLog(Token, l)
	require.NoError(t, err)
	require.Equal(t, "Transfer", event.Name)
	require.Equal(t, []EventArg{
		{Name: "from", EvmType: "address", Value: alice},
		{Name: "to", EvmType: "address", Value: bob},
		{Name: "value", EvmType: "uint256", Value: "10000000000000000000"},
	}, event.Args)
	require.Equal(t, 0, amount.Cmp(event.Values["value"].(*big.Int)))
}

func TestDecodeRoleGranted(t *testing.T) {
	var role [32]byte
	role[31] = 1
	l := packLog(t, Vault, "RoleGranted", role, alice, bob)

	event, err := DecodeLog(Vault, l)
	require.NoError(t, err)
	require.Equal(t, "RoleGranted", event.Name)
	require.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000001", event.Args[0].Value)
	require.Equal(t, alice, event.Args[1].Value)
}

func TestDecodeUnknownLog(t *testing.T) {
	_, err := DecodeLog(Token, &types.Log{})
	require.Error(t, err)

	l := packLog(t, Vault, "RoleGranted", [32]byte{}, alice, bob)
	_, err = DecodeLog(Token, l)
	require.Error(t, err)
}

func TestParseData(t *testing.T) {
	data, err := Token.Pack("transfer", bob, big.NewInt(5))
	require.NoError(t, err)

	method, args, err := ParseData(data, Token)
	require.NoError(t, err)
	require.Equal(t, "transfer", method.Name)
	require.Equal(t, bob, args[0])
	require.Equal(t, big.NewInt(5), args[1])

	_, _, err = ParseData(data[:3], Token)
	require.Error(t, err)
}
