package common

import (
	ethCommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// RoleID derives an access-control role identifier from its name, the same
// way Solidity's keccak256(bytes("NAME")) does.
func RoleID(name string) ethCommon.Hash {
	return ethCommon.BytesToHash(Keccak256([]byte(name)))
}

// DefaultAdminRoleName names the zero role identifier, which administers
// every role.
const DefaultAdminRoleName = "DEFAULT_ADMIN_ROLE"

// ParseRole accepts either a 0x-prefixed 32-byte hex role identifier or a
// role name such as "WITHDRAWER_ROLE".
func ParseRole(s string) ethCommon.Hash {
	switch {
	case s == DefaultAdminRoleName:
		return ethCommon.Hash{}
	case len(s) == 66 && (s[:2] == "0x" || s[:2] == "0X"):
		return ethCommon.HexToHash(s)
	default:
		return RoleID(s)
	}
}
