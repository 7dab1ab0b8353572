package vault

import (
	"bytes"
	"math/big"
	"sort"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tokenvault/tokenvault/chain"
)

type roleMember struct {
	Role    ethCommon.Hash
	Account ethCommon.Address
}

type vaultState struct {
	Token             ethCommon.Address
	WithdrawEnabled   bool
	MaxWithdrawAmount *big.Int
	Roles             []roleMember
}

func (v *Vault) Clone() chain.Contract {
	c := New()
	c.token = v.token
	c.withdrawEnabled = v.withdrawEnabled
	c.maxWithdrawAmount = new(big.Int).Set(v.maxWithdrawAmount)
	for role, members := range v.roles {
		c.roles[role] = make(map[ethCommon.Address]struct{}, len(members))
		for account := range members {
			c.roles[role][account] = struct{}{}
		}
	}
	return c
}

func (v *Vault) EncodeState() ([]byte, error) {
	st := vaultState{
		Token:             v.token,
		WithdrawEnabled:   v.withdrawEnabled,
		MaxWithdrawAmount: v.maxWithdrawAmount,
	}
	for role, members := range v.roles {
		for account := range members {
			st.Roles = append(st.Roles, roleMember{Role: role, Account: account})
		}
	}
	sort.Slice(st.Roles, func(i, j int) bool {
		a, b := st.Roles[i], st.Roles[j]
		if a.Role != b.Role {
			return bytes.Compare(a.Role[:], b.Role[:]) < 0
		}
		return bytes.Compare(a.Account[:], b.Account[:]) < 0
	})
	return rlp.EncodeToBytes(&st)
}

func (v *Vault) DecodeState(b []byte) error {
	var st vaultState
	if err := rlp.DecodeBytes(b, &st); err != nil {
		return err
	}
	fresh := New()
	fresh.token = st.Token
	fresh.withdrawEnabled = st.WithdrawEnabled
	if st.MaxWithdrawAmount != nil {
		fresh.maxWithdrawAmount = st.MaxWithdrawAmount
	}
	for _, m := range st.Roles {
		if fresh.roles[m.Role] == nil {
			fresh.roles[m.Role] = map[ethCommon.Address]struct{}{}
		}
		fresh.roles[m.Role][m.Account] = struct{}{}
	}
	*v = *fresh
	return nil
}
