package token

import (
	"bytes"
	"math/big"
	"sort"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

type balanceEntry struct {
	Account ethCommon.Address
	Amount  *big.Int
}

type allowanceEntry struct {
	Owner   ethCommon.Address
	Spender ethCommon.Address
	Amount  *big.Int
}

type tokenState struct {
	Owner       ethCommon.Address
	TotalSupply *big.Int
	Balances    []balanceEntry
	Allowances  []allowanceEntry
}

func lessAddress(a, b ethCommon.Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// EncodeState serializes the token as RLP, sorted by address so equal
// tokens encode identically.
func (t *Token) EncodeState() ([]byte, error) {
	st := tokenState{
		Owner:       t.owner,
		TotalSupply: t.totalSupply,
	}
	for account, amount := range t.balances {
		st.Balances = append(st.Balances, balanceEntry{Account: account, Amount: amount})
	}
	for owner, spenders := range t.allowances {
		for spender, amount := range spenders {
			st.Allowances = append(st.Allowances, allowanceEntry{Owner: owner, Spender: spender, Amount: amount})
		}
	}
	sort.Slice(st.Balances, func(i, j int) bool {
		return lessAddress(st.Balances[i].Account, st.Balances[j].Account)
	})
	sort.Slice(st.Allowances, func(i, j int) bool {
		a, b := st.Allowances[i], st.Allowances[j]
		if a.Owner != b.Owner {
			return lessAddress(a.Owner, b.Owner)
		}
		return lessAddress(a.Spender, b.Spender)
	})
	return rlp.EncodeToBytes(&st)
}

func (t *Token) DecodeState(b []byte) error {
	var st tokenState
	if err := rlp.DecodeBytes(b, &st); err != nil {
		return err
	}
	fresh := New()
	fresh.owner = st.Owner
	if st.TotalSupply != nil {
		fresh.totalSupply = st.TotalSupply
	}
	for _, e := range st.Balances {
		fresh.balances[e.Account] = e.Amount
	}
	for _, e := range st.Allowances {
		if fresh.allowances[e.Owner] == nil {
			fresh.allowances[e.Owner] = map[ethCommon.Address]*big.Int{}
		}
		fresh.allowances[e.Owner][e.Spender] = e.Amount
	}
	*t = *fresh
	return nil
}
