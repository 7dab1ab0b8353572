package chain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/tokenvault/tokenvault/cache/kvstore"
)

var stateKey = kvstore.GenerateCacheKey(moduleName, "state")

type persistedNonce struct {
	Account ethCommon.Address
	Nonce   uint64
}

type persistedContract struct {
	Address ethCommon.Address
	Kind    string
	State   []byte
}

type persistedState struct {
	ChainID   *big.Int
	Block     uint64
	Nonces    []persistedNonce
	Contracts []persistedContract
}

// Save writes contracts, nonces and the block number to store. Receipts
// and snapshots are not persisted.
func (rt *Runtime) Save(store kvstore.KVStore) error {
	rt.mu.RLock()
	ps := persistedState{
		ChainID: rt.chainID,
		Block:   rt.state.block,
	}
	for addr, nonce := range rt.state.nonces {
		ps.Nonces = append(ps.Nonces, persistedNonce{Account: addr, Nonce: nonce})
	}
	for addr, c := range rt.state.contracts {
		enc, err := c.EncodeState()
		if err != nil {
			rt.mu.RUnlock()
			return fmt.Errorf("chain: encode %s at %s: %w", c.Kind(), addr.Hex(), err)
		}
		ps.Contracts = append(ps.Contracts, persistedContract{Address: addr, Kind: c.Kind(), State: enc})
	}
	rt.mu.RUnlock()

	sort.Slice(ps.Nonces, func(i, j int) bool {
		return bytes.Compare(ps.Nonces[i].Account[:], ps.Nonces[j].Account[:]) < 0
	})
	sort.Slice(ps.Contracts, func(i, j int) bool {
		return bytes.Compare(ps.Contracts[i].Address[:], ps.Contracts[j].Address[:]) < 0
	})
	if err := kvstore.PutValue(store, stateKey, &ps); err != nil {
		return fmt.Errorf("chain: save state: %w", err)
	}
	rt.logger.Info("state saved", "block", ps.Block, "contracts", len(ps.Contracts))
	return nil
}

// Load replaces the state with the one saved in store. It returns false
// when the store holds no state. Snapshots are discarded.
func (rt *Runtime) Load(store kvstore.KVStore) (bool, error) {
	var ps persistedState
	switch err := kvstore.GetValue(store, stateKey, &ps); {
	case errors.Is(err, kvstore.ErrNoSuchKey):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("chain: load state: %w", err)
	}
	if ps.ChainID == nil || ps.ChainID.Cmp(rt.chainID) != 0 {
		return false, fmt.Errorf("chain: stored state is for chain %v, runtime is chain %v", ps.ChainID, rt.chainID)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	st := newWorldState()
	st.block = ps.Block
	for _, n := range ps.Nonces {
		st.nonces[n.Account] = n.Nonce
	}
	for _, pc := range ps.Contracts {
		factory, ok := rt.factories[pc.Kind]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownKind, pc.Kind)
		}
		c := factory()
		if err := c.DecodeState(pc.State); err != nil {
			return false, fmt.Errorf("chain: decode %s at %s: %w", pc.Kind, pc.Address.Hex(), err)
		}
		st.contracts[pc.Address] = c
	}
	rt.state = st
	rt.snapshots = map[uuid.UUID]*worldState{}
	rt.logger.Info("state loaded", "block", ps.Block, "contracts", len(ps.Contracts))
	return true, nil
}
