package chain

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tokenvault/tokenvault/cache/kvstore"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/log"
)

const counterABIJSON = `[
	{"type":"function","name":"get","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"increment","stateMutability":"nonpayable","inputs":[{"name":"n","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"bumpBoth","stateMutability":"nonpayable","inputs":[{"name":"other","type":"address"},{"name":"n","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"swallow","stateMutability":"nonpayable","inputs":[{"name":"other","type":"address"},{"name":"n","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"boom","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"event","name":"Incremented","anonymous":false,"inputs":[{"name":"by","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

var counterABI = func() *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(counterABIJSON))
	if err != nil {
		panic(err)
	}
	return &parsed
}()

const counterLimit = 100

// counter is a minimal contract for exercising the runtime.
type counter struct {
	value *big.Int
}

func newCounter() Contract {
	return &counter{value: new(big.Int)}
}

func (c *counter) Kind() string  { return "Counter" }
func (c *counter) ABI() *abi.ABI { return counterABI }

func (c *counter) Clone() Contract {
	return &counter{value: new(big.Int).Set(c.value)}
}

func (c *counter) EncodeState() ([]byte, error) {
	return rlp.EncodeToBytes(c.value)
}

func (c *counter) DecodeState(b []byte) error {
	c.value = new(big.Int)
	return rlp.DecodeBytes(b, c.value)
}

func (c *counter) increment(env Env, n *big.Int) error {
	next := new(big.Int).Add(c.value, n)
	if next.Cmp(big.NewInt(counterLimit)) > 0 {
		return common.Revert(common.ErrLimitExceeded, "Counter: limit")
	}
	c.value = next
	return env.Emit("Incremented", env.Caller(), new(big.Int).Set(c.value))
}

func (c *counter) Invoke(env Env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "get":
		return []interface{}{new(big.Int).Set(c.value)}, nil
	case "increment":
		return nil, c.increment(env, args[0].(*big.Int))
	case "bumpBoth":
		if err := c.increment(env, args[1].(*big.Int)); err != nil {
			return nil, err
		}
		_, err := env.Call(args[0].(ethCommon.Address), "increment", args[1])
		return nil, err
	case "swallow":
		_, _ = env.Call(args[0].(ethCommon.Address), "increment", args[1])
		return nil, c.increment(env, args[1].(*big.Int))
	case "boom":
		var m map[string]int
		m["boom"]++
		return nil, nil
	}
	return nil, errors.New("unknown method")
}

var (
	alice = ethCommon.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = ethCommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newTestRuntime() *Runtime {
	rt := NewRuntime(big.NewInt(31337), log.NewDefaultLogger("chain_test"))
	rt.Register("Counter", newCounter)
	return rt
}

func deployCounter(t *testing.T, rt *Runtime, from ethCommon.Address) ethCommon.Address {
	t.Helper()
	addr, receipt, err := rt.Deploy(context.Background(), from, newCounter())
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	require.Equal(t, addr, receipt.ContractAddress)
	return addr
}

func pack(t *testing.T, method string, args ...interface{}) []byte {
	t.Helper()
	data, err := counterABI.Pack(method, args...)
	require.NoError(t, err)
	return data
}

func get(t *testing.T, rt *Runtime, addr ethCommon.Address) int64 {
	t.Helper()
	out, err := rt.Call(context.Background(), alice, addr, pack(t, "get"))
	require.NoError(t, err)
	vals, err := counterABI.Unpack("get", out)
	require.NoError(t, err)
	return vals[0].(*big.Int).Int64()
}

func TestDeployAddresses(t *testing.T) {
	rt := newTestRuntime()
	a := deployCounter(t, rt, alice)
	b := deployCounter(t, rt, alice)
	require.NotEqual(t, a, b)
	require.Equal(t, uint64(2), rt.Nonce(alice))
	require.Equal(t, uint64(2), rt.BlockNumber())
	require.Equal(t, []byte("Counter"), rt.Code(a))
	require.Nil(t, rt.Code(bob))
}

func TestApplyEmitsLogs(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	addr := deployCounter(t, rt, alice)

	var observed []*Receipt
	rt.OnReceipt(func(r *Receipt) { observed = append(observed, r) })

	receipt, err := rt.Transact(ctx, bob, addr, pack(t, "increment", big.NewInt(7)))
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	require.Len(t, receipt.Logs, 1)

	l := receipt.Logs[0]
	require.Equal(t, addr, l.Address)
	require.Equal(t, counterABI.Events["Incremented"].ID, l.Topics[0])
	require.Equal(t, ethCommon.BytesToHash(bob.Bytes()), l.Topics[1])
	require.Equal(t, receipt.TxHash, l.TxHash)
	require.True(t, types.BloomLookup(receipt.Bloom, addr))

	vals, err := counterABI.Events["Incremented"].Inputs.NonIndexed().Unpack(l.Data)
	require.NoError(t, err)
	require.Equal(t, int64(7), vals[0].(*big.Int).Int64())

	require.Equal(t, int64(7), get(t, rt, addr))
	require.Len(t, observed, 1)

	stored, ok := rt.Receipt(receipt.TxHash)
	require.True(t, ok)
	require.Equal(t, receipt, stored)
}

func TestRevertIsAtomic(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	a := deployCounter(t, rt, alice)
	b := deployCounter(t, rt, alice)

	_, err := rt.Transact(ctx, alice, b, pack(t, "increment", big.NewInt(95)))
	require.NoError(t, err)

	// a would go to 10 but b would exceed the limit.
	receipt, err := rt.Transact(ctx, alice, a, pack(t, "bumpBoth", b, big.NewInt(10)))
	require.NoError(t, err)
	require.False(t, receipt.Succeeded())
	require.Empty(t, receipt.Logs)
	require.NotNil(t, receipt.Revert)
	require.Equal(t, "Counter: limit", receipt.Revert.Reason)
	require.ErrorIs(t, receipt.Revert, common.ErrLimitExceeded)

	require.Equal(t, int64(0), get(t, rt, a))
	require.Equal(t, int64(95), get(t, rt, b))
	require.Equal(t, uint64(4), rt.Nonce(alice))
}

func TestSwallowedFailureStillReverts(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	a := deployCounter(t, rt, alice)
	b := deployCounter(t, rt, alice)
	_, err := rt.Transact(ctx, alice, b, pack(t, "increment", big.NewInt(100)))
	require.NoError(t, err)

	receipt, err := rt.Transact(ctx, alice, a, pack(t, "swallow", b, big.NewInt(1)))
	require.NoError(t, err)
	require.False(t, receipt.Succeeded())
	require.Equal(t, int64(0), get(t, rt, a))
}

func TestCallRevertError(t *testing.T) {
	rt := newTestRuntime()
	addr := deployCounter(t, rt, alice)

	_, err := rt.Call(context.Background(), alice, addr, pack(t, "increment", big.NewInt(101)))
	var rerr *RevertError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "execution reverted: Counter: limit", rerr.Error())
	require.Equal(t, 3, rerr.ErrorCode())

	reason, err := abi.UnpackRevert(rerr.Data())
	require.NoError(t, err)
	require.Equal(t, "Counter: limit", reason)
	require.True(t, strings.HasPrefix(rerr.ErrorData().(string), "0x08c379a0"))

	// Calls never change state.
	require.Equal(t, int64(0), get(t, rt, addr))
}

func TestPanicAndBadInput(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	addr := deployCounter(t, rt, alice)

	receipt, err := rt.Transact(ctx, alice, addr, pack(t, "boom"))
	require.NoError(t, err)
	require.False(t, receipt.Succeeded())
	require.Contains(t, receipt.Revert.Reason, "panicked")

	receipt, err = rt.Transact(ctx, alice, addr, []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)
	require.False(t, receipt.Succeeded())
	require.ErrorIs(t, receipt.Revert, common.ErrInvalidArgument)

	// Plain accounts accept anything.
	receipt, err = rt.Transact(ctx, alice, bob, nil)
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
}

func TestNonceChecks(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	addr := deployCounter(t, rt, alice)

	wrong := uint64(5)
	_, err := rt.Apply(ctx, Message{From: alice, To: addr, Data: pack(t, "get"), Nonce: &wrong})
	require.ErrorIs(t, err, ErrNonceMismatch)

	hash := ethCommon.HexToHash("0x01")
	_, err = rt.Apply(ctx, Message{From: bob, To: addr, Data: pack(t, "get"), Hash: hash})
	require.NoError(t, err)
	_, err = rt.Apply(ctx, Message{From: bob, To: addr, Data: pack(t, "get"), Hash: hash})
	require.ErrorIs(t, err, ErrKnownTransaction)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = rt.Transact(cancelled, alice, addr, pack(t, "get"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotRevert(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	addr := deployCounter(t, rt, alice)
	snap := rt.Snapshot()

	for i := 0; i < 2; i++ {
		receipt, err := rt.Transact(ctx, alice, addr, pack(t, "increment", big.NewInt(3)))
		require.NoError(t, err)
		require.True(t, receipt.Succeeded())
		require.Equal(t, int64(3), get(t, rt, addr))

		require.NoError(t, rt.Revert(snap))
		require.Equal(t, int64(0), get(t, rt, addr))
		_, ok := rt.Receipt(receipt.TxHash)
		require.False(t, ok)
	}
	require.ErrorIs(t, rt.Revert(uuid.New()), ErrUnknownSnapshot)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	store, err := kvstore.OpenKVStore(log.NewDefaultLogger("chain_test"), filepath.Join(t.TempDir(), "state"), nil)
	require.NoError(t, err)
	defer store.Close()

	rt := newTestRuntime()
	found, err := rt.Load(store)
	require.NoError(t, err)
	require.False(t, found)

	addr := deployCounter(t, rt, alice)
	_, err = rt.Transact(ctx, bob, addr, pack(t, "increment", big.NewInt(42)))
	require.NoError(t, err)
	require.NoError(t, rt.Save(store))

	restored := newTestRuntime()
	found, err = restored.Load(store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(42), get(t, restored, addr))
	require.Equal(t, rt.Nonce(alice), restored.Nonce(alice))
	require.Equal(t, rt.BlockNumber(), restored.BlockNumber())

	other := NewRuntime(big.NewInt(1), log.NewDefaultLogger("chain_test"))
	_, err = other.Load(store)
	require.Error(t, err)

	unregistered := NewRuntime(big.NewInt(31337), log.NewDefaultLogger("chain_test"))
	_, err = unregistered.Load(store)
	require.ErrorIs(t, err, ErrUnknownKind)
}

// bumper increments another counter from its constructor and ignores the
// outcome.
type bumper struct {
	counter
	target ethCommon.Address
}

func (b *bumper) Kind() string { return "Bumper" }

func (b *bumper) Clone() Contract {
	return &bumper{counter: counter{value: new(big.Int).Set(b.value)}, target: b.target}
}

func (b *bumper) Init(env Env) error {
	_, _ = env.Call(b.target, "increment", big.NewInt(counterLimit+1))
	return nil
}

func TestDeploySwallowedFailureReverts(t *testing.T) {
	rt := newTestRuntime()
	target := deployCounter(t, rt, alice)
	block := rt.BlockNumber()

	_, receipt, err := rt.Deploy(context.Background(), bob, &bumper{counter: counter{value: new(big.Int)}, target: target})
	var rerr *RevertError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "Counter: limit", rerr.Reason)
	require.Nil(t, receipt)
	require.Equal(t, block, rt.BlockNumber())
	require.Equal(t, uint64(0), rt.Nonce(bob))
}

func TestReceiptsObservedInBlockOrder(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	addr := deployCounter(t, rt, alice)

	var (
		mu     sync.Mutex
		blocks []uint64
	)
	rt.OnReceipt(func(r *Receipt) {
		mu.Lock()
		first := len(blocks) == 0
		mu.Unlock()
		if first {
			// Let the other transactions get mined meanwhile.
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		blocks = append(blocks, r.BlockNumber.Uint64())
		mu.Unlock()
	})

	data := pack(t, "increment", big.NewInt(1))
	senders := []ethCommon.Address{alice, bob, ethCommon.HexToAddress("0x01"), ethCommon.HexToAddress("0x02")}
	errs := make(chan error, len(senders))
	var wg sync.WaitGroup
	for _, from := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rt.Transact(ctx, from, addr, data)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, []uint64{2, 3, 4, 5}, blocks)
	require.Equal(t, int64(len(senders)), get(t, rt, addr))
}
