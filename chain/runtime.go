package chain

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"

	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/metrics"
)

const (
	moduleName = "chain"

	maxCallDepth = 1024
)

var (
	ErrNonceMismatch    = errors.New("nonce mismatch")
	ErrKnownTransaction = errors.New("known transaction")
	ErrUnknownSnapshot  = errors.New("unknown snapshot")
	ErrNoContract       = errors.New("no contract at address")
	ErrUnknownKind      = errors.New("unknown contract kind")
)

// Message is a state-changing call submitted to the runtime.
type Message struct {
	From ethCommon.Address
	To   ethCommon.Address
	Data []byte

	// Nonce, if set, must equal the sender's current nonce.
	Nonce *uint64

	// Hash identifies the transaction. Derived from the other fields when zero.
	Hash ethCommon.Hash
}

type worldState struct {
	contracts map[ethCommon.Address]Contract
	nonces    map[ethCommon.Address]uint64
	receipts  map[ethCommon.Hash]*Receipt
	block     uint64
}

func newWorldState() *worldState {
	return &worldState{
		contracts: map[ethCommon.Address]Contract{},
		nonces:    map[ethCommon.Address]uint64{},
		receipts:  map[ethCommon.Hash]*Receipt{},
	}
}

// fork deep-copies contracts and nonces. Receipts are shared with s since
// execution never touches them.
func (s *worldState) fork() *worldState {
	f := &worldState{
		contracts: make(map[ethCommon.Address]Contract, len(s.contracts)),
		nonces:    maps.Clone(s.nonces),
		receipts:  s.receipts,
		block:     s.block,
	}
	for addr, c := range s.contracts {
		f.contracts[addr] = c.Clone()
	}
	return f
}

// copy is fork with a private receipts map.
func (s *worldState) copy() *worldState {
	f := s.fork()
	f.receipts = maps.Clone(s.receipts)
	return f
}

// Runtime executes contract calls against the world state. It is safe for
// concurrent use; transactions are applied one at a time, one per block.
type Runtime struct {
	chainID *big.Int
	logger  *log.Logger
	metrics metrics.ContractMetrics

	mu        sync.RWMutex
	state     *worldState
	snapshots map[uuid.UUID]*worldState
	factories map[string]Factory
	observers []func(*Receipt)

	// Receipts are numbered under mu when mined and handed to observers in
	// that order.
	mined     uint64
	delivered uint64
	deliverMu sync.Mutex
	deliverCv *sync.Cond
}

func NewRuntime(chainID *big.Int, logger *log.Logger) *Runtime {
	rt := &Runtime{
		chainID:   new(big.Int).Set(chainID),
		logger:    logger.WithModule(moduleName),
		metrics:   metrics.NewDefaultContractMetrics(moduleName),
		state:     newWorldState(),
		snapshots: map[uuid.UUID]*worldState{},
		factories: map[string]Factory{},
	}
	rt.deliverCv = sync.NewCond(&rt.deliverMu)
	return rt
}

func (rt *Runtime) ChainID() *big.Int {
	return new(big.Int).Set(rt.chainID)
}

// Register makes a contract kind restorable by Load.
func (rt *Runtime) Register(kind string, f Factory) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.factories[kind] = f
}

// OnReceipt registers fn to be called with every mined receipt, in block
// order. fn runs outside the runtime lock and may read from the runtime, but
// must not mine transactions.
func (rt *Runtime) OnReceipt(fn func(*Receipt)) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.observers = append(rt.observers, fn)
}

func (rt *Runtime) BlockNumber() uint64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.state.block
}

func (rt *Runtime) Nonce(addr ethCommon.Address) uint64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.state.nonces[addr]
}

// Code returns a non-empty marker for contract accounts, nil otherwise.
func (rt *Runtime) Code(addr ethCommon.Address) []byte {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if c, ok := rt.state.contracts[addr]; ok {
		return []byte(c.Kind())
	}
	return nil
}

// ContractAt returns a copy of the contract deployed at addr.
func (rt *Runtime) ContractAt(addr ethCommon.Address) (Contract, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	c, ok := rt.state.contracts[addr]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (rt *Runtime) Receipt(hash ethCommon.Hash) (*Receipt, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	r, ok := rt.state.receipts[hash]
	return r, ok
}

// Deploy creates a copy of c at the address derived from (from, nonce) and
// runs its constructor. A failing constructor leaves the state untouched.
func (rt *Runtime) Deploy(ctx context.Context, from ethCommon.Address, c Contract) (ethCommon.Address, *Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ethCommon.Address{}, nil, err
	}
	rt.mu.Lock()
	nonce := rt.state.nonces[from]
	addr := crypto.CreateAddress(from, nonce)
	working := rt.state.fork()
	working.nonces[from] = nonce + 1
	working.block++
	instance := c.Clone()
	working.contracts[addr] = instance

	tx := &txContext{rt: rt, state: working}
	if init, ok := instance.(Initializer); ok {
		err := init.Init(&frame{tx: tx, caller: from, self: addr})
		if err == nil {
			err = tx.failed
		}
		if err != nil {
			rt.mu.Unlock()
			return ethCommon.Address{}, nil, fmt.Errorf("chain: deploy %s: %w", c.Kind(), NewRevertError(err))
		}
	}

	data := []byte(c.Kind())
	hash := messageHash(from, nonce, addr, data)
	receipt := newReceipt(hash, working.block, 0, data, true, tx.logs, nil)
	receipt.ContractAddress = addr
	working.receipts[hash] = receipt
	rt.state = working
	observers, seq := rt.observers, rt.nextSeq()
	rt.mu.Unlock()

	rt.metrics.Transactions(metrics.CallStatusOK).Inc()
	rt.logger.Info("contract deployed", "kind", c.Kind(), "address", addr, "deployer", from, "block", receipt.BlockNumber)
	rt.deliver(seq, observers, receipt)
	return addr, receipt, nil
}

// Call executes data against a throwaway copy of the state, like eth_call.
func (rt *Runtime) Call(ctx context.Context, from ethCommon.Address, to ethCommon.Address, data []byte) ([]byte, error) {
	out, _, err := rt.Simulate(ctx, from, to, data)
	return out, err
}

// Simulate is Call that also returns the logs the call would emit.
func (rt *Runtime) Simulate(ctx context.Context, from ethCommon.Address, to ethCommon.Address, data []byte) ([]byte, []*types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	rt.mu.RLock()
	working := rt.state.fork()
	rt.mu.RUnlock()

	tx := &txContext{rt: rt, state: working}
	out, err := tx.run(from, to, data)
	if err != nil {
		return nil, nil, NewRevertError(err)
	}
	return out, tx.logs, nil
}

// Apply mines msg into a new block. Execution errors do not fail Apply:
// they produce a receipt with a failed status, and only the sender's nonce
// and the block number advance. Apply itself fails on invalid messages.
func (rt *Runtime) Apply(ctx context.Context, msg Message) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rt.mu.Lock()
	nonce := rt.state.nonces[msg.From]
	if msg.Nonce != nil && *msg.Nonce != nonce {
		rt.mu.Unlock()
		return nil, fmt.Errorf("%w: have %d, want %d", ErrNonceMismatch, *msg.Nonce, nonce)
	}
	hash := msg.Hash
	if hash == (ethCommon.Hash{}) {
		hash = messageHash(msg.From, nonce, msg.To, msg.Data)
	}
	if _, known := rt.state.receipts[hash]; known {
		rt.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrKnownTransaction, hash.Hex())
	}

	working := rt.state.fork()
	tx := &txContext{rt: rt, state: working}
	_, execErr := tx.run(msg.From, msg.To, msg.Data)

	var revert *RevertError
	if execErr != nil {
		revert = NewRevertError(execErr)
		tx.logs = nil
		working = rt.state
	}
	working.nonces[msg.From] = nonce + 1
	working.block++
	receipt := newReceipt(hash, working.block, 0, msg.Data, false, tx.logs, revert)
	working.receipts[hash] = receipt
	rt.state = working
	observers, seq := rt.observers, rt.nextSeq()
	rt.mu.Unlock()

	if revert != nil {
		rt.metrics.Transactions(metrics.CallStatusReverted).Inc()
		rt.logger.Debug("transaction reverted", "tx_hash", hash, "from", msg.From, "to", msg.To, "reason", revert.Reason)
	} else {
		rt.metrics.Transactions(metrics.CallStatusOK).Inc()
		rt.logger.Debug("transaction applied", "tx_hash", hash, "from", msg.From, "to", msg.To, "logs", len(receipt.Logs))
	}
	rt.deliver(seq, observers, receipt)
	return receipt, nil
}

// Transact is Apply with the sender's current nonce.
func (rt *Runtime) Transact(ctx context.Context, from ethCommon.Address, to ethCommon.Address, data []byte) (*Receipt, error) {
	return rt.Apply(ctx, Message{From: from, To: to, Data: data})
}

// Snapshot records the current state. A snapshot can be reverted to any
// number of times.
func (rt *Runtime) Snapshot() uuid.UUID {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := uuid.New()
	rt.snapshots[id] = rt.state.copy()
	return id
}

// Revert restores the state recorded by Snapshot, receipts included.
func (rt *Runtime) Revert(id uuid.UUID) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	snap, ok := rt.snapshots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSnapshot, id)
	}
	rt.state = snap.copy()
	return nil
}

// nextSeq numbers a mined receipt. Callers hold mu.
func (rt *Runtime) nextSeq() uint64 {
	seq := rt.mined
	rt.mined++
	return seq
}

// deliver waits until every receipt numbered before seq has been handed to
// the observers, then hands over r.
func (rt *Runtime) deliver(seq uint64, observers []func(*Receipt), r *Receipt) {
	rt.deliverMu.Lock()
	for rt.delivered != seq {
		rt.deliverCv.Wait()
	}
	rt.deliverMu.Unlock()

	for _, fn := range observers {
		fn(r)
	}

	rt.deliverMu.Lock()
	rt.delivered++
	rt.deliverCv.Broadcast()
	rt.deliverMu.Unlock()
}

func messageHash(from ethCommon.Address, nonce uint64, to ethCommon.Address, data []byte) ethCommon.Hash {
	enc, err := rlp.EncodeToBytes([]interface{}{from, nonce, to, data})
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// txContext is one transaction's execution against a working state.
type txContext struct {
	rt    *Runtime
	state *worldState
	logs  []*types.Log

	// failed is the first error of any call in the tree. Once set, the
	// transaction reverts even if a contract swallowed the error.
	failed error
}

func (tx *txContext) run(from, to ethCommon.Address, data []byte) ([]byte, error) {
	out, err := tx.execute(from, to, data, 0)
	if err == nil && tx.failed != nil {
		err = tx.failed
	}
	return out, err
}

func (tx *txContext) execute(caller, to ethCommon.Address, input []byte, depth int) ([]byte, error) {
	c, ok := tx.state.contracts[to]
	if !ok {
		// Plain accounts accept any call and do nothing.
		return nil, nil
	}
	if depth > maxCallDepth {
		return nil, common.Revert(common.ErrLimitExceeded, "call depth exceeded")
	}
	if len(input) < 4 {
		return nil, common.Revert(common.ErrInvalidArgument, "function selector was not recognized")
	}
	method, err := c.ABI().MethodById(input[:4])
	if err != nil {
		return nil, common.Revert(common.ErrInvalidArgument, "function selector was not recognized")
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, common.Revertf(common.ErrInvalidArgument, "invalid calldata for %s: %v", method.Name, err)
	}

	timer := tx.rt.metrics.CallLatencies(c.Kind(), method.Name)
	outs, err := invoke(c, &frame{tx: tx, caller: caller, self: to, depth: depth}, method.Name, args)
	timer.ObserveDuration()
	if err != nil {
		tx.rt.metrics.Calls(c.Kind(), method.Name, metrics.CallStatusReverted).Inc()
		return nil, err
	}
	tx.rt.metrics.Calls(c.Kind(), method.Name, metrics.CallStatusOK).Inc()
	return method.Outputs.Pack(outs...)
}

func invoke(c Contract, env Env, method string, args []interface{}) (outs []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s.%s panicked: %v", c.Kind(), method, r)
		}
	}()
	return c.Invoke(env, method, args)
}
