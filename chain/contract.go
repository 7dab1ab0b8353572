// Package chain implements an in-process contract runtime.
//
// Contracts are Go state machines addressed by EVM-style addresses and
// invoked with ABI-encoded calldata. Every transaction executes against a
// working copy of the world state which is committed only when the whole
// call tree succeeds.
package chain

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
)

// Env is what a contract sees while one of its methods executes.
type Env interface {
	// Caller is the immediate caller: the transaction sender for top-level
	// calls, the calling contract for nested ones.
	Caller() ethCommon.Address

	// Self is the address of the executing contract.
	Self() ethCommon.Address

	// Call invokes `method` on the contract at `to` with the executing
	// contract as caller. Returns the decoded outputs.
	Call(to ethCommon.Address, method string, args ...interface{}) ([]interface{}, error)

	// Emit records an event declared in the executing contract's ABI.
	// Args are given in ABI declaration order, indexed ones included.
	Emit(event string, args ...interface{}) error
}

// Contract is a deployable state machine.
type Contract interface {
	// Kind names the contract type. It must match the name the contract's
	// factory is registered under.
	Kind() string

	ABI() *abi.ABI

	// Invoke runs `method` with args decoded according to the ABI and
	// returns outputs in ABI order. A non-nil error reverts the transaction.
	Invoke(env Env, method string, args []interface{}) ([]interface{}, error)

	// Clone returns a deep copy.
	Clone() Contract

	EncodeState() ([]byte, error)
	DecodeState(b []byte) error
}

// Initializer is implemented by contracts with constructor logic.
type Initializer interface {
	Init(env Env) error
}

// Factory creates an empty contract of one kind, used when restoring
// persisted state.
type Factory func() Contract
