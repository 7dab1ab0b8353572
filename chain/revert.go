package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tokenvault/tokenvault/common"
)

var (
	// revertSelector is the selector of Error(string).
	revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

	revertArgs = abi.Arguments{{Type: mustNewType("string")}}
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// RevertError is a failed execution. It implements rpc.DataError so the
// revert payload reaches JSON-RPC clients the way an EVM node reports it.
type RevertError struct {
	Reason string

	data  []byte
	cause error
}

// NewRevertError wraps a contract failure. The reason is taken from a
// *common.ContractError if there is one in the chain.
func NewRevertError(cause error) *RevertError {
	var rerr *RevertError
	if errors.As(cause, &rerr) {
		return rerr
	}
	reason := cause.Error()
	var cerr *common.ContractError
	if errors.As(cause, &cerr) {
		reason = cerr.Reason
	}
	packed, err := revertArgs.Pack(reason)
	if err != nil {
		// Packing a single string cannot fail.
		panic(err)
	}
	return &RevertError{
		Reason: reason,
		data:   append(append([]byte{}, revertSelector...), packed...),
		cause:  cause,
	}
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

// Unwrap exposes the contract error, so errors.Is(err, common.ErrUnauthorized)
// works on reverts.
func (e *RevertError) Unwrap() error {
	return e.cause
}

// Data is the ABI-encoded Error(string) payload.
func (e *RevertError) Data() []byte {
	return e.data
}

// ErrorCode implements rpc.Error.
func (e *RevertError) ErrorCode() int {
	return 3
}

// ErrorData implements rpc.DataError.
func (e *RevertError) ErrorData() interface{} {
	return hexutil.Encode(e.data)
}
