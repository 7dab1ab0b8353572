package client

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertError is a contract revert as seen by a JSON-RPC client.
type RevertError struct {
	// Reason is the decoded Error(string) message. Empty for reverts
	// without a reason or with a custom error.
	Reason string
	Data   []byte

	err error
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.err
}

// DecodeRevert extracts revert data from err, which is typically returned
// by CallContract or EstimateGas. It returns false if err carries no
// revert data.
func DecodeRevert(err error) (*RevertError, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	var data []byte
	switch d := dataErr.ErrorData().(type) {
	case string:
		decoded, decodeErr := hexutil.Decode(d)
		if decodeErr != nil {
			return nil, false
		}
		data = decoded
	case []byte:
		data = d
	default:
		return nil, false
	}
	rerr := &RevertError{Data: data, err: err}
	if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		rerr.Reason = reason
	}
	return rerr, true
}

// wrapRevert converts err into a *RevertError when it carries revert data.
func wrapRevert(err error) error {
	if rerr, ok := DecodeRevert(err); ok {
		return rerr
	}
	return err
}
