package simulated

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// CallArgs is the call object of eth_call and eth_estimateGas. Clients
// send calldata as either "input" or "data".
type CallArgs struct {
	From     *ethCommon.Address `json:"from"`
	To       *ethCommon.Address `json:"to"`
	Gas      *hexutil.Uint64    `json:"gas"`
	GasPrice *hexutil.Big       `json:"gasPrice"`
	Value    *hexutil.Big       `json:"value"`
	Data     *hexutil.Bytes     `json:"data"`
	Input    *hexutil.Bytes     `json:"input"`
}

func (args *CallArgs) callMsg() (ethereum.CallMsg, error) {
	var msg ethereum.CallMsg
	if args.From != nil {
		msg.From = *args.From
	}
	msg.To = args.To
	if args.Value != nil {
		msg.Value = args.Value.ToInt()
	}
	if args.Data != nil && args.Input != nil && !bytes.Equal(*args.Data, *args.Input) {
		return msg, errors.New(`both "data" and "input" are set and not equal`)
	}
	switch {
	case args.Input != nil:
		msg.Data = *args.Input
	case args.Data != nil:
		msg.Data = *args.Data
	}
	return msg, nil
}

// EthAPI is the "eth" JSON-RPC namespace.
type EthAPI struct {
	b *Backend
}

func (api *EthAPI) ChainId(ctx context.Context) (*hexutil.Big, error) {
	id, err := api.b.ChainID(ctx)
	return (*hexutil.Big)(id), err
}

func (api *EthAPI) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	n, err := api.b.BlockNumber(ctx)
	return hexutil.Uint64(n), err
}

func (api *EthAPI) GasPrice(ctx context.Context) (*hexutil.Big, error) {
	p, err := api.b.SuggestGasPrice(ctx)
	return (*hexutil.Big)(p), err
}

func (api *EthAPI) MaxPriorityFeePerGas(ctx context.Context) (*hexutil.Big, error) {
	p, err := api.b.SuggestGasTipCap(ctx)
	return (*hexutil.Big)(p), err
}

func (api *EthAPI) GetTransactionCount(ctx context.Context, address ethCommon.Address, blockNrOrHash *rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	n, err := api.b.PendingNonceAt(ctx, address)
	return hexutil.Uint64(n), err
}

func (api *EthAPI) GetCode(ctx context.Context, address ethCommon.Address, blockNrOrHash *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	code, err := api.b.PendingCodeAt(ctx, address)
	return code, err
}

func (api *EthAPI) Call(ctx context.Context, args CallArgs, blockNrOrHash *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	msg, err := args.callMsg()
	if err != nil {
		return nil, err
	}
	return api.b.CallContract(ctx, msg, nil)
}

func (api *EthAPI) EstimateGas(ctx context.Context, args CallArgs, blockNrOrHash *rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	msg, err := args.callMsg()
	if err != nil {
		return 0, err
	}
	gas, err := api.b.EstimateGas(ctx, msg)
	return hexutil.Uint64(gas), err
}

func (api *EthAPI) SendRawTransaction(ctx context.Context, input hexutil.Bytes) (ethCommon.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return ethCommon.Hash{}, fmt.Errorf("invalid raw transaction: %w", err)
	}
	if err := api.b.SendTransaction(ctx, tx); err != nil {
		return ethCommon.Hash{}, err
	}
	return tx.Hash(), nil
}

// GetTransactionReceipt returns null for unknown hashes.
func (api *EthAPI) GetTransactionReceipt(ctx context.Context, hash ethCommon.Hash) (*types.Receipt, error) {
	r, err := api.b.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return r, err
}

// NewRPCServer serves the backend's "eth" namespace. The server is an
// http.Handler and can also be dialled in-process with rpc.DialInProc.
func NewRPCServer(b *Backend) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", &EthAPI{b: b}); err != nil {
		return nil, err
	}
	return srv, nil
}
