// Package client talks to token and vault contracts over Ethereum JSON-RPC.
package client

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/log"
)

const moduleName = "client"

// ErrTransactionFailed is returned for mined transactions with a failed status.
var ErrTransactionFailed = errors.New("transaction failed")

// Backend is the part of ethclient.Client used by Contract.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account ethCommon.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash ethCommon.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ethclient DialContext %s: %w", url, err)
	}
	return c, nil
}

// Contract binds an ABI to a deployed address.
type Contract struct {
	backend Backend
	address ethCommon.Address
	abi     *abi.ABI
	logger  *log.Logger
}

func NewContract(backend Backend, address ethCommon.Address, contractABI *abi.ABI, logger *log.Logger) *Contract {
	return &Contract{
		backend: backend,
		address: address,
		abi:     contractABI,
		logger:  logger.WithModule(moduleName).With("contract", address),
	}
}

func (c *Contract) Address() ethCommon.Address {
	return c.address
}

// Call invokes `method(params...)` without a transaction. The method
// output is unpacked into `result`, so its type must match the output type
// of `method`.
func (c *Contract) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	inPacked, err := c.abi.Pack(method, params...)
	if err != nil {
		return fmt.Errorf("packing %s call data: %w", method, err)
	}
	outPacked, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: inPacked,
	}, nil)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, wrapRevert(err))
	}
	if err = c.abi.UnpackIntoInterface(result, method, outPacked); err != nil {
		return fmt.Errorf("unpacking %s output: %w", method, err)
	}
	return nil
}

// TransactOpts controls how a transaction is built. Zero fields are
// filled from the backend.
type TransactOpts struct {
	Key      *ecdsa.PrivateKey
	Nonce    *uint64
	GasLimit uint64
	GasPrice *big.Int
}

// Transact signs and submits a legacy transaction calling `method(params...)`.
// It does not wait for the transaction to be mined.
func (c *Contract) Transact(ctx context.Context, opts *TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	if opts == nil || opts.Key == nil {
		return nil, errors.New("transact: no signing key")
	}
	from := crypto.PubkeyToAddress(opts.Key.PublicKey)
	input, err := c.abi.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("packing %s call data: %w", method, err)
	}

	var nonce uint64
	if opts.Nonce != nil {
		nonce = *opts.Nonce
	} else if nonce, err = c.backend.PendingNonceAt(ctx, from); err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice := opts.GasPrice
	if gasPrice == nil {
		if gasPrice, err = c.backend.SuggestGasPrice(ctx); err != nil {
			return nil, fmt.Errorf("suggesting gas price: %w", err)
		}
	}
	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.address, Data: input})
		if err != nil {
			return nil, fmt.Errorf("estimating gas for %s: %w", method, wrapRevert(err))
		}
	}
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), opts.Key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	if err = c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("sending %s transaction: %w", method, wrapRevert(err))
	}
	c.logger.Debug("transaction sent", "method", method, "tx_hash", signed.Hash(), "from", from, "nonce", nonce)
	return signed, nil
}

// RevertReason replays a failed transaction as a call to recover its
// revert reason. Returns nil if the replay succeeds.
func (c *Contract) RevertReason(ctx context.Context, from ethCommon.Address, tx *types.Transaction) error {
	_, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From: from,
		To:   tx.To(),
		Data: tx.Data(),
	}, nil)
	if err != nil {
		return wrapRevert(err)
	}
	return nil
}

// Default receipt polling intervals.
const (
	DefaultPollInitial = 50 * time.Millisecond
	DefaultPollMaximum = 5 * time.Second
)

// WaitMined polls for the receipt of txHash until it exists or ctx ends.
func WaitMined(ctx context.Context, backend Backend, txHash ethCommon.Hash, backoff *common.Backoff) (*types.Receipt, error) {
	for {
		receipt, err := backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("fetching receipt %s: %w", txHash.Hex(), err)
		}
		if err = backoff.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for receipt %s: %w", txHash.Hex(), err)
		}
	}
}
