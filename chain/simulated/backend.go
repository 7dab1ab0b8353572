// Package simulated exposes a chain.Runtime through the ethclient method
// set and an Ethereum JSON-RPC service.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/log"
)

const moduleName = "simulated"

// DefaultGasPrice is returned by SuggestGasPrice. Gas is not charged.
var DefaultGasPrice = big.NewInt(1_000_000_000)

var (
	ErrContractCreation = errors.New("contract creation transactions are not supported")
	ErrIntrinsicGas     = errors.New("intrinsic gas too low")
	ErrValueTransfer    = errors.New("value transfers are not supported")
)

// Backend implements the subset of ethclient.Client used by this
// repository on top of a runtime. Signed transactions are checked against
// the runtime's chain ID and the sender's nonce.
type Backend struct {
	rt     *chain.Runtime
	signer types.Signer
	logger *log.Logger
}

func NewBackend(rt *chain.Runtime, logger *log.Logger) *Backend {
	return &Backend{
		rt:     rt,
		signer: types.LatestSignerForChainID(rt.ChainID()),
		logger: logger.WithModule(moduleName),
	}
}

func (b *Backend) Runtime() *chain.Runtime {
	return b.rt
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return b.rt.ChainID(), nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	return b.rt.BlockNumber(), nil
}

// CodeAt ignores blockNumber; only the latest state is kept.
func (b *Backend) CodeAt(ctx context.Context, contract ethCommon.Address, blockNumber *big.Int) ([]byte, error) {
	return b.rt.Code(contract), nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, contract ethCommon.Address) ([]byte, error) {
	return b.rt.Code(contract), nil
}

func (b *Backend) NonceAt(ctx context.Context, account ethCommon.Address, blockNumber *big.Int) (uint64, error) {
	return b.rt.Nonce(account), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account ethCommon.Address) (uint64, error) {
	return b.rt.Nonce(account), nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(DefaultGasPrice), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(DefaultGasPrice), nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, ErrContractCreation
	}
	if msg.Value != nil && msg.Value.Sign() != 0 {
		return nil, fmt.Errorf("%w: value %s", ErrValueTransfer, msg.Value)
	}
	return b.rt.Call(ctx, msg.From, *msg.To, msg.Data)
}

func (b *Backend) PendingCallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return b.CallContract(ctx, msg, nil)
}

// EstimateGas returns the gas the call would be charged, or the revert.
func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if msg.To == nil {
		return 0, ErrContractCreation
	}
	if msg.Value != nil && msg.Value.Sign() != 0 {
		return 0, fmt.Errorf("%w: value %s", ErrValueTransfer, msg.Value)
	}
	_, logs, err := b.rt.Simulate(ctx, msg.From, *msg.To, msg.Data)
	if err != nil {
		return 0, err
	}
	return chain.GasUsed(msg.Data, false, logs), nil
}

// SendTransaction mines tx immediately. A reverted execution is not an
// error here; it shows up in the receipt.
func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(b.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid transaction sender: %w", err)
	}
	if tx.To() == nil {
		return ErrContractCreation
	}
	if tx.Value().Sign() != 0 {
		return fmt.Errorf("%w: value %s", ErrValueTransfer, tx.Value())
	}
	if need := chain.IntrinsicGas(tx.Data(), false); tx.Gas() < need {
		return fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, tx.Gas(), need)
	}
	nonce := tx.Nonce()
	receipt, err := b.rt.Apply(ctx, chain.Message{
		From:  from,
		To:    *tx.To(),
		Data:  tx.Data(),
		Nonce: &nonce,
		Hash:  tx.Hash(),
	})
	if err != nil {
		return err
	}
	b.logger.Debug("transaction mined", "tx_hash", tx.Hash(), "from", from, "status", receipt.Status)
	return nil
}

// TransactionReceipt returns ethereum.NotFound for unknown hashes, like
// ethclient does.
func (b *Backend) TransactionReceipt(ctx context.Context, txHash ethCommon.Hash) (*types.Receipt, error) {
	r, ok := b.rt.Receipt(txHash)
	if !ok {
		return nil, ethereum.NotFound
	}
	return r.Receipt, nil
}
