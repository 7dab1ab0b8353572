// Package interact runs scripted token interactions against a node.
package interact

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tokenvault/tokenvault/client"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/log"
)

const moduleName = "interact"

// TransferParams describes a single token transfer.
type TransferParams struct {
	Token    ethCommon.Address
	Receiver ethCommon.Address
	Amount   *big.Int
	GasLimit uint64

	PollInitial time.Duration
	PollMaximum time.Duration
}

// TransferResult is the outcome of a mined transfer.
type TransferResult struct {
	TxHash      ethCommon.Hash
	BlockNumber *big.Int
	Status      uint64
	GasUsed     uint64

	// Receiver balances around the transfer.
	BalanceBefore *big.Int
	BalanceAfter  *big.Int
}

// Transfer reads the receiver's balance, sends `transfer(receiver, amount)`
// signed by key, waits for it to be mined and reads the balance again.
// A mined but reverted transfer is returned together with an error that
// carries the revert reason when it can be recovered.
func Transfer(ctx context.Context, backend client.Backend, tokenABI *abi.ABI, key *ecdsa.PrivateKey, params TransferParams, logger *log.Logger) (*TransferResult, error) {
	logger = logger.WithModule(moduleName)
	token := client.NewContract(backend, params.Token, tokenABI, logger)
	from := crypto.PubkeyToAddress(key.PublicKey)

	var before *big.Int
	if err := token.Call(ctx, &before, "balanceOf", params.Receiver); err != nil {
		return nil, fmt.Errorf("receiver balance before transfer: %w", err)
	}

	tx, err := token.Transact(ctx, &client.TransactOpts{Key: key, GasLimit: params.GasLimit}, "transfer", params.Receiver, params.Amount)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	logger.Info("transfer sent", "tx_hash", tx.Hash(), "from", from, "to", params.Receiver, "amount", params.Amount)

	backoff, err := common.NewBackoff(params.PollInitial, params.PollMaximum)
	if err != nil {
		return nil, err
	}
	receipt, err := client.WaitMined(ctx, backend, tx.Hash(), backoff)
	if err != nil {
		return nil, err
	}
	result := &TransferResult{
		TxHash:        receipt.TxHash,
		BlockNumber:   receipt.BlockNumber,
		Status:        receipt.Status,
		GasUsed:       receipt.GasUsed,
		BalanceBefore: before,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := token.RevertReason(ctx, from, tx)
		if reason == nil {
			return result, fmt.Errorf("%w: %s", client.ErrTransactionFailed, receipt.TxHash.Hex())
		}
		return result, fmt.Errorf("%w: %s: %w", client.ErrTransactionFailed, receipt.TxHash.Hex(), reason)
	}

	var after *big.Int
	if err := token.Call(ctx, &after, "balanceOf", params.Receiver); err != nil {
		return result, fmt.Errorf("receiver balance after transfer: %w", err)
	}
	result.BalanceAfter = after

	logger.Info("transfer mined",
		"tx_hash", result.TxHash,
		"block", result.BlockNumber,
		"status", result.Status,
		"gas_used", result.GasUsed,
		"balance_before", result.BalanceBefore,
		"balance_after", result.BalanceAfter,
	)
	return result, nil
}
