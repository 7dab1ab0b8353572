package chain

import (
	"encoding/binary"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	txGas             uint64 = 21000
	txDataZeroGas     uint64 = 4
	txDataNonZeroGas  uint64 = 16
	logGas            uint64 = 375
	logTopicGas       uint64 = 375
	logDataGas        uint64 = 8
	contractCreateGas uint64 = 32000
)

// IntrinsicGas is the gas charged for `data` before any execution.
func IntrinsicGas(data []byte, create bool) uint64 {
	gas := txGas
	if create {
		gas += contractCreateGas
	}
	for _, b := range data {
		if b == 0 {
			gas += txDataZeroGas
		} else {
			gas += txDataNonZeroGas
		}
	}
	return gas
}

// GasUsed is the gas charged for a transaction carrying data that emitted logs.
func GasUsed(data []byte, create bool, logs []*types.Log) uint64 {
	gas := IntrinsicGas(data, create)
	for _, l := range logs {
		gas += logGas + uint64(len(l.Topics))*logTopicGas + uint64(len(l.Data))*logDataGas
	}
	return gas
}

// Receipt is a mined transaction's outcome.
type Receipt struct {
	*types.Receipt

	// Revert is set when Status is types.ReceiptStatusFailed.
	Revert *RevertError
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

func blockHash(number uint64) ethCommon.Hash {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], number)
	return crypto.Keccak256Hash([]byte("tokenvault-block"), b[:])
}

func newReceipt(txHash ethCommon.Hash, block uint64, logIndex uint, data []byte, create bool, logs []*types.Log, revert *RevertError) *Receipt {
	if logs == nil {
		logs = []*types.Log{}
	}
	hash := blockHash(block)
	for i, l := range logs {
		l.BlockNumber = block
		l.BlockHash = hash
		l.TxHash = txHash
		l.TxIndex = 0
		l.Index = logIndex + uint(i)
	}
	status := types.ReceiptStatusSuccessful
	if revert != nil {
		status = types.ReceiptStatusFailed
	}
	gas := GasUsed(data, create, logs)
	r := &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            status,
		CumulativeGasUsed: gas,
		Logs:              logs,
		TxHash:            txHash,
		GasUsed:           gas,
		EffectiveGasPrice: big.NewInt(0),
		BlockHash:         hash,
		BlockNumber:       new(big.Int).SetUint64(block),
		TransactionIndex:  0,
	}
	for _, l := range logs {
		r.Bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			r.Bloom.Add(topic.Bytes())
		}
	}
	return &Receipt{Receipt: r, Revert: revert}
}
