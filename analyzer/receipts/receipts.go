// Package receipts implements the analyzer that indexes mined receipts, their
// decoded events and the token balances they touch.
package receipts

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/tokenvault/tokenvault/analyzer"
	"github.com/tokenvault/tokenvault/analyzer/queries"
	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/contracts"
	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/metrics"
	"github.com/tokenvault/tokenvault/storage"
	"github.com/tokenvault/tokenvault/token"
)

const (
	analyzerName = "receipts"

	defaultQueueSize = 1024
	processTimeout   = 10 * time.Second
	maxAttempts      = 5
	retryInitial     = 100 * time.Millisecond
	retryMaximum     = 5 * time.Second
)

// Chain is the part of the devnet runtime that the analyzer reads from.
type Chain interface {
	OnReceipt(fn func(*chain.Receipt))
	Code(addr ethCommon.Address) []byte
	Call(ctx context.Context, from ethCommon.Address, to ethCommon.Address, data []byte) ([]byte, error)
}

var _ Chain = (*chain.Runtime)(nil)

// Analyzer indexes every receipt mined by a Chain into target storage.
type Analyzer struct {
	chain  Chain
	target storage.TargetStorage

	queue   chan *chain.Receipt
	stopped chan struct{}

	// closed is set once Start stops taking receipts. Sends to queue happen
	// under a read lock so none can land after the final drain.
	mu     sync.RWMutex
	closed bool

	logger  *log.Logger
	metrics metrics.AnalysisMetrics
}

var _ analyzer.Analyzer = (*Analyzer)(nil)

// NewAnalyzer returns an analyzer subscribed to c's receipts. Receipts are
// queued until Start is called.
func NewAnalyzer(c Chain, target storage.TargetStorage, logger *log.Logger) *Analyzer {
	a := &Analyzer{
		chain:   c,
		target:  target,
		queue:   make(chan *chain.Receipt, defaultQueueSize),
		stopped: make(chan struct{}),
		logger:  logger.WithModule(analyzerName),
		metrics: metrics.NewDefaultAnalysisMetrics(analyzerName),
	}
	c.OnReceipt(a.enqueue)
	return a
}

func (a *Analyzer) Name() string {
	return analyzerName
}

func (a *Analyzer) enqueue(r *chain.Receipt) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.closed {
		select {
		case a.queue <- r:
			a.metrics.QueueLength(analyzerName).Inc()
			return
		case <-a.stopped:
		}
	}
	a.logger.Warn("analyzer stopped, receipt not indexed", "tx_hash", r.TxHash)
}

// Start indexes queued receipts until ctx is done. Receipts still queued at
// that point are indexed before Start returns. Cancelling ctx does not
// interrupt the receipt being indexed.
func (a *Analyzer) Start(ctx context.Context) error {
	a.logger.Info("starting analyzer")
	processCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			// Unblock senders waiting on a full queue before taking the lock.
			close(a.stopped)
			a.mu.Lock()
			a.closed = true
			a.mu.Unlock()
			a.drain(processCtx)
			a.logger.Info("shutting down")
			return nil
		case r := <-a.queue:
			a.metrics.QueueLength(analyzerName).Dec()
			a.processWithRetries(processCtx, r)
		}
	}
}

func (a *Analyzer) drain(ctx context.Context) {
	for {
		select {
		case r := <-a.queue:
			a.metrics.QueueLength(analyzerName).Dec()
			a.processWithRetries(ctx, r)
		default:
			return
		}
	}
}

func (a *Analyzer) processWithRetries(ctx context.Context, r *chain.Receipt) {
	backoff, err := common.NewBackoff(retryInitial, retryMaximum)
	if err != nil {
		// Only reachable with bad constants.
		panic(err)
	}
	for attempt := 1; ; attempt++ {
		err = a.process(ctx, r)
		if err == nil {
			a.metrics.ProcessedItems(analyzerName, "success").Inc()
			return
		}
		a.logger.Error("failed to index receipt",
			"tx_hash", r.TxHash,
			"attempt", attempt,
			"err", err,
		)
		if attempt == maxAttempts || backoff.Wait(ctx) != nil {
			a.metrics.ProcessedItems(analyzerName, "failure").Inc()
			return
		}
	}
}

func (a *Analyzer) process(ctx context.Context, r *chain.Receipt) error {
	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()
	timer := a.metrics.ProcessLatencies(analyzerName)
	defer timer.ObserveDuration()

	batch := &storage.QueryBatch{}
	if err := a.prepareBatch(ctx, batch, r); err != nil {
		return err
	}
	return a.target.SendBatch(ctx, batch)
}

func (a *Analyzer) prepareBatch(ctx context.Context, batch *storage.QueryBatch, r *chain.Receipt) error {
	var contractAddress, revertReason *string
	if r.ContractAddress != (ethCommon.Address{}) {
		s := r.ContractAddress.Hex()
		contractAddress = &s
	}
	if r.Revert != nil {
		s := storage.SanitizeString(r.Revert.Reason)
		revertReason = &s
	}
	block := r.BlockNumber.Int64()
	batch.Queue(queries.ReceiptInsert,
		r.TxHash.Hex(),
		block,
		int16(r.Status),
		int64(r.GasUsed),
		contractAddress,
		revertReason,
	)

	// Token address to accounts whose balance changed.
	touched := map[ethCommon.Address]map[ethCommon.Address]struct{}{}
	for _, l := range r.Logs {
		kind := string(a.chain.Code(l.Address))
		contractABI, ok := contracts.ByName(kind)
		if !ok {
			a.logger.Warn("log emitted by unknown contract", "tx_hash", r.TxHash, "contract", l.Address, "kind", kind)
			continue
		}
		event, err := contracts.DecodeLog(contractABI, l)
		if err != nil {
			a.logger.Warn("failed to decode log", "tx_hash", r.TxHash, "log_index", l.Index, "err", err)
			continue
		}
		args, err := json.Marshal(event.Args)
		if err != nil {
			return fmt.Errorf("marshal %s args: %w", event.Name, err)
		}
		batch.Queue(queries.EventInsert,
			r.TxHash.Hex(),
			int64(l.Index),
			block,
			l.Address.Hex(),
			kind,
			event.Name,
			args,
		)

		if kind == token.Kind && event.Name == "Transfer" {
			accounts, ok := touched[l.Address]
			if !ok {
				accounts = map[ethCommon.Address]struct{}{}
				touched[l.Address] = accounts
			}
			for _, name := range []string{"from", "to"} {
				if account, ok := event.Values[name].(ethCommon.Address); ok && account != (ethCommon.Address{}) {
					accounts[account] = struct{}{}
				}
			}
		}
	}

	for _, tokenAddr := range sortedAddresses(touched) {
		for _, account := range sortedAddresses(touched[tokenAddr]) {
			balance, err := a.balanceOf(ctx, tokenAddr, account)
			if err != nil {
				return err
			}
			batch.Queue(queries.TokenBalanceUpsert,
				tokenAddr.Hex(),
				account.Hex(),
				common.BigIntFrom(balance),
			)
		}
	}
	return nil
}

func (a *Analyzer) balanceOf(ctx context.Context, tokenAddr ethCommon.Address, account ethCommon.Address) (*big.Int, error) {
	data, err := contracts.Token.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := a.chain.Call(ctx, ethCommon.Address{}, tokenAddr, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s on %s: %w", account, tokenAddr, err)
	}
	vals, err := contracts.Token.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}

func sortedAddresses[V any](m map[ethCommon.Address]V) []ethCommon.Address {
	addrs := make([]ethCommon.Address, 0, len(m))
	for addr := range m {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})
	return addrs
}
