package receipts_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tokenvault/tokenvault/analyzer/receipts"
	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/contracts"
	"github.com/tokenvault/tokenvault/deploy"
	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/storage"
	"github.com/tokenvault/tokenvault/storage/postgres/testutil"
	"github.com/tokenvault/tokenvault/token"
)

var (
	owner = ethCommon.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	alice = ethCommon.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = ethCommon.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

const testsTimeout = 10 * time.Second

// recordingStorage is a target storage that keeps every batch it is sent.
type recordingStorage struct {
	mu       sync.Mutex
	batches  []*storage.QueryBatch
	calls    int
	failures int
}

var _ storage.TargetStorage = (*recordingStorage)(nil)

func (s *recordingStorage) SendBatch(ctx context.Context, batch *storage.QueryBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingStorage) Query(ctx context.Context, sql string, args ...interface{}) (storage.QueryResults, error) {
	return nil, errors.New("not supported")
}

func (s *recordingStorage) QueryRow(ctx context.Context, sql string, args ...interface{}) storage.QueryResult {
	return nil
}

func (s *recordingStorage) Begin(ctx context.Context) (storage.Tx, error) {
	return nil, errors.New("not supported")
}

func (s *recordingStorage) Close()                         {}
func (s *recordingStorage) Name() string                   { return "recording" }
func (s *recordingStorage) Wipe(ctx context.Context) error { return nil }

func (s *recordingStorage) snapshot() ([]*storage.QueryBatch, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*storage.QueryBatch(nil), s.batches...), s.calls
}

// batchFor returns the batch that indexed the receipt of txHash.
func (s *recordingStorage) batchFor(txHash ethCommon.Hash) *storage.QueryBatch {
	batches, _ := s.snapshot()
	for _, b := range batches {
		if b.Len() > 0 && b.Queries()[0].Args[0] == txHash.Hex() {
			return b
		}
	}
	return nil
}

type env struct {
	rt       *chain.Runtime
	d        *deploy.Deployment
	analyzer *receipts.Analyzer
}

func newEnv(t *testing.T, target storage.TargetStorage) *env {
	rt := chain.NewRuntime(big.NewInt(31337), log.NewNopLogger())
	deploy.Register(rt)
	a := receipts.NewAnalyzer(rt, target, log.NewNopLogger())
	d, err := deploy.Deploy(context.Background(), rt, owner)
	require.NoError(t, err)
	return &env{rt: rt, d: d, analyzer: a}
}

func (e *env) transfer(t *testing.T, from, to ethCommon.Address, amount *big.Int) *chain.Receipt {
	data, err := contracts.Token.Pack("transfer", to, amount)
	require.NoError(t, err)
	receipt, err := e.rt.Transact(context.Background(), from, e.d.Token, data)
	require.NoError(t, err)
	return receipt
}

func (e *env) start(t *testing.T) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.analyzer.Start(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestIndexesTransfer(t *testing.T) {
	target := &recordingStorage{}
	e := newEnv(t, target)
	e.start(t)

	receipt := e.transfer(t, owner, alice, common.Ether(10))
	require.True(t, receipt.Succeeded())

	var batch *storage.QueryBatch
	require.Eventually(t, func() bool {
		batch = target.batchFor(receipt.TxHash)
		return batch != nil
	}, testsTimeout, 10*time.Millisecond)

	// Receipt, Transfer event, then balances of alice and owner in address order.
	queries := batch.Queries()
	require.Len(t, queries, 4)
	require.Equal(t, int16(1), queries[0].Args[2])
	require.Nil(t, queries[0].Args[5])

	require.Equal(t, e.d.Token.Hex(), queries[1].Args[3])
	require.Equal(t, "Token", queries[1].Args[4])
	require.Equal(t, "Transfer", queries[1].Args[5])
	require.JSONEq(t, `[
		{"name":"from","evm_type":"address","value":"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"},
		{"name":"to","evm_type":"address","value":"0x70997970c51812dc3a010c7d01b50e0d17dc79c8"},
		{"name":"value","evm_type":"uint256","value":"10000000000000000000"}
	]`, string(queries[1].Args[6].([]byte)))

	require.Equal(t, alice.Hex(), queries[2].Args[1])
	require.Equal(t, common.BigIntFrom(common.Ether(10)), queries[2].Args[2])
	require.Equal(t, owner.Hex(), queries[3].Args[1])
}

func TestIndexesRevertedReceipt(t *testing.T) {
	target := &recordingStorage{}
	e := newEnv(t, target)
	e.start(t)

	receipt := e.transfer(t, bob, alice, common.Ether(1))
	require.False(t, receipt.Succeeded())

	var batch *storage.QueryBatch
	require.Eventually(t, func() bool {
		batch = target.batchFor(receipt.TxHash)
		return batch != nil
	}, testsTimeout, 10*time.Millisecond)

	require.Equal(t, 1, batch.Len())
	args := batch.Queries()[0].Args
	require.Equal(t, int16(0), args[2])
	reason, ok := args[5].(*string)
	require.True(t, ok)
	require.Equal(t, "ERC20: transfer amount exceeds balance", *reason)
}

func TestIndexesDeployments(t *testing.T) {
	target := &recordingStorage{}
	e := newEnv(t, target)
	e.start(t)

	// Vault creation, token creation and setToken.
	require.Eventually(t, func() bool {
		batches, _ := target.snapshot()
		return len(batches) == 3
	}, testsTimeout, 10*time.Millisecond)

	batches, _ := target.snapshot()
	created := map[string]bool{}
	for _, b := range batches {
		if addr, ok := b.Queries()[0].Args[4].(*string); ok && addr != nil {
			created[*addr] = true
		}
	}
	require.Equal(t, map[string]bool{e.d.Vault.Hex(): true, e.d.Token.Hex(): true}, created)
}

func TestRetriesFailedBatches(t *testing.T) {
	target := &recordingStorage{failures: 2}
	rt := chain.NewRuntime(big.NewInt(31337), log.NewNopLogger())
	deploy.Register(rt)
	a := receipts.NewAnalyzer(rt, target, log.NewNopLogger())
	_, _, err := rt.Deploy(context.Background(), owner, token.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Start(ctx) }()

	require.Eventually(t, func() bool {
		batches, calls := target.snapshot()
		return len(batches) == 1 && calls == 3
	}, testsTimeout, 10*time.Millisecond)
}

func TestDrainsQueueOnShutdown(t *testing.T) {
	target := &recordingStorage{}
	e := newEnv(t, target)
	e.transfer(t, owner, alice, common.Ether(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.analyzer.Start(ctx))

	batches, _ := target.snapshot()
	require.Len(t, batches, 4)

	// Receipts mined after shutdown are dropped without blocking the runtime.
	receipt := e.transfer(t, owner, alice, common.Ether(1))
	require.True(t, receipt.Succeeded())
	batches, _ = target.snapshot()
	require.Len(t, batches, 4)
}

func TestIndexIntoPostgres(t *testing.T) {
	testutil.SkipIfShort(t)
	client := testutil.NewMigratedClient(t)

	e := newEnv(t, client)
	cancel, done := e.start(t)
	e.transfer(t, owner, alice, common.Ether(10))
	e.transfer(t, alice, bob, common.Ether(4))
	e.transfer(t, bob, alice, common.Ether(100))
	cancel()
	require.NoError(t, <-done)

	ctx := context.Background()
	var balance common.BigInt
	require.NoError(t, client.QueryRow(ctx, `
		SELECT balance FROM chain.token_balances WHERE token = $1 AND account = $2`,
		e.d.Token.Hex(), alice.Hex(),
	).Scan(&balance))
	require.Equal(t, common.Ether(6).String(), balance.String())

	var receiptsCount, revertedCount, transfersCount int
	require.NoError(t, client.QueryRow(ctx, `SELECT COUNT(*) FROM chain.receipts`).Scan(&receiptsCount))
	require.NoError(t, client.QueryRow(ctx, `SELECT COUNT(*) FROM chain.receipts WHERE status = 0`).Scan(&revertedCount))
	require.NoError(t, client.QueryRow(ctx, `
		SELECT COUNT(*) FROM chain.events WHERE contract = $1 AND event = 'Transfer'`,
		e.d.Token.Hex(),
	).Scan(&transfersCount))
	require.Equal(t, 6, receiptsCount)
	require.Equal(t, 1, revertedCount)
	require.Equal(t, 3, transfersCount) // Mint and two transfers.
}
