package postgres_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/storage"
	"github.com/tokenvault/tokenvault/storage/postgres"
	"github.com/tokenvault/tokenvault/storage/postgres/testutil"
)

func TestConnect(t *testing.T) {
	testutil.SkipIfShort(t)
	client := testutil.NewTestClient(t)
	client.Close()
}

func TestInvalidConnect(t *testing.T) {
	_, err := postgres.NewClient("an invalid connstring", log.NewNopLogger())
	require.NotNil(t, err)
}

func TestQuery(t *testing.T) {
	testutil.SkipIfShort(t)
	client := testutil.NewTestClient(t)
	defer client.Close()

	rows, err := client.Query(context.Background(), `
		SELECT * FROM ( VALUES (0),(1),(2) ) AS q;
	`)
	require.Nil(t, err)
	defer rows.Close()

	i := 0
	for rows.Next() {
		var result int
		require.Nil(t, rows.Scan(&result))
		require.Equal(t, i, result)
		i++
	}
	require.Equal(t, 3, i)
}

func TestInvalidQuery(t *testing.T) {
	testutil.SkipIfShort(t)
	client := testutil.NewTestClient(t)
	defer client.Close()

	_, err := client.Query(context.Background(), `
		an invalid query
	`)
	require.NotNil(t, err)
}

func TestQueryRow(t *testing.T) {
	testutil.SkipIfShort(t)
	client := testutil.NewTestClient(t)
	defer client.Close()

	var result int
	err := client.QueryRow(context.Background(), `
		SELECT 1+1;
	`).Scan(&result)
	require.Nil(t, err)
	require.Equal(t, 2, result)
}

func TestSendBatch(t *testing.T) {
	testutil.SkipIfShort(t)
	client := testutil.NewTestClient(t)
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Wipe(ctx))

	create := &storage.QueryBatch{}
	create.Queue(`
		CREATE TABLE holders (
			id      INTEGER PRIMARY KEY,
			account TEXT
		);
	`)
	require.Nil(t, client.SendBatch(ctx, create))

	insert := &storage.QueryBatch{}
	queueHolders := func(b *storage.QueryBatch, accounts []string, idOffset int) {
		rows := make([]string, 0, len(accounts))
		for i, account := range accounts {
			rows = append(rows, fmt.Sprintf("(%d, '%s')", i+idOffset, account))
		}
		b.Queue(fmt.Sprintf(`
			INSERT INTO holders (id, account)
			VALUES %s;
		`, strings.Join(rows, ", ")))
	}

	holders1 := []string{
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	}
	holders2 := []string{
		"0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
	}
	queueHolders(insert, holders1, 0)
	queueHolders(insert, holders2, len(holders1))
	require.Nil(t, client.SendBatch(ctx, insert))

	var wg sync.WaitGroup
	errs := make(chan error, len(holders1)+len(holders2))
	for i, account := range append(holders1, holders2...) {
		wg.Add(1)
		go func(i int, account string) {
			defer wg.Done()
			var result string
			if err := client.QueryRow(ctx, `
				SELECT account FROM holders WHERE id = $1;
			`, i).Scan(&result); err != nil {
				errs <- err
				return
			}
			if result != account {
				errs <- fmt.Errorf("holder %d: got %s, want %s", i, result, account)
			}
		}(i, account)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestInvalidSendBatchIsAtomic(t *testing.T) {
	testutil.SkipIfShort(t)
	client := testutil.NewTestClient(t)
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Wipe(ctx))

	create := &storage.QueryBatch{}
	create.Queue(`CREATE TABLE counters (n INTEGER);`)
	require.NoError(t, client.SendBatch(ctx, create))

	batch := &storage.QueryBatch{}
	batch.Queue(`INSERT INTO counters (n) VALUES ($1);`, 1)
	batch.Queue(`an invalid query`)
	err := client.SendBatch(ctx, batch)
	require.Error(t, err)
	require.Contains(t, err.Error(), "query 1")

	var count int
	require.NoError(t, client.QueryRow(ctx, `SELECT COUNT(*) FROM counters;`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestMigrateAndWipe(t *testing.T) {
	testutil.SkipIfShort(t)
	client := testutil.NewMigratedClient(t)
	ctx := context.Background()

	// A second run has nothing to do.
	require.NoError(t, postgres.Migrate(testutil.MigrationsSource(), testutil.ConnString(), log.NewNopLogger()))

	var exists bool
	require.NoError(t, client.QueryRow(ctx, `SELECT to_regclass('chain.events') IS NOT NULL;`).Scan(&exists))
	require.True(t, exists)

	require.NoError(t, client.Wipe(ctx))
	require.NoError(t, client.QueryRow(ctx, `SELECT to_regclass('chain.events') IS NOT NULL;`).Scan(&exists))
	require.False(t, exists)
}
