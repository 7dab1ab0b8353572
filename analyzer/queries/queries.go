// Package queries holds the SQL statements that analyzers write with.
package queries

var (
	ReceiptInsert = `
    INSERT INTO chain.receipts (tx_hash, block, status, gas_used, contract_address, revert_reason)
      VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (tx_hash) DO NOTHING`

	EventInsert = `
    INSERT INTO chain.events (tx_hash, log_index, block, contract, kind, event, args)
      VALUES ($1, $2, $3, $4, $5, $6, $7)
    ON CONFLICT (tx_hash, log_index) DO NOTHING`

	// TokenBalanceUpsert records the balance read from the devnet right after
	// a Transfer touched the account. Receipts may be indexed out of order, so
	// absolute values are stored rather than deltas.
	TokenBalanceUpsert = `
    INSERT INTO chain.token_balances (token, account, balance)
      VALUES ($1, $2, $3)
    ON CONFLICT (token, account) DO UPDATE
      SET balance = excluded.balance`
)
