// Package queries holds the SQL statements the API reads indexed data with.
package queries

import (
	"fmt"
)

func TotalCountQuery(inner string) string {
	return fmt.Sprintf(`
		WITH subquery AS (%s)
			SELECT count(*) FROM subquery`, inner)
}

const (
	Status = `
		SELECT COALESCE(MAX(block), -1), COUNT(*)
			FROM chain.receipts`

	Events = `
		SELECT tx_hash, log_index, block, contract, kind, event, args
			FROM chain.events
			WHERE ($1::text IS NULL OR contract = $1::text) AND
					($2::text IS NULL OR event = $2::text) AND
					($3::text IS NULL OR tx_hash = $3::text)
			ORDER BY block DESC, log_index DESC
			LIMIT $4::bigint
			OFFSET $5::bigint`

	TokenHolders = `
		SELECT account, balance
			FROM chain.token_balances
			WHERE token = $1::text AND balance > 0
			ORDER BY balance DESC, account
			LIMIT $2::bigint
			OFFSET $3::bigint`
)
