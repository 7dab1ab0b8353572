package client

import (
	"encoding/json"

	"github.com/tokenvault/tokenvault/common"
)

// Status is the progress of the receipts analyzer.
type Status struct {
	// LatestBlock is the highest indexed block, or nil if nothing was indexed.
	LatestBlock     *uint64 `json:"latest_block"`
	IndexedReceipts uint64  `json:"indexed_receipts"`
}

// EventFilter narrows down Events. Nil fields match everything.
type EventFilter struct {
	Contract *string
	Event    *string
	TxHash   *string
}

// Event is an indexed contract event.
type Event struct {
	TxHash   string          `json:"tx_hash"`
	LogIndex uint32          `json:"log_index"`
	Block    uint64          `json:"block"`
	Contract string          `json:"contract"`
	Kind     string          `json:"kind"`
	Event    string          `json:"event"`
	Args     json.RawMessage `json:"args"`
}

// EventList is a page of events.
type EventList struct {
	Events              []Event `json:"events"`
	TotalCount          uint64  `json:"total_count"`
	IsTotalCountClipped bool    `json:"is_total_count_clipped"`
}

// TokenHolder is an account with a non-zero indexed token balance.
type TokenHolder struct {
	Account string        `json:"account"`
	Balance common.BigInt `json:"balance"`
}

// TokenHolderList is a page of token holders, richest first.
type TokenHolderList struct {
	Holders             []TokenHolder `json:"holders"`
	TotalCount          uint64        `json:"total_count"`
	IsTotalCountClipped bool          `json:"is_total_count_clipped"`
}
