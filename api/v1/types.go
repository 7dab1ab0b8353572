// Types for API responses.
package v1

import (
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/contracts"
	storage "github.com/tokenvault/tokenvault/storage/client"
)

// Status is the API response for GetStatus.
type Status struct {
	ChainID     common.BigInt `json:"chain_id"`
	BlockNumber uint64        `json:"block_number"`
	Deployer    string        `json:"deployer"`
	Token       string        `json:"token"`
	Vault       string        `json:"vault"`

	// Indexer is set when indexed storage is configured.
	Indexer *storage.Status `json:"indexer,omitempty"`
}

// Vault is the API response for GetVault.
type Vault struct {
	Address           string        `json:"address"`
	Token             string        `json:"token"`
	WithdrawEnabled   bool          `json:"withdraw_enabled"`
	MaxWithdrawAmount common.BigInt `json:"max_withdraw_amount"`
	Balance           common.BigInt `json:"balance"`
}

// Balance is the API response for GetTokenBalance.
type Balance struct {
	Token     string        `json:"token"`
	Account   string        `json:"account"`
	Balance   common.BigInt `json:"balance"`
	Formatted string        `json:"formatted"`
	Symbol    string        `json:"symbol"`
}

// RoleMembership is the API response for GetRoleMembership.
type RoleMembership struct {
	Role    string `json:"role"`
	Account string `json:"account"`
	HasRole bool   `json:"has_role"`
}

// ReceiptEvent is a log of a receipt, decoded when its emitter is known.
type ReceiptEvent struct {
	LogIndex uint             `json:"log_index"`
	Contract string           `json:"contract"`
	Kind     string           `json:"kind,omitempty"`
	Event    *contracts.Event `json:"event,omitempty"`
	Topics   []string         `json:"topics,omitempty"`
	Data     string           `json:"data,omitempty"`
}

// Receipt is the API response for GetReceipt.
type Receipt struct {
	TxHash          string         `json:"tx_hash"`
	BlockNumber     uint64         `json:"block_number"`
	Status          uint64         `json:"status"`
	GasUsed         uint64         `json:"gas_used"`
	ContractAddress *string        `json:"contract_address,omitempty"`
	RevertReason    *string        `json:"revert_reason,omitempty"`
	Events          []ReceiptEvent `json:"events"`
}
