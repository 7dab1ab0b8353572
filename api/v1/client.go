package v1

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	apiCommon "github.com/tokenvault/tokenvault/api/common"
	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/contracts"
	"github.com/tokenvault/tokenvault/deploy"
	"github.com/tokenvault/tokenvault/log"
	storage "github.com/tokenvault/tokenvault/storage/client"
	"github.com/tokenvault/tokenvault/token"
)

// Chain is the devnet state the API reads.
type Chain interface {
	ChainID() *big.Int
	BlockNumber() uint64
	Code(addr ethCommon.Address) []byte
	Call(ctx context.Context, from ethCommon.Address, to ethCommon.Address, data []byte) ([]byte, error)
	Receipt(hash ethCommon.Hash) (*chain.Receipt, bool)
}

var _ Chain = (*chain.Runtime)(nil)

// chainClient answers API requests from the devnet state and, for indexed
// data, from storage.
type chainClient struct {
	chain      Chain
	deployment *deploy.Deployment
	storage    *storage.StorageClient
	logger     *log.Logger
}

func newChainClient(c Chain, d *deploy.Deployment, s *storage.StorageClient, l *log.Logger) *chainClient {
	return &chainClient{c, d, s, l}
}

// validateAddress parses a hex address url parameter.
func validateAddress(param string) (ethCommon.Address, error) {
	if !ethCommon.IsHexAddress(param) {
		return ethCommon.Address{}, fmt.Errorf("%w: bad address %q", apiCommon.ErrBadRequest, param)
	}
	return ethCommon.HexToAddress(param), nil
}

// validateHash parses a 0x-prefixed 32-byte hex url parameter.
func validateHash(param string) (ethCommon.Hash, error) {
	b, err := hexutil.Decode(param)
	if err != nil || len(b) != ethCommon.HashLength {
		return ethCommon.Hash{}, fmt.Errorf("%w: bad hash %q", apiCommon.ErrBadRequest, param)
	}
	return ethCommon.BytesToHash(b), nil
}

// optionalParam returns a pointer to a query parameter, or nil if it is absent.
func optionalParam(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}

// call runs a view method of a contract and returns its unpacked outputs.
func (c *chainClient) call(ctx context.Context, contractABI *abi.ABI, to ethCommon.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.chain.Call(ctx, ethCommon.Address{}, to, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return contractABI.Unpack(method, out)
}

// requireToken fails with ErrNotFound unless a token is deployed at addr.
func (c *chainClient) requireToken(addr ethCommon.Address) error {
	if string(c.chain.Code(addr)) != token.Kind {
		return fmt.Errorf("%w: no token at %s", apiCommon.ErrNotFound, addr)
	}
	return nil
}

// Status returns the chain head and the deployed addresses.
func (c *chainClient) Status(ctx context.Context) (*Status, error) {
	s := Status{
		ChainID:     common.BigIntFrom(c.chain.ChainID()),
		BlockNumber: c.chain.BlockNumber(),
		Deployer:    c.deployment.Deployer.Hex(),
		Token:       c.deployment.Token.Hex(),
		Vault:       c.deployment.Vault.Hex(),
	}
	if c.storage != nil {
		indexer, err := c.storage.Status(ctx)
		if err != nil {
			return nil, err
		}
		s.Indexer = indexer
	}
	return &s, nil
}

// Vault returns the vault configuration and its token balance.
func (c *chainClient) Vault(ctx context.Context) (*Vault, error) {
	vaultAddr := c.deployment.Vault
	v := Vault{Address: vaultAddr.Hex()}

	out, err := c.call(ctx, contracts.Vault, vaultAddr, "token")
	if err != nil {
		return nil, err
	}
	tokenAddr := out[0].(ethCommon.Address)
	v.Token = tokenAddr.Hex()

	if out, err = c.call(ctx, contracts.Vault, vaultAddr, "withdrawEnable"); err != nil {
		return nil, err
	}
	v.WithdrawEnabled = out[0].(bool)

	if out, err = c.call(ctx, contracts.Vault, vaultAddr, "maxWithdrawAmount"); err != nil {
		return nil, err
	}
	v.MaxWithdrawAmount = common.BigIntFrom(out[0].(*big.Int))

	if tokenAddr != (ethCommon.Address{}) {
		if out, err = c.call(ctx, contracts.Token, tokenAddr, "balanceOf", vaultAddr); err != nil {
			return nil, err
		}
		v.Balance = common.BigIntFrom(out[0].(*big.Int))
	}
	return &v, nil
}

// TokenBalance returns the balance of an account in a token.
func (c *chainClient) TokenBalance(ctx context.Context, r *http.Request) (*Balance, error) {
	tokenAddr, err := validateAddress(chi.URLParam(r, "address"))
	if err != nil {
		return nil, err
	}
	account, err := validateAddress(chi.URLParam(r, "account"))
	if err != nil {
		return nil, err
	}
	if err = c.requireToken(tokenAddr); err != nil {
		return nil, err
	}

	out, err := c.call(ctx, contracts.Token, tokenAddr, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	balance := out[0].(*big.Int)
	if out, err = c.call(ctx, contracts.Token, tokenAddr, "decimals"); err != nil {
		return nil, err
	}
	decimals := out[0].(uint8)
	if out, err = c.call(ctx, contracts.Token, tokenAddr, "symbol"); err != nil {
		return nil, err
	}

	return &Balance{
		Token:     tokenAddr.Hex(),
		Account:   account.Hex(),
		Balance:   common.BigIntFrom(balance),
		Formatted: common.FormatUnits(balance, decimals),
		Symbol:    out[0].(string),
	}, nil
}

// RoleMembership reports whether an account holds a vault role.
func (c *chainClient) RoleMembership(ctx context.Context, r *http.Request) (*RoleMembership, error) {
	role := common.ParseRole(chi.URLParam(r, "role"))
	account, err := validateAddress(chi.URLParam(r, "account"))
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, contracts.Vault, c.deployment.Vault, "hasRole", [32]byte(role), account)
	if err != nil {
		return nil, err
	}
	return &RoleMembership{
		Role:    role.Hex(),
		Account: account.Hex(),
		HasRole: out[0].(bool),
	}, nil
}

// Receipt returns a mined receipt with its decoded events.
func (c *chainClient) Receipt(ctx context.Context, r *http.Request) (*Receipt, error) {
	hash, err := validateHash(chi.URLParam(r, "tx_hash"))
	if err != nil {
		return nil, err
	}
	receipt, ok := c.chain.Receipt(hash)
	if !ok {
		return nil, fmt.Errorf("%w: no receipt for %s", apiCommon.ErrNotFound, hash)
	}

	res := Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Status:      receipt.Status,
		GasUsed:     receipt.GasUsed,
		Events:      []ReceiptEvent{},
	}
	if receipt.ContractAddress != (ethCommon.Address{}) {
		addr := receipt.ContractAddress.Hex()
		res.ContractAddress = &addr
	}
	if receipt.Revert != nil {
		reason := receipt.Revert.Reason
		res.RevertReason = &reason
	}
	for _, l := range receipt.Logs {
		ev := ReceiptEvent{
			LogIndex: l.Index,
			Contract: l.Address.Hex(),
			Kind:     string(c.chain.Code(l.Address)),
		}
		var decoded *contracts.Event
		if contractABI, ok := contracts.ByName(ev.Kind); ok {
			if decoded, err = contracts.DecodeLog(contractABI, l); err != nil {
				c.logger.Warn("failed to decode log", "tx_hash", hash, "log_index", l.Index, "err", err)
			}
		}
		if decoded != nil {
			ev.Event = decoded
		} else {
			for _, topic := range l.Topics {
				ev.Topics = append(ev.Topics, topic.Hex())
			}
			ev.Data = hexutil.Encode(l.Data)
		}
		res.Events = append(res.Events, ev)
	}
	return &res, nil
}

// Events returns a page of indexed events.
func (c *chainClient) Events(ctx context.Context, r *http.Request) (*storage.EventList, error) {
	if c.storage == nil {
		return nil, apiCommon.ErrStorageDisabled
	}
	p, err := apiCommon.NewPagination(r)
	if err != nil {
		return nil, err
	}
	filter := storage.EventFilter{
		Event: optionalParam(r, "event"),
	}
	if v := optionalParam(r, "contract"); v != nil {
		addr, err := validateAddress(*v)
		if err != nil {
			return nil, err
		}
		s := addr.Hex()
		filter.Contract = &s
	}
	if v := optionalParam(r, "tx_hash"); v != nil {
		hash, err := validateHash(*v)
		if err != nil {
			return nil, err
		}
		s := hash.Hex()
		filter.TxHash = &s
	}
	return c.storage.Events(ctx, filter, p)
}

// TokenHolders returns a page of indexed holders of a token.
func (c *chainClient) TokenHolders(ctx context.Context, r *http.Request) (*storage.TokenHolderList, error) {
	if c.storage == nil {
		return nil, apiCommon.ErrStorageDisabled
	}
	tokenAddr, err := validateAddress(chi.URLParam(r, "address"))
	if err != nil {
		return nil, err
	}
	p, err := apiCommon.NewPagination(r)
	if err != nil {
		return nil, err
	}
	return c.storage.TokenHolders(ctx, tokenAddr.Hex(), p)
}
