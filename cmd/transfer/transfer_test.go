package transfer

import (
	"context"
	"encoding/hex"
	"math/big"
	"net/http/httptest"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/tokenvault/tokenvault/api"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/config"
	"github.com/tokenvault/tokenvault/contracts"
	"github.com/tokenvault/tokenvault/deploy"
	"github.com/tokenvault/tokenvault/devnet"
	"github.com/tokenvault/tokenvault/log"
)

var receiver = ethCommon.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

func TestRunAgainstDevnet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := devnet.NewService(ctx, &config.Config{
		Devnet: &config.DevnetConfig{ChainID: config.DefaultChainID},
		Server: &config.ServerConfig{Endpoint: "127.0.0.1:0"},
	}, log.NewNopLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	cfg := &config.Config{
		Node:    &config.NodeConfig{RPC: srv.URL + api.RPCPath},
		Account: &config.AccountConfig{PrivateKey: hex.EncodeToString(crypto.FromECDSA(deploy.DevKey(0)))},
		Transfer: &config.TransferConfig{
			Token:    s.Deployment().Token.Hex(),
			Receiver: receiver.Hex(),
		},
	}
	require.NoError(t, cfg.Validate())
	require.NoError(t, run(ctx, cfg, log.NewNopLogger()))

	data, err := contracts.Token.Pack("balanceOf", receiver)
	require.NoError(t, err)
	out, err := s.Runtime().Call(ctx, receiver, s.Deployment().Token, data)
	require.NoError(t, err)
	vals, err := contracts.Token.Unpack("balanceOf", out)
	require.NoError(t, err)
	require.Equal(t, 0, common.Ether(10).Cmp(vals[0].(*big.Int)))
}

func TestRunRequiresSections(t *testing.T) {
	err := run(context.Background(), &config.Config{}, log.NewNopLogger())
	require.ErrorContains(t, err, "node config not provided")
}

func TestLoadABI(t *testing.T) {
	tokenABI, err := loadABI("")
	require.NoError(t, err)
	require.Same(t, contracts.Token, tokenABI)

	_, err = loadABI("does/not/exist.json")
	require.Error(t, err)
}
