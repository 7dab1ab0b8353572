// Package transfer implements the transfer sub-command.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/tokenvault/tokenvault/client"
	"github.com/tokenvault/tokenvault/cmd/common"
	"github.com/tokenvault/tokenvault/config"
	"github.com/tokenvault/tokenvault/contracts"
	"github.com/tokenvault/tokenvault/interact"
	"github.com/tokenvault/tokenvault/log"
)

var (
	// Path to the configuration file.
	configFile string

	transferCmd = &cobra.Command{
		Use:   "transfer",
		Short: "Send tokens and report the receiver's balance before and after",
		Run:   runTransfer,
	}
)

func runTransfer(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize config.
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}

	// Initialize common environment.
	if err = common.Init(ctx, cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}
	logger := common.RootLogger()

	if err = run(ctx, cfg, logger); err != nil {
		logger.Error("transfer failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	switch {
	case cfg.Node == nil:
		return errors.New("node config not provided")
	case cfg.Account == nil:
		return errors.New("account config not provided")
	case cfg.Transfer == nil:
		return errors.New("transfer config not provided")
	}

	key, err := cfg.Account.Key()
	if err != nil {
		return err
	}
	amount, err := cfg.Transfer.AmountWei()
	if err != nil {
		return err
	}
	tokenABI, err := loadABI(cfg.Transfer.Artifact)
	if err != nil {
		return err
	}

	backend, err := client.Dial(ctx, cfg.Node.RPC)
	if err != nil {
		return err
	}
	defer backend.Close()

	result, err := interact.Transfer(ctx, backend, tokenABI, key, interact.TransferParams{
		Token:       ethCommon.HexToAddress(cfg.Transfer.Token),
		Receiver:    ethCommon.HexToAddress(cfg.Transfer.Receiver),
		Amount:      amount,
		GasLimit:    cfg.Transfer.GasLimit,
		PollInitial: cfg.Transfer.PollInitial,
		PollMaximum: cfg.Transfer.PollMaximum,
	}, logger)
	if err != nil {
		return err
	}
	fmt.Printf("tx %s mined in block %s, receiver balance %s -> %s\n",
		result.TxHash.Hex(), result.BlockNumber, result.BalanceBefore, result.BalanceAfter)
	return nil
}

// loadABI returns the ABI of the artifact at path, or the built-in token ABI
// when path is empty.
func loadABI(path string) (*abi.ABI, error) {
	if path == "" {
		return contracts.Token, nil
	}
	artifact, err := contracts.LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return &artifact.ABI, nil
}

// Register registers the transfer sub-command.
func Register(parentCmd *cobra.Command) {
	transferCmd.Flags().StringVar(&configFile, "config", "./config/transfer.yml", "path to the config.yml file")
	parentCmd.AddCommand(transferCmd)
}
