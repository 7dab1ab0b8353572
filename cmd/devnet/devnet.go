// Package devnet implements the devnet sub-command.
package devnet

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tokenvault/tokenvault/cmd/common"
	"github.com/tokenvault/tokenvault/config"
	"github.com/tokenvault/tokenvault/devnet"
	"github.com/tokenvault/tokenvault/log"
)

var (
	// Path to the configuration file.
	configFile string

	devnetCmd = &cobra.Command{
		Use:   "devnet",
		Short: "Run a local chain with the token and vault deployed",
		Run:   runDevnet,
	}
)

func runDevnet(cmd *cobra.Command, args []string) {
	// Trap Ctrl+C and SIGTERM; state is saved on the way out.
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

	if cfg.Devnet == nil {
		cfg.Devnet = &config.DevnetConfig{}
		if err = cfg.Devnet.Validate(); err != nil {
			logger.Error("invalid devnet config", "err", err)
			os.Exit(1)
		}
	}
	service, err := devnet.NewService(ctx, cfg, logger)
	if err != nil {
		logger.Error("service failed to start", "err", err)
		os.Exit(1)
	}

	if err = service.Run(ctx); err != nil {
		logger.Error("devnet stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("devnet exited cleanly")
}

// Register registers the devnet sub-command.
func Register(parentCmd *cobra.Command) {
	devnetCmd.Flags().StringVar(&configFile, "config", "./config/devnet.yml", "path to the config.yml file")
	parentCmd.AddCommand(devnetCmd)
}
