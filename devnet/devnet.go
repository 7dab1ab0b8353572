// Package devnet runs a local chain with the token and vault deployed,
// served over HTTP and optionally indexed into PostgreSQL.
package devnet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/tokenvault/tokenvault/analyzer/receipts"
	"github.com/tokenvault/tokenvault/api"
	v1 "github.com/tokenvault/tokenvault/api/v1"
	"github.com/tokenvault/tokenvault/cache/kvstore"
	"github.com/tokenvault/tokenvault/chain"
	"github.com/tokenvault/tokenvault/chain/simulated"
	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/config"
	"github.com/tokenvault/tokenvault/deploy"
	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/metrics"
	"github.com/tokenvault/tokenvault/storage"
	storageClient "github.com/tokenvault/tokenvault/storage/client"
	"github.com/tokenvault/tokenvault/storage/postgres"
)

const moduleName = "devnet"

// Service is the devnet: the runtime, its HTTP surface and, when storage is
// configured, the receipts analyzer.
type Service struct {
	rt         *chain.Runtime
	deployment *deploy.Deployment

	state    kvstore.KVStore       // nil when state is kept in memory
	target   storage.TargetStorage // nil when indexing is disabled
	analyzer *receipts.Analyzer

	rpc    *rpc.Server
	server *http.Server
	logger *log.Logger
}

// NewService creates the runtime, restores its state or deploys the
// contracts, and prepares the HTTP server. cfg.Devnet and cfg.Server are
// required; cfg.Storage enables indexing.
func NewService(ctx context.Context, cfg *config.Config, l *log.Logger) (*Service, error) {
	if cfg.Devnet == nil {
		return nil, fmt.Errorf("devnet config not provided")
	}
	if cfg.Server == nil {
		return nil, fmt.Errorf("server config not provided")
	}
	logger := l.WithModule(moduleName)

	key, err := deployerKey(cfg.Devnet)
	if err != nil {
		return nil, err
	}
	deployer := crypto.PubkeyToAddress(key.PublicKey)

	s := &Service{
		rt:     chain.NewRuntime(new(big.Int).SetUint64(cfg.Devnet.ChainID), l),
		logger: logger,
	}
	deploy.Register(s.rt)
	ok := false
	defer func() {
		if !ok {
			s.cleanup()
		}
	}()

	// The analyzer subscribes before anything is mined so that deployment
	// receipts are indexed too.
	var indexed *storageClient.StorageClient
	if cfg.Storage != nil {
		target, err := openStorage(ctx, cfg.Storage, l)
		if err != nil {
			return nil, err
		}
		s.target = target
		s.analyzer = receipts.NewAnalyzer(s.rt, s.target, l)
		indexed = storageClient.NewStorageClient(s.target, l)
	}

	if cfg.Devnet.StateDir != "" {
		storeMetrics := metrics.NewDefaultStorageMetrics(moduleName)
		if s.state, err = kvstore.OpenKVStore(logger.WithModule("kvstore"), cfg.Devnet.StateDir, &storeMetrics); err != nil {
			return nil, err
		}
	}
	if s.deployment, err = s.restoreOrDeploy(ctx, deployer); err != nil {
		return nil, err
	}

	if s.rpc, err = simulated.NewRPCServer(simulated.NewBackend(s.rt, l)); err != nil {
		return nil, fmt.Errorf("rpc server: %w", err)
	}
	var handler http.Handler = api.NewRouter(s.rpc, l, v1.NewHandler(s.rt, s.deployment, indexed, l))
	if cfg.Server.RequestTimeout != nil {
		handler = middleware.Timeout(*cfg.Server.RequestTimeout)(handler)
	}
	s.server = &http.Server{
		Addr:              cfg.Server.Endpoint,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return s, nil
}

func deployerKey(cfg *config.DevnetConfig) (*ecdsa.PrivateKey, error) {
	if cfg.DeployerKey == "" {
		return deploy.DevKey(0), nil
	}
	return (&config.AccountConfig{PrivateKey: cfg.DeployerKey}).Key()
}

// openStorage connects to PostgreSQL and brings the schema up to date.
func openStorage(ctx context.Context, cfg *config.StorageConfig, logger *log.Logger) (*postgres.Client, error) {
	client, err := postgres.NewClient(cfg.Endpoint, logger)
	if err != nil {
		return nil, err
	}
	if cfg.WipeStorage {
		logger.Warn("wiping storage", "endpoint", cfg.Endpoint)
		if err = client.Wipe(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("wipe storage: %w", err)
		}
	}
	if err = postgres.Migrate(cfg.Migrations, cfg.Endpoint, logger); err != nil {
		client.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}
	return client, nil
}

func (s *Service) restoreOrDeploy(ctx context.Context, deployer ethCommon.Address) (*deploy.Deployment, error) {
	if s.state != nil {
		loaded, err := s.rt.Load(s.state)
		if err != nil {
			return nil, err
		}
		if loaded {
			d, err := deploy.Restore(s.rt, deployer)
			if err != nil {
				return nil, fmt.Errorf("restore deployment: %w", err)
			}
			s.logger.Info("restored devnet", "block", s.rt.BlockNumber(), "token", d.Token, "vault", d.Vault)
			return d, nil
		}
	}
	d, err := deploy.Deploy(ctx, s.rt, deployer)
	if err != nil {
		return nil, err
	}
	s.logger.Info("deployed contracts", "deployer", deployer, "token", d.Token, "vault", d.Vault)
	return d, nil
}

// Runtime returns the devnet's runtime.
func (s *Service) Runtime() *chain.Runtime {
	return s.rt
}

// Deployment returns the addresses of the deployed contracts.
func (s *Service) Deployment() *deploy.Deployment {
	return s.deployment
}

// Handler returns the HTTP handler served by Run.
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

// Run serves the devnet until ctx is cancelled or a component fails, then
// saves the state and releases every resource. The service cannot be
// restarted.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting devnet",
		"endpoint", s.server.Addr,
		"chain_id", s.rt.ChainID(),
		"indexing", s.analyzer != nil,
	)
	g, ctx := errgroup.WithContext(ctx)
	if s.analyzer != nil {
		g.Go(func() error {
			return s.analyzer.Start(ctx)
		})
	}
	g.Go(func() error {
		return common.RunServer(ctx, s.server, s.logger)
	})
	err := g.Wait()

	if saveErr := s.save(); err == nil {
		err = saveErr
	}
	s.cleanup()
	return err
}

func (s *Service) save() error {
	if s.state == nil {
		return nil
	}
	if err := s.rt.Save(s.state); err != nil {
		s.logger.Error("failed to save state", "err", err)
		return err
	}
	return nil
}

// cleanup releases the resources opened by NewService.
func (s *Service) cleanup() {
	if s.rpc != nil {
		s.rpc.Stop()
	}
	if s.state != nil {
		common.CloseOrLog(s.state, s.logger)
	}
	if s.target != nil {
		s.target.Close()
		s.logger.Info("storage connection closed")
	}
}
