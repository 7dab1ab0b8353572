// Package config enables config file parsing.
package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/tokenvault/tokenvault/common"
	"github.com/tokenvault/tokenvault/log"
)

const (
	// DefaultTransferAmount is in whole tokens.
	DefaultTransferAmount   = "10"
	DefaultTransferGasLimit = 3_000_000
	DefaultPollInitial      = 50 * time.Millisecond
	DefaultPollMaximum      = 5 * time.Second
	DefaultChainID          = 31337
)

// Config contains the CLI configuration.
type Config struct {
	Node     *NodeConfig     `koanf:"node"`
	Account  *AccountConfig  `koanf:"account"`
	Transfer *TransferConfig `koanf:"transfer"`
	Devnet   *DevnetConfig   `koanf:"devnet"`
	Server   *ServerConfig   `koanf:"server"`
	Storage  *StorageConfig  `koanf:"storage"`
	Log      *LogConfig      `koanf:"log"`
	Metrics  *MetricsConfig  `koanf:"metrics"`
}

type validator interface {
	Validate() error
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	sections := []struct {
		name    string
		present bool
		v       validator
	}{
		{"node", cfg.Node != nil, cfg.Node},
		{"account", cfg.Account != nil, cfg.Account},
		{"transfer", cfg.Transfer != nil, cfg.Transfer},
		{"devnet", cfg.Devnet != nil, cfg.Devnet},
		{"server", cfg.Server != nil, cfg.Server},
		{"storage", cfg.Storage != nil, cfg.Storage},
		{"log", cfg.Log != nil, cfg.Log},
		{"metrics", cfg.Metrics != nil, cfg.Metrics},
	}
	for _, s := range sections {
		if !s.present {
			continue
		}
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// NodeConfig is information about the JSON-RPC node to connect to.
type NodeConfig struct {
	// RPC is the node endpoint.
	RPC string `koanf:"rpc"`
}

func (cfg *NodeConfig) Validate() error {
	if cfg.RPC == "" {
		return fmt.Errorf("no rpc endpoint provided")
	}
	return nil
}

// AccountConfig is the signing account. Both fields are normally provided
// through the environment (ACCOUNT__PRIVATE_KEY, ACCOUNT__ADDRESS).
type AccountConfig struct {
	// PrivateKey is hex, with or without 0x.
	PrivateKey string `koanf:"private_key"`

	// Address, if set, must match the key.
	Address string `koanf:"address"`
}

// Key parses the private key.
func (cfg *AccountConfig) Key() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

func (cfg *AccountConfig) Validate() error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("no private key provided")
	}
	key, err := cfg.Key()
	if err != nil {
		return err
	}
	if cfg.Address == "" {
		return nil
	}
	if !ethCommon.IsHexAddress(cfg.Address) {
		return fmt.Errorf("malformed address '%s'", cfg.Address)
	}
	if derived := crypto.PubkeyToAddress(key.PublicKey); derived != ethCommon.HexToAddress(cfg.Address) {
		return fmt.Errorf("address %s does not match private key (%s)", cfg.Address, derived.Hex())
	}
	return nil
}

// TransferConfig is the configuration of the transfer command.
type TransferConfig struct {
	Token    string `koanf:"token"`
	Receiver string `koanf:"receiver"`

	// Amount is in whole tokens and may have a fractional part.
	Amount   string `koanf:"amount"`
	GasLimit uint64 `koanf:"gas_limit"`

	// Artifact is a path to a contract artifact JSON whose ABI is used
	// instead of the built-in token ABI.
	Artifact string `koanf:"artifact"`

	PollInitial time.Duration `koanf:"poll_initial"`
	PollMaximum time.Duration `koanf:"poll_maximum"`
}

// Validate validates the transfer configuration and fills in defaults.
func (cfg *TransferConfig) Validate() error {
	if !ethCommon.IsHexAddress(cfg.Token) {
		return fmt.Errorf("malformed token address '%s'", cfg.Token)
	}
	if !ethCommon.IsHexAddress(cfg.Receiver) {
		return fmt.Errorf("malformed receiver address '%s'", cfg.Receiver)
	}
	if cfg.Amount == "" {
		cfg.Amount = DefaultTransferAmount
	}
	if _, err := common.ParseEther(cfg.Amount); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultTransferGasLimit
	}
	if cfg.PollInitial == 0 {
		cfg.PollInitial = DefaultPollInitial
	}
	if cfg.PollMaximum == 0 {
		cfg.PollMaximum = DefaultPollMaximum
	}
	if cfg.PollMaximum < cfg.PollInitial {
		return fmt.Errorf("poll_maximum %s less than poll_initial %s", cfg.PollMaximum, cfg.PollInitial)
	}
	return nil
}

// AmountWei is Amount in the token's smallest unit.
func (cfg *TransferConfig) AmountWei() (*big.Int, error) {
	return common.ParseEther(cfg.Amount)
}

// DevnetConfig is the configuration of the local development chain.
type DevnetConfig struct {
	ChainID uint64 `koanf:"chain_id"`

	// DeployerKey deploys the contracts. Defaults to the first well-known
	// development key.
	DeployerKey string `koanf:"deployer_key"`

	// StateDir is where chain state is persisted. Empty keeps state in memory.
	StateDir string `koanf:"state_dir"`
}

func (cfg *DevnetConfig) Validate() error {
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.DeployerKey != "" {
		if _, err := (&AccountConfig{PrivateKey: cfg.DeployerKey}).Key(); err != nil {
			return fmt.Errorf("deployer_key: %w", err)
		}
	}
	return nil
}

// ServerConfig contains the API server configuration.
type ServerConfig struct {
	// Endpoint is the service endpoint from which to serve the API.
	Endpoint string `koanf:"endpoint"`

	// RequestTimeout bounds every API request.
	RequestTimeout *time.Duration `koanf:"request_timeout"`
}

// Validate validates the server configuration.
func (cfg *ServerConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed server endpoint '%s'", cfg.Endpoint)
	}
	return nil
}

// StorageConfig contains the storage layer configuration.
type StorageConfig struct {
	// Endpoint is the PostgreSQL connection string.
	Endpoint string `koanf:"endpoint"`

	// Migrations is the directory containing schema migrations.
	Migrations string `koanf:"migrations"`

	// If true, we'll first delete all tables in the DB.
	WipeStorage bool `koanf:"DANGER__WIPE_STORAGE_ON_STARTUP"`
}

// Validate validates the storage configuration.
func (cfg *StorageConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed storage endpoint '%s'", cfg.Endpoint)
	}
	if cfg.Migrations == "" {
		return fmt.Errorf("invalid path to migrations '%s'", cfg.Migrations)
	}
	return nil
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	File   string `koanf:"file"`
}

// Validate validates the logging configuration.
func (cfg *LogConfig) Validate() error {
	var format log.Format
	if err := format.Set(cfg.Format); err != nil {
		return err
	}
	var level log.Level
	return level.Set(cfg.Level)
}

// MetricsConfig contains the metrics configuration.
type MetricsConfig struct {
	PullEndpoint string `koanf:"pull_endpoint"`

	// PprofEndpoint, if set, serves net/http/pprof.
	PprofEndpoint string `koanf:"pprof_endpoint"`
}

// Validate validates the metrics configuration.
func (cfg *MetricsConfig) Validate() error {
	if cfg.PullEndpoint == "" {
		return fmt.Errorf("malformed Prometheus pull endpoint '%s'", cfg.PullEndpoint)
	}
	return nil
}

// InitConfig initializes configuration from file. An empty path loads
// the environment only.
func InitConfig(f string) (*Config, error) {
	var provider koanf.Provider
	if f != "" {
		provider = file.Provider(f)
	}
	return initConfig(provider)
}

func initConfig(p koanf.Provider) (*Config, error) {
	var config Config
	k := koanf.New(".")

	// Load configuration from the yaml config.
	if p != nil {
		if err := k.Load(p, yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Load environment variables and merge into the loaded config.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Unmarshal into config.
	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	// Validate config.
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
