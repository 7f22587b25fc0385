package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for trexctl.
type Config struct {
	Network        string                   `mapstructure:"network"`
	Networks       map[string]NetworkConfig `mapstructure:"networks"`
	DeploymentsDir string                   `mapstructure:"deployments_dir"`
	DeploymentType string                   `mapstructure:"deployment_type"`
	ArtifactDirs   []string                 `mapstructure:"artifact_dirs"`
	Keys           KeysConfig               `mapstructure:"keys"`
	Gas            GasConfig                `mapstructure:"gas"`
	Token          TokenConfig              `mapstructure:"token"`
	Bootstrap      BootstrapConfig          `mapstructure:"bootstrap"`
	Telemetry      TelemetryConfig          `mapstructure:"telemetry"`
}

type NetworkConfig struct {
	RPCURL  string `mapstructure:"rpc_url"`
	ChainID uint64 `mapstructure:"chain_id"`
}

// KeysConfig holds hex private keys. They are normally supplied through
// ADMIN_WALLET_PRIV_KEY, INVESTOR1_PRIV_KEY and INVESTOR2_PRIV_KEY.
type KeysConfig struct {
	Admin     string `mapstructure:"admin"`
	Investor1 string `mapstructure:"investor1"`
	Investor2 string `mapstructure:"investor2"`
}

type GasConfig struct {
	FeeCap int64 `mapstructure:"fee_cap"`
	TipCap int64 `mapstructure:"tip_cap"`
}

type TokenConfig struct {
	Name     string `mapstructure:"name"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
	Owner    string `mapstructure:"owner"`
	Agent    string `mapstructure:"agent"`
}

type BootstrapConfig struct {
	Timeout          time.Duration       `mapstructure:"timeout"`
	MaxRetries       int                 `mapstructure:"max_retries"`
	RetryBackoff     time.Duration       `mapstructure:"retry_backoff"`
	ReceiptPoll      time.Duration       `mapstructure:"receipt_poll"`
	Issuer           string              `mapstructure:"issuer"`
	ClaimTopics      []int64             `mapstructure:"claim_topics"`
	Investors        []InvestorConfig    `mapstructure:"investors"`
	TransferCheck    TransferCheckConfig `mapstructure:"transfer_check"`
	RepairIdentities bool                `mapstructure:"repair_identities"`
}

// InvestorConfig describes one wallet to onboard. Identity may be empty when
// the deployment has an identity factory; Amount is the target balance in
// whole tokens.
type InvestorConfig struct {
	Wallet   string `mapstructure:"wallet"`
	Identity string `mapstructure:"identity"`
	Country  uint16 `mapstructure:"country"`
	Amount   string `mapstructure:"amount"`
}

type TransferCheckConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Amount  string `mapstructure:"amount"`
}

type TelemetryConfig struct {
	LogLevel    string `mapstructure:"log_level"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the TREX_ prefix (e.g. TREX_NETWORK). The key
// variables of the hardhat project are honoured under their original names.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TREX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"keys.admin":      {"ADMIN_WALLET_PRIV_KEY", "TREX_KEYS_ADMIN"},
		"keys.investor1":  {"INVESTOR1_PRIV_KEY", "TREX_KEYS_INVESTOR1"},
		"keys.investor2":  {"INVESTOR2_PRIV_KEY", "TREX_KEYS_INVESTOR2"},
		"deployment_type": {"DEPLOYMENT_TYPE", "TREX_DEPLOYMENT_TYPE"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network", "localhost")
	v.SetDefault("networks", map[string]any{
		"localhost": map[string]any{"rpc_url": "http://127.0.0.1:8545", "chain_id": 31337},
		"taycan":    map[string]any{"rpc_url": "http://5.250.188.118:8545", "chain_id": 0},
		"alastria":  map[string]any{"rpc_url": "http://108.142.237.13:8545", "chain_id": 0},
	})
	v.SetDefault("deployments_dir", "deployments")
	v.SetDefault("deployment_type", "")
	v.SetDefault("artifact_dirs", []string{"artifacts", "node_modules/@onchain-id/solidity/artifacts"})

	v.SetDefault("gas.fee_cap", 2_000_000_000)
	v.SetDefault("gas.tip_cap", 1_000_000_000)

	v.SetDefault("token.name", "ISBE Security Token")
	v.SetDefault("token.symbol", "AST")
	v.SetDefault("token.decimals", 18)

	v.SetDefault("bootstrap.timeout", 10*time.Minute)
	v.SetDefault("bootstrap.max_retries", 3)
	v.SetDefault("bootstrap.retry_backoff", 2*time.Second)
	v.SetDefault("bootstrap.receipt_poll", 2*time.Second)
	v.SetDefault("bootstrap.claim_topics", []int64{1, 2})
	v.SetDefault("bootstrap.transfer_check.enabled", false)
	v.SetDefault("bootstrap.transfer_check.amount", "100")
	v.SetDefault("bootstrap.repair_identities", false)

	v.SetDefault("telemetry.log_level", "info")
}

// Validate rejects settings that would only fail later, mid-run.
func (c *Config) Validate() error {
	if _, err := c.ActiveNetwork(); err != nil {
		return err
	}
	switch c.DeploymentType {
	case "", "factory", "manual":
	default:
		return fmt.Errorf("deployment_type must be factory or manual, got %q", c.DeploymentType)
	}
	if c.Bootstrap.MaxRetries < 1 {
		return fmt.Errorf("bootstrap.max_retries must be at least 1, got %d", c.Bootstrap.MaxRetries)
	}
	if c.Bootstrap.Timeout <= 0 {
		return fmt.Errorf("bootstrap.timeout must be positive")
	}
	for i, inv := range c.Bootstrap.Investors {
		if inv.Wallet == "" {
			return fmt.Errorf("bootstrap.investors[%d]: wallet is required", i)
		}
	}
	return nil
}

// ActiveNetwork returns the settings of the selected network.
func (c *Config) ActiveNetwork() (NetworkConfig, error) {
	n, ok := c.Networks[c.Network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unknown network %q", c.Network)
	}
	if n.RPCURL == "" {
		return NetworkConfig{}, fmt.Errorf("network %q has no rpc_url", c.Network)
	}
	return n, nil
}
