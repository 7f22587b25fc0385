package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Network)
	assert.Equal(t, "deployments", cfg.DeploymentsDir)
	assert.Equal(t, 10*time.Minute, cfg.Bootstrap.Timeout)
	assert.Equal(t, 3, cfg.Bootstrap.MaxRetries)
	assert.Equal(t, []int64{1, 2}, cfg.Bootstrap.ClaimTopics)
	assert.Equal(t, uint8(18), cfg.Token.Decimals)

	n, err := cfg.ActiveNetwork()
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), n.ChainID)
	assert.Contains(t, cfg.Networks, "taycan")
	assert.Contains(t, cfg.Networks, "alastria")
}

func TestLoadKeysFromHardhatEnvNames(t *testing.T) {
	t.Setenv("ADMIN_WALLET_PRIV_KEY", "0xabc")
	t.Setenv("INVESTOR1_PRIV_KEY", "0xdef")
	t.Setenv("DEPLOYMENT_TYPE", "factory")
	t.Setenv("TREX_NETWORK", "taycan")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0xabc", cfg.Keys.Admin)
	assert.Equal(t, "0xdef", cfg.Keys.Investor1)
	assert.Empty(t, cfg.Keys.Investor2)
	assert.Equal(t, "factory", cfg.DeploymentType)
	assert.Equal(t, "taycan", cfg.Network)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trexctl.yaml")
	body := `
network: besu
networks:
  besu:
    rpc_url: http://10.0.0.5:8545
    chain_id: 2020
bootstrap:
  max_retries: 5
  retry_backoff: 250ms
  investors:
    - wallet: "0x86DF4B738D592c31F4A9A657D6c8d6D05DC1D462"
      identity: "0x1111111111111111111111111111111111110001"
      country: 724
      amount: "1000"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	n, err := cfg.ActiveNetwork()
	require.NoError(t, err)
	assert.Equal(t, uint64(2020), n.ChainID)
	assert.Equal(t, 5, cfg.Bootstrap.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Bootstrap.RetryBackoff)
	require.Len(t, cfg.Bootstrap.Investors, 1)
	assert.Equal(t, uint16(724), cfg.Bootstrap.Investors[0].Country)
	assert.Equal(t, "1000", cfg.Bootstrap.Investors[0].Amount)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.DeploymentType = "hybrid"
	assert.ErrorContains(t, bad.Validate(), "deployment_type")

	bad = *cfg
	bad.Network = "mainnet"
	assert.ErrorContains(t, bad.Validate(), "unknown network")

	bad = *cfg
	bad.Bootstrap.MaxRetries = 0
	assert.ErrorContains(t, bad.Validate(), "max_retries")

	bad = *cfg
	bad.Bootstrap.Investors = []InvestorConfig{{Country: 724}}
	assert.ErrorContains(t, bad.Validate(), "wallet is required")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}
