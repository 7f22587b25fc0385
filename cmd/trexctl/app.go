package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Cainuriel/personal-T-REX/internal/config"
	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/suite"
	"github.com/Cainuriel/personal-T-REX/internal/telemetry"
	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
	"github.com/Cainuriel/personal-T-REX/publish"
)

// AppContext holds the dependencies shared across subcommands. It is built
// once in PersistentPreRunE.
type AppContext struct {
	cfg       *config.Config
	network   deployment.Network
	client    *publish.Client
	keys      []namedKey
	artifacts *publish.Artifacts
	store     *deployment.Store
	metrics   *telemetry.Metrics
}

type namedKey struct {
	name    string
	key     *ecdsa.PrivateKey
	address common.Address
}

// buildAppContext dials the selected network and parses the configured keys.
// A chain id of 0 in the config means "ask the node".
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	net, err := cfg.ActiveNetwork()
	if err != nil {
		return nil, err
	}
	client, err := publish.Dial(net.RPCURL, cfg.Bootstrap.ReceiptPoll)
	if err != nil {
		return nil, err
	}

	app := &AppContext{
		cfg:     cfg,
		client:  client,
		store:   deployment.NewStore(cfg.DeploymentsDir),
		metrics: telemetry.NewMetrics(),
	}

	chainID := net.ChainID
	if chainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("read chain id of %s: %w", cfg.Network, err)
		}
	}
	app.network = deployment.Network{Name: cfg.Network, ChainID: chainID}

	for _, k := range []struct{ name, hex string }{
		{"admin", cfg.Keys.Admin},
		{"investor1", cfg.Keys.Investor1},
		{"investor2", cfg.Keys.Investor2},
	} {
		if k.hex == "" {
			continue
		}
		key, addr, err := parsePrivateKey("keys."+k.name, k.hex)
		if err != nil {
			client.Close()
			return nil, err
		}
		app.keys = append(app.keys, namedKey{name: k.name, key: key, address: addr})
	}

	app.artifacts, err = publish.LoadArtifacts(cfg.ArtifactDirs...)
	if err != nil {
		client.Close()
		return nil, err
	}

	slog.Debug("app context ready", "network", cfg.Network, "chain_id", chainID, "keys", len(app.keys))
	return app, nil
}

func (a *AppContext) close() {
	if path := a.cfg.Telemetry.MetricsFile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			slog.Warn("writing metrics textfile failed", "path", path, "err", err)
		}
	}
	if err := a.client.Close(); err != nil {
		slog.Warn("closing rpc client failed", "err", err)
	}
}

func (a *AppContext) deployer(k namedKey) *publish.Deployer {
	return publish.NewDeployer(a.client, int64(a.network.ChainID), k.key,
		big.NewInt(a.cfg.Gas.FeeCap), big.NewInt(a.cfg.Gas.TipCap))
}

func (a *AppContext) key(name string) (namedKey, bool) {
	for _, k := range a.keys {
		if k.name == name {
			return k, true
		}
	}
	return namedKey{}, false
}

func (a *AppContext) admin() (*publish.Deployer, error) {
	k, ok := a.key("admin")
	if !ok {
		return nil, trexerr.Configuration(trexerr.ErrMissingKey, "admin key", "ADMIN_WALLET_PRIV_KEY", "unset")
	}
	return a.deployer(k), nil
}

func (a *AppContext) investorSigners() []suite.Option {
	var opts []suite.Option
	for _, name := range []string{"investor1", "investor2"} {
		if k, ok := a.key(name); ok {
			opts = append(opts, suite.WithInvestor(a.deployer(k)))
		}
	}
	return opts
}

// resolve picks the deployment record for the active chain and checks it
// against the node.
func (a *AppContext) resolve(ctx context.Context) (deployment.Resolved, error) {
	kind, err := deployment.ParseKind(a.cfg.DeploymentType)
	if err != nil {
		return deployment.Resolved{}, trexerr.Configuration(err, "deployment type", "factory or manual", a.cfg.DeploymentType)
	}
	rec, err := deployment.NewResolver(a.store).Resolve(a.network.ChainID, kind)
	if err != nil {
		return deployment.Resolved{}, err
	}
	res, err := deployment.Inspect(ctx, a.client, rec)
	if err != nil {
		return deployment.Resolved{}, err
	}
	slog.InfoContext(ctx, "deployment resolved",
		"kind", rec.DeploymentMethod,
		"token", rec.Core.Token.Hex(),
		"version", res.Capabilities.Label,
		"created", rec.Timestamp)
	return res, nil
}

// openSuite resolves the deployment and wraps it in a suite signed by the
// admin key.
func (a *AppContext) openSuite(ctx context.Context) (*suite.Suite, error) {
	admin, err := a.admin()
	if err != nil {
		return nil, err
	}
	res, err := a.resolve(ctx)
	if err != nil {
		return nil, err
	}
	opts := append(a.investorSigners(), suite.WithBytecode(a.artifacts), suite.WithMetrics(a.metrics))
	return suite.New(a.client, admin, res, slog.Default(), opts...), nil
}
