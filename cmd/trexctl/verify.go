package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/verify"
)

var verifyWallets string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check ownership, agent roles and investor identities of the resolved suite",
	Long: `Verify resolves the deployment (which checks that every recorded
address carries code), compares the owner of every owned contract with the
recorded token owner, reports the agent roles of the admin key and reads the
identity state of each investor wallet. Nothing is written.

Ownership mismatches and wallets whose storage holds an identity the registry
does not verify fail the command. A missing or partial agent role is reported
but not fatal, since bootstrap grants it.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyWallets, "wallets", "", "comma-separated wallets to check (default: configured investors)")
}

type permissionReport struct {
	Kind       deployment.Kind         `json:"kind"`
	Version    string                  `json:"version"`
	Label      string                  `json:"label,omitempty"`
	Addresses  map[string]string       `json:"addresses"`
	Owners     []verify.OwnerMatch     `json:"owners"`
	Agent      verify.AgentReport      `json:"agent"`
	Identities []verify.IdentityReport `json:"identities"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	wallets, err := verifyTargets(verifyWallets)
	if err != nil {
		return err
	}
	s, err := app.openSuite(ctx)
	if err != nil {
		printResult("error", err.Error())
		return err
	}
	res := s.Resolved()

	rep := permissionReport{
		Kind:      res.Record.DeploymentMethod,
		Version:   res.Capabilities.Version.String(),
		Label:     res.Capabilities.Label,
		Addresses: map[string]string{},
	}
	for name, addr := range res.Record.Addresses() {
		rep.Addresses[name] = addr.Hex()
	}

	owners, ownerErr := verify.CheckOwnership(ctx, s, verify.OwnedContracts, res.Record.TokenOwner)
	if owners == nil && ownerErr != nil {
		return ownerErr
	}
	rep.Owners = owners

	rep.Agent, err = verify.CheckAgentConsistency(ctx, s, s.Caller())
	if err != nil {
		return err
	}
	if rep.Agent.State != verify.AgentFull {
		slog.WarnContext(ctx, "admin is not agent on every contract", "state", rep.Agent.State, "missing", rep.Agent.Missing())
	}

	identities, identityErr := checkIdentities(ctx, s, wallets)
	if identities == nil && identityErr != nil {
		return identityErr
	}
	rep.Identities = identities

	printJSON(rep)
	if ownerErr != nil {
		return fmt.Errorf("ownership check failed: %w", ownerErr)
	}
	if identityErr != nil {
		return fmt.Errorf("identity check failed: %w", identityErr)
	}
	return nil
}

// verifyTargets returns the --wallets list, or the investors bootstrap would
// onboard.
func verifyTargets(list string) ([]common.Address, error) {
	wallets, err := parseAddressList("--wallets", list)
	if err != nil {
		return nil, err
	}
	if len(wallets) > 0 {
		return wallets, nil
	}
	opts, err := bootstrapOptions(cfg, app.keys)
	if err != nil {
		return nil, err
	}
	for _, inv := range opts.Investors {
		wallets = append(wallets, inv.Wallet)
	}
	return wallets, nil
}

// checkIdentities reads the identity state of every wallet. The returned
// error joins one StateInconsistencyError per anomalous wallet; the reports
// are returned either way.
func checkIdentities(ctx context.Context, r verify.Reader, wallets []common.Address) ([]verify.IdentityReport, error) {
	out := make([]verify.IdentityReport, 0, len(wallets))
	var errs []error
	for _, w := range wallets {
		rep, err := verify.CheckIdentityConsistency(ctx, r, w)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
		if err := rep.Anomaly(); err != nil {
			slog.WarnContext(ctx, "inconsistent identity", "wallet", w.Hex(), "stored", rep.Stored.Hex())
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}
