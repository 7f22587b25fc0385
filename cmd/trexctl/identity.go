package main

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
	"github.com/Cainuriel/personal-T-REX/internal/verify"
)

var cleanupWallets string

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect and repair investor identities",
}

var identityCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete identities that are stored but not verified",
	Long: `Cleanup scans a list of wallets (by default every configured key) and
deletes the identity of each wallet whose storage holds an identity the
registry does not verify. Such a wallet cannot be registered again until the
stale entry is removed. Every deletion is simulated before it is sent.`,
	RunE: runIdentityCleanup,
}

func init() {
	identityCleanupCmd.Flags().StringVar(&cleanupWallets, "wallets", "", "comma-separated wallets to scan (default: configured keys)")
	identityCmd.AddCommand(identityCleanupCmd)
}

// identityCleaner is the part of the suite used by cleanup.
type identityCleaner interface {
	verify.Reader
	SimulateDeleteIdentity(ctx context.Context, wallet common.Address) error
	DeleteIdentity(ctx context.Context, wallet common.Address) error
}

type cleanupResult struct {
	Cleaned []common.Address        `json:"cleaned"`
	Skipped []verify.IdentityReport `json:"skipped"`
}

func runIdentityCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	wallets, err := parseAddressList("--wallets", cleanupWallets)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		for _, k := range app.keys {
			wallets = append(wallets, k.address)
		}
	}

	s, err := app.openSuite(ctx)
	if err != nil {
		printResult("error", err.Error())
		return err
	}
	res, err := cleanupIdentities(ctx, s, wallets)
	printJSON(res)
	return err
}

func cleanupIdentities(ctx context.Context, c identityCleaner, wallets []common.Address) (cleanupResult, error) {
	res := cleanupResult{Cleaned: []common.Address{}, Skipped: []verify.IdentityReport{}}
	for _, w := range wallets {
		rep, err := verify.CheckIdentityConsistency(ctx, c, w)
		if err != nil {
			return res, err
		}
		if rep.State != verify.IdentityStoredUnverified {
			res.Skipped = append(res.Skipped, rep)
			continue
		}
		slog.WarnContext(ctx, "inconsistent identity", "wallet", w.Hex(), "stored", rep.Stored.Hex())
		if err := c.SimulateDeleteIdentity(ctx, w); err != nil {
			return res, &trexerr.PermissionError{
				Contract: "identityRegistry",
				Check:    "deleteIdentity",
				Expected: "call succeeds for " + w.Hex(),
				Actual:   "reverted",
				Err:      err,
			}
		}
		if err := c.DeleteIdentity(ctx, w); err != nil {
			return res, err
		}
		res.Cleaned = append(res.Cleaned, w)
	}
	slog.InfoContext(ctx, "identity cleanup finished", "cleaned", len(res.Cleaned), "skipped", len(res.Skipped))
	return res, nil
}
