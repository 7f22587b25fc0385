package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Cainuriel/personal-T-REX/internal/bootstrap"
	"github.com/Cainuriel/personal-T-REX/internal/config"
)

// defaultInvestorAmount is minted to each investor key when no investors are
// configured.
const defaultInvestorAmount = "1000"

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Bring the resolved suite to an operational state and exit",
	Long: `Bootstrap resolves the deployment for the active network and walks it
through: token unpaused, agent role granted on token and identity registry,
claim issuer trusted, investor identities registered and tokens minted.

Every step reads chain state first and is skipped when already satisfied, so
an interrupted run is resumed by running the command again. The run is bounded
by bootstrap.timeout (10 minutes by default).

The command prints a JSON report to stdout and exits 0 on success or non-zero
on failure.`,
	RunE: runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Bootstrap.Timeout)
	defer cancel()

	opts, err := bootstrapOptions(cfg, app.keys)
	if err != nil {
		printResult("error", err.Error())
		return err
	}
	s, err := app.openSuite(ctx)
	if err != nil {
		printResult("error", err.Error())
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	slog.InfoContext(ctx, "starting bootstrap")

	rep, err := bootstrap.New(s, opts, slog.Default(), app.metrics).Run(ctx)
	printJSON(rep)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	slog.InfoContext(ctx, "bootstrap completed successfully")
	return nil
}

// bootstrapOptions maps the config onto sequencer options. Without
// configured investors the investor keys are onboarded with a default amount.
func bootstrapOptions(c *config.Config, keys []namedKey) (bootstrap.Options, error) {
	b := c.Bootstrap
	opts := bootstrap.Options{
		ClaimTopics:      b.ClaimTopics,
		TransferCheck:    b.TransferCheck.Enabled,
		TransferAmount:   b.TransferCheck.Amount,
		RepairIdentities: b.RepairIdentities,
		MaxRetries:       b.MaxRetries,
		RetryBackoff:     b.RetryBackoff,
		Timeout:          b.Timeout,
	}

	var err error
	if opts.Issuer, err = optionalAddress("bootstrap.issuer", b.Issuer); err != nil {
		return opts, err
	}

	for i, inv := range b.Investors {
		wallet, err := parseAddress(fmt.Sprintf("bootstrap.investors[%d].wallet", i), inv.Wallet)
		if err != nil {
			return opts, err
		}
		identity, err := optionalAddress(fmt.Sprintf("bootstrap.investors[%d].identity", i), inv.Identity)
		if err != nil {
			return opts, err
		}
		opts.Investors = append(opts.Investors, bootstrap.Investor{
			Wallet:   wallet,
			Identity: identity,
			Country:  inv.Country,
			Amount:   inv.Amount,
		})
	}

	if len(opts.Investors) == 0 {
		for _, k := range keys {
			if k.name == "admin" {
				continue
			}
			opts.Investors = append(opts.Investors, bootstrap.Investor{
				Wallet: k.address,
				Amount: defaultInvestorAmount,
			})
		}
	}
	return opts, nil
}
