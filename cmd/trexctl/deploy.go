package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/trexerr"
)

var deployStrategy string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a new T-REX suite and record it",
	Long: `Deploy creates a complete suite on the active network, either by
deploying and initializing every contract in dependency order (manual) or by
standing up a TREX factory and calling deployTREXSuite (factory).

The resulting record is written to the deployments directory and printed as
JSON. Contract creation bytecode is read from the configured hardhat artifact
directories.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployStrategy, "strategy", "factory", "creation strategy (factory, manual)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, err := deployment.ParseKind(deployStrategy)
	if err != nil || kind == "" {
		return trexerr.Configuration(err, "deploy strategy", "factory or manual", deployStrategy)
	}
	admin, err := app.admin()
	if err != nil {
		return err
	}

	params := deployment.CreateParams{
		Network: app.network,
		Token: deployment.TokenParams{
			Name:     cfg.Token.Name,
			Symbol:   cfg.Token.Symbol,
			Decimals: cfg.Token.Decimals,
		},
		ClaimTopics: cfg.Bootstrap.ClaimTopics,
	}
	if params.TokenOwner, err = optionalAddress("token.owner", cfg.Token.Owner); err != nil {
		return err
	}
	if params.Agent, err = optionalAddress("token.agent", cfg.Token.Agent); err != nil {
		return err
	}

	slog.InfoContext(ctx, "starting deployment", "strategy", kind, "network", app.network.Name, "deployer", admin.Address().Hex())

	creator := deployment.NewCreator(admin, app.artifacts, app.store, slog.Default())
	rec, err := creator.Create(ctx, kind, params)
	if err != nil {
		printResult("error", err.Error())
		return fmt.Errorf("deploy failed: %w", err)
	}
	printJSON(rec)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(reportOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(logOut, "error: encode result: %v\n", err)
	}
}

func printResult(status, errMsg string) {
	result := map[string]string{"status": status}
	if errMsg != "" {
		result["error"] = errMsg
	}
	printJSON(result)
}
