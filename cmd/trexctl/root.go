package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Cainuriel/personal-T-REX/internal/config"
	"github.com/Cainuriel/personal-T-REX/internal/telemetry"
)

var (
	cfgFile        string
	logLevel       string
	network        string
	deploymentType string
	metricsFile    string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext

	// Reports go to reportOut and logs to logOut, so stdout stays
	// machine-readable.
	reportOut io.Writer = os.Stdout
	logOut    io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "trexctl",
	Short: "Deploy and bootstrap ERC-3643 (T-REX) token suites",
	Long: `trexctl deploys T-REX suites, either contract by contract or through
the TREX factory, and drives an existing suite to the point where investors
can be onboarded: token unpaused, agent roles granted, claim issuer trusted,
identities registered and tokens minted.

Every command exits 0 on success and 1 on failure.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&network, "network", "", "network name from the config (default localhost)")
	rootCmd.PersistentFlags().StringVar(&deploymentType, "deployment-type", "", "deployment kind to resolve (factory, manual)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write run metrics to this textfile")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(logLevel)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		} else if cfg.Telemetry.LogLevel != "" {
			initLogging(cfg.Telemetry.LogLevel)
		}
		if cmd.Flags().Changed("network") {
			cfg.Network = network
		}
		if cmd.Flags().Changed("deployment-type") {
			cfg.DeploymentType = deploymentType
		}
		if cmd.Flags().Changed("metrics-file") {
			cfg.Telemetry.MetricsFile = metricsFile
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		app, err = buildAppContext(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}
		return nil
	}

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(accountsCmd)
}

func initLogging(level string) {
	telemetry.InitLogger(logOut, level)
}

// Execute is the entry point called by main.
func Execute() {
	err := rootCmd.Execute()
	if app != nil {
		app.close()
	}
	if err != nil {
		os.Exit(1)
	}
}
