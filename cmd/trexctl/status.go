package main

import (
	"github.com/spf13/cobra"

	"github.com/Cainuriel/personal-T-REX/internal/deployment"
	"github.com/Cainuriel/personal-T-REX/internal/suite"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print token state and check it is bound to the recorded contracts",
	RunE:  runStatus,
}

type statusReport struct {
	Kind                    deployment.Kind `json:"kind"`
	Token                   suite.TokenInfo `json:"token"`
	IdentityRegistryMatches bool            `json:"identityRegistryMatches"`
	ComplianceMatches       bool            `json:"complianceMatches"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := app.openSuite(ctx)
	if err != nil {
		printResult("error", err.Error())
		return err
	}
	info, err := s.TokenInfo(ctx)
	if err != nil {
		return err
	}
	core := s.Resolved().Record.Core
	printJSON(statusReport{
		Kind:                    s.Resolved().Record.DeploymentMethod,
		Token:                   info,
		IdentityRegistryMatches: info.IdentityRegistry == core.IdentityRegistry,
		ComplianceMatches:       info.Compliance == core.Compliance,
	})
	return nil
}
