package main

import (
	"github.com/lmittmann/w3"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Print the address and native balance of every configured key",
	RunE:  runAccounts,
}

type account struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func runAccounts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	out := make([]account, 0, len(app.keys))
	for _, k := range app.keys {
		bal, err := app.client.BalanceAt(ctx, k.address)
		if err != nil {
			return err
		}
		out = append(out, account{
			Name:    k.name,
			Address: k.address.Hex(),
			Balance: w3.FromWei(bal, 18),
		})
	}
	printJSON(out)
	return nil
}
