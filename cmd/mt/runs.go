package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/display"
	"github.com/dhowell/mailtriage/internal/ledger"
)

var runsAccount string

type accountRuns struct {
	Account string               `json:"account"`
	Runs    []ledger.IndexRecord `json:"runs"`
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded triage runs per account",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := selectAccounts(runsAccount)
		if err != nil {
			return err
		}

		var out []accountRuns
		for _, account := range accounts {
			eff := config.Resolve(cfg, account)
			runs, err := ledgers.ListRuns(eff.Email)
			if err != nil {
				return err
			}
			out = append(out, accountRuns{Account: eff.Email, Runs: runs})
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		for _, ar := range out {
			display.Header(ar.Account)
			if len(ar.Runs) == 0 {
				display.SubHeader("  no runs recorded")
				continue
			}
			// Newest last in the index; show newest first.
			for i := len(ar.Runs) - 1; i >= 0; i-- {
				r := ar.Runs[i]
				fmt.Printf("  %s  %-3d actions  %s\n",
					r.RunID, r.Actions, display.TimeAgo(r.Timestamp.UTC().Format(time.RFC3339)))
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsAccount, "account", "", "List runs for a single account")
	rootCmd.AddCommand(runsCmd)
}
