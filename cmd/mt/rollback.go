package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/display"
	"github.com/dhowell/mailtriage/internal/graph"
	"github.com/dhowell/mailtriage/internal/rollback"
)

var rollbackAccount string

var rollbackCmd = &cobra.Command{
	Use:   "rollback RUN_ID",
	Short: "Undo a previous triage run",
	Long: `Replay a run's ledger in reverse: restore each message's
categories, read state and flag to their pre-run snapshot, delete
created drafts, and truncate file appends. Actions that fail to
reverse are reported and skipped.

Examples:
  mt rollback 7c3f...                       # All accounts that ran
  mt rollback 7c3f... --account a@b.com     # One account`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := args[0]
		accounts, err := selectAccounts(rollbackAccount)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var reports []rollback.Report
		found := false
		for _, account := range accounts {
			eff := config.Resolve(cfg, account)

			entry, err := ledgers.Load(eff.Email, runID)
			if err != nil {
				// Not every account participates in every run.
				if !quietFlag && rollbackAccount != "" {
					display.ErrorMsg("%s: %v", eff.Email, err)
				}
				continue
			}
			found = true

			client, err := graph.Connect(ctx, eff)
			if err != nil {
				display.ErrorMsg("%s: %v", eff.Email, err)
				continue
			}

			report := rollback.Run(ctx, client, entry)
			reports = append(reports, report)

			if !quietFlag && !jsonOutput {
				display.SuccessMsg("%s: undid %d of %d actions", report.Account, report.Undone, report.Undone+report.Failed)
				for _, res := range report.Results {
					if res.Error != "" {
						display.WarnMsg("%s %s: %s", res.Action.Type, res.Action.MessageID, res.Error)
					}
				}
			}
		}

		if !found {
			return fmt.Errorf("run %q not found for any account", runID)
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackAccount, "account", "", "Roll back a single account")
	rootCmd.AddCommand(rollbackCmd)
}
