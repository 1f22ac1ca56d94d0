package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dhowell/mailtriage/internal/classify"
	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/display"
	"github.com/dhowell/mailtriage/internal/graph"
	msync "github.com/dhowell/mailtriage/internal/sync"
)

var runAccount string

type runSummary struct {
	RunID    string            `json:"run_id"`
	Accounts []msync.RunResult `json:"accounts"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Triage unprocessed inbox mail for every configured account",
	Long: `Fetch unprocessed messages, classify them in one model call per
account, and apply the resulting categories, flags, read states,
drafts and tasks. Every mutation lands in the run ledger, so a run can
be undone later with 'mt rollback RUN_ID'.

Accounts are isolated: one account failing authentication or
classification never blocks the others.

Examples:
  mt run                          # All accounts
  mt run --account dev@corp.com   # One account
  mt run --json                   # Machine-readable report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := selectAccounts(runAccount)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		runID := uuid.NewString()
		summary := runSummary{RunID: runID}

		if !quietFlag {
			display.Header(fmt.Sprintf("Triage run %s", runID))
		}

		for _, account := range accounts {
			summary.Accounts = append(summary.Accounts, runOne(ctx, account, runID))
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		if !quietFlag {
			fmt.Println()
			for _, r := range summary.Accounts {
				if r.Error != "" {
					display.ErrorMsg("%s: %s", r.Account, r.Error)
					continue
				}
				display.SuccessMsg("%s: %d processed, %d drafts, %d tasks, %d informational",
					r.Account, r.Processed, r.Drafts, r.Tasks, r.Informational)
				for _, msgErr := range r.MessageErrors {
					display.WarnMsg("%s: %s", r.Account, msgErr)
				}
			}
		}
		return nil
	},
}

// runOne triages a single account. Every failure ends up in the result
// instead of an error so the account loop keeps going.
func runOne(ctx context.Context, account config.AccountConfig, runID string) msync.RunResult {
	eff := config.Resolve(cfg, account)
	result := msync.RunResult{Account: eff.Email, RunID: runID}

	client, err := graph.Connect(ctx, eff)
	if err != nil {
		result.Error = fmt.Sprintf("auth failed: %v", err)
		if !quietFlag {
			display.ErrorMsg("%s: %v", eff.Email, err)
		}
		return result
	}

	classifier, err := classify.New(cfg.Model)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	orch := msync.New(client, classifier, states, ledgers, store)
	orch.Quiet = quietFlag
	orch.Summary = summarySender(ctx, eff, client)

	result, err = orch.Run(ctx, eff, runID)
	if err != nil {
		result.Error = err.Error()
		if !quietFlag {
			display.ErrorMsg("%s: %v", eff.Email, err)
		}
	}
	return result
}

// summarySender picks the mailbox the informational digest is sent
// from. When summary_email_from_account names another configured
// account, that account's mailbox is connected; a sender that cannot
// be connected skips the digest rather than failing the run.
func summarySender(ctx context.Context, eff config.Effective, own *graph.Client) msync.MailSender {
	from := eff.Triage.SummaryEmailFromAccount
	if from == "" || strings.EqualFold(from, eff.Email) {
		return own
	}
	account, ok := cfg.Account(from)
	if !ok {
		if !quietFlag {
			display.WarnMsg("%s: summary sender %q not found in config", eff.Email, from)
		}
		return nil
	}
	sender, err := graph.Connect(ctx, config.Resolve(cfg, account))
	if err != nil {
		if !quietFlag {
			display.WarnMsg("%s: connect summary sender %s: %v", eff.Email, from, err)
		}
		return nil
	}
	return sender
}

func init() {
	runCmd.Flags().StringVar(&runAccount, "account", "", "Triage a single account")
	rootCmd.AddCommand(runCmd)
}
