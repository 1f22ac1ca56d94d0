package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/display"
)

type statusOutput struct {
	Accounts []accountStatus `json:"accounts"`
}

type accountStatus struct {
	Account      string `json:"account"`
	Bootstrapped bool   `json:"bootstrapped"`
	LastRun      string `json:"last_run,omitempty"`
	Senders      int    `json:"senders"`
	ToneProfiles int    `json:"tone_profiles"`
	Runs         int    `json:"runs"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show per-account cursor, bootstrap data and run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := statusOutput{}
		for _, account := range cfg.Accounts {
			eff := config.Resolve(cfg, account)
			st := states.Load(eff.Email)

			runs, err := ledgers.ListRuns(eff.Email)
			if err != nil {
				return err
			}

			as := accountStatus{
				Account:      eff.Email,
				Bootstrapped: st.FirstRunCompleted,
				Senders:      store.SenderCount(eff.Email),
				ToneProfiles: store.ToneProfileCount(eff.Email),
				Runs:         len(runs),
			}
			if st.LastRunUTC != nil {
				as.LastRun = st.LastRunUTC.UTC().Format(time.RFC3339)
			}
			out.Accounts = append(out.Accounts, as)
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		display.Header("Mailtriage status")
		for _, as := range out.Accounts {
			fmt.Println()
			display.SubHeader("  " + as.Account)
			if !as.Bootstrapped {
				fmt.Println("    not yet bootstrapped — run 'mt init' or 'mt run'")
				continue
			}
			lastRun := "never"
			if as.LastRun != "" {
				lastRun = display.TimeAgo(as.LastRun)
			}
			fmt.Printf("    last run: %s\n", lastRun)
			fmt.Printf("    %d known senders, %d tone profiles, %d recorded runs\n",
				as.Senders, as.ToneProfiles, as.Runs)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
