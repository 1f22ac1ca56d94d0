package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhowell/mailtriage/internal/classify"
	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/display"
	"github.com/dhowell/mailtriage/internal/graph"
	msync "github.com/dhowell/mailtriage/internal/sync"
)

var (
	initAccount string
	initForce   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap sender statistics and tone profiles from mailbox history",
	Long: `Scan each account's inbox and sent mail to build the sender
statistics and tone profiles the classifier relies on. Runs
automatically before the first 'mt run'; use this command to
front-load the work or to rebuild with --force.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := selectAccounts(initAccount)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		for _, account := range accounts {
			eff := config.Resolve(cfg, account)

			st := states.Load(eff.Email)
			if st.FirstRunCompleted && !initForce {
				if !quietFlag {
					fmt.Printf("  %s — already bootstrapped (use --force to redo)\n", eff.Email)
				}
				continue
			}

			client, err := graph.Connect(ctx, eff)
			if err != nil {
				display.ErrorMsg("%s: %v", eff.Email, err)
				continue
			}
			classifier, err := classify.New(cfg.Model)
			if err != nil {
				return err
			}

			orch := msync.New(client, classifier, states, ledgers, store)
			orch.Quiet = quietFlag
			if err := orch.Bootstrap(ctx, eff); err != nil {
				display.ErrorMsg("%s: %v", eff.Email, err)
			}
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initAccount, "account", "", "Bootstrap a single account")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Rebuild even if already bootstrapped")
	rootCmd.AddCommand(initCmd)
}
