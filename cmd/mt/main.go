package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/db"
	"github.com/dhowell/mailtriage/internal/ledger"
	"github.com/dhowell/mailtriage/internal/state"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configPath string
	jsonOutput bool
	quietFlag  bool

	cfg     *config.Config
	states  *state.Store
	ledgers *ledger.Store
	store   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "mt",
	Short: "mt - AI email triage for Microsoft 365 mailboxes",
	Long:  "Mailtriage: fetch unprocessed inbox mail, classify it with a language model, and apply categories, flags, drafts and tasks. Every run is recorded and reversible.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version":
			return nil
		}

		// Secrets (client secret, API keys) ride in from .env when present.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		states = state.NewStore(filepath.Join(cfg.DataDir, "accounts"))
		ledgers = ledger.NewStore(states)

		store, err = db.Open(filepath.Join(cfg.DataDir, "mail.db"))
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mt version %s\n", Version)
	},
}

// selectAccounts returns the configured accounts, narrowed to one when
// the --account filter is set.
func selectAccounts(filter string) ([]config.AccountConfig, error) {
	if filter == "" {
		return cfg.Accounts, nil
	}
	account, ok := cfg.Account(filter)
	if !ok {
		return nil, fmt.Errorf("account %q not found in config", filter)
	}
	return []config.AccountConfig{account}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mailtriage.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
