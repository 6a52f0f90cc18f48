package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dai-trader/internal/logging"
	"dai-trader/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "state-admin",
	Short: "Inspect and manage the trader's persisted state",
	Long: `state-admin reads and edits what the trader persists between runs:
the Q-table, strategy performance, principal ledger, open trades, broker
book, circuit breaker, daily risk state with stop levels, and the
closed-trade journal.

Configuration is loaded exactly as the trader loads it (config file, .env,
environment). Stop the trader before resetting state it is using.

Examples:
  state-admin dump
  state-admin dump principal_ledger --backend sqlite
  state-admin reset qtable --yes
  state-admin token --subject dashboard --scope read`,
	SilenceUsage: true,
}

var backendOverride string

// openStore is replaced in tests.
var openStore = func(ctx context.Context) (storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if backendOverride != "" {
		cfg.StorageConfig.Backend = backendOverride
	}
	return storage.Open(ctx, cfg, nil)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendOverride, "backend", "", "storage backend to use instead of the configured one (memory, sqlite, postgres, redis)")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.SetDefault(logging.New(&logging.Config{Level: "WARN", Output: "stderr", Component: "state-admin"}))
	}
}

func withStore(ctx context.Context, fn func(storage.Store) error) error {
	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func isKnownKey(key string) bool {
	for _, k := range storage.Keys {
		if k == key {
			return true
		}
	}
	return false
}
