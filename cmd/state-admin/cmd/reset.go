package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dai-trader/internal/storage"
)

var resetCmd = &cobra.Command{
	Use:   "reset [key...]",
	Short: "Delete persisted state blobs",
	Long: `Delete the named state blobs so the trader starts them fresh. With --all
every known blob is deleted. The closed-trade journal is never touched.

Examples:
  state-admin reset qtable strategy_performance --yes
  state-admin reset --all --yes`,
	RunE: runReset,
}

var (
	resetAll bool
	resetYes bool
)

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "delete every state blob")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm the deletion")
}

func runReset(cmd *cobra.Command, args []string) error {
	keys := args
	if resetAll {
		keys = storage.Keys
	}
	if len(keys) == 0 {
		return fmt.Errorf("name at least one key or pass --all (known keys: %v)", storage.Keys)
	}
	for _, k := range keys {
		if !isKnownKey(k) {
			return fmt.Errorf("unknown key %q (known keys: %v)", k, storage.Keys)
		}
	}

	out := cmd.OutOrStdout()
	if !resetYes {
		fmt.Fprintf(out, "would delete %v; rerun with --yes to confirm\n", keys)
		return nil
	}

	ctx := cmd.Context()
	return withStore(ctx, func(store storage.Store) error {
		for _, k := range keys {
			if err := store.Delete(ctx, k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
			fmt.Fprintf(out, "deleted %s\n", k)
		}
		return nil
	})
}
