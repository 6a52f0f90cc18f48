package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dai-trader/internal/errs"
	"dai-trader/internal/storage"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [key...]",
	Short: "Print persisted state blobs as JSON",
	Long: `Print the named state blobs, or every stored blob when no key is given.

Use --trades to also print the most recent closed trades from the journal.`,
	RunE: runDump,
}

var dumpTrades int

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().IntVar(&dumpTrades, "trades", 0, "also print the N most recent closed trades")
}

func runDump(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	return withStore(ctx, func(store storage.Store) error {
		keys := args
		if len(keys) == 0 {
			stored, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("list keys: %w", err)
			}
			keys = stored
		}
		if len(keys) == 0 {
			fmt.Fprintln(out, "no state stored")
		}

		for _, key := range keys {
			raw, err := store.Load(ctx, key)
			if errors.Is(err, errs.ErrNotFound) {
				fmt.Fprintf(out, "== %s: not found\n", key)
				continue
			}
			if err != nil {
				return fmt.Errorf("load %s: %w", key, err)
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(raw)
			}
			fmt.Fprintf(out, "== %s (%d bytes)\n%s\n", key, len(raw), pretty.String())
		}

		if dumpTrades <= 0 {
			return nil
		}
		trades, err := store.RecentTrades(ctx, dumpTrades)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		fmt.Fprintf(out, "== recent trades (%d)\n", len(trades))
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CLOSED\tSYMBOL\tSTRATEGY\tSHARES\tENTRY\tEXIT\tPNL\tPNL%\tREASON")
		for _, t := range trades {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%.4f\t%.2f\t%.2f\t%s\n",
				t.ClosedAt.Format("2006-01-02 15:04"), t.Symbol, t.Strategy, t.Shares,
				t.EntryPrice, t.ExitPrice, t.PnL, t.PnLPct*100, t.Reason)
		}
		return w.Flush()
	})
}
