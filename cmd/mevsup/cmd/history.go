package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/psantana5/mev-supervisor/internal/balance"
	"github.com/psantana5/mev-supervisor/internal/store"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finalized supervisor sessions",
	Long:  `Lists sessions recorded in the history database, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of sessions to show (0 for all)")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "output format: table or json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if historyFormat != "table" && historyFormat != "json" {
		return fmt.Errorf("invalid format %q (valid: table, json)", historyFormat)
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		return fmt.Errorf("no session history at %s", cfg.History.Path)
	}

	st, err := store.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if historyFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	return printHistoryTable(cmd.OutOrStdout(), records)
}

func printHistoryTable(w io.Writer, records []*store.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No sessions recorded")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Session", "Started", "Duration", "Attempts", "Crashes", "Opportunities", "Bundles", "Profit", "Balance change")
	rows := lo.Map(records, func(r *store.Record, _ int) []string {
		delta := balance.Delta{Initial: r.InitialBalance, Final: r.FinalBalance}
		return []string{
			r.SessionID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Second).String(),
			fmt.Sprintf("%d", r.Attempts),
			fmt.Sprintf("%d", r.Crashes),
			fmt.Sprintf("%d", r.Opportunities),
			fmt.Sprintf("%d/%d", r.BundlesLanded, r.BundlesSent),
			balance.FormatAmount(r.ProfitSum),
			delta.String(),
		}
	})
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
