package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/localota/internal/history"
	"github.com/muurk/localota/internal/ui"
)

var (
	historyLimit  int
	historyDevice string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent update sessions",
	Long: `List update sessions recorded in the local history database, newest first.

The database lives under the XDG data directory; set LOCALOTA_HISTORY_DB
to use a different file.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "Number of sessions to show")
	historyCmd.Flags().StringVar(&historyDevice, "for", "", "Only show sessions for this device address")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	store, err := history.Open(history.DefaultPath())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), history.Filter{Device: historyDevice, Limit: historyLimit})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}
	return ui.RenderOnce(ui.HistoryTable(entries))
}
