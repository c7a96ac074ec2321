package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/policy"
)

var statusWindowDays int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show governance loop status dashboard",
	Long: `Show the notification retry queue and a failure-pattern summary
from the ledger: top rejection categories and items that keep failing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusWindowDays, "window", 30, "Ledger analysis window in days")
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	cfg := policy.FromViper()

	queue := getQueue(cfg)
	st := queue.QueueStatus()
	if st.Size == 0 {
		ui.Success("notification queue empty")
	} else {
		ui.Warning("%d notification(s) awaiting retry (oldest %dm, next attempt in %ds)",
			st.Size, st.OldestAgeMinutes, st.NextRetryInSeconds)
	}

	led := getLedger(cfg)
	p := led.AnalyzePatterns(statusWindowDays)
	if p.Total == 0 {
		ui.Info("no failures recorded in the last %d days", statusWindowDays)
		return nil
	}

	fmt.Fprintf(ui.Out, "\n%d failure(s) in the last %d days\n\n", p.Total, statusWindowDays)

	table := ui.Table([]string{"CATEGORY", "COUNT"})
	for _, cc := range p.TopCategories {
		table.Append([]string{string(cc.Category), fmt.Sprintf("%d", cc.Count)})
	}
	table.Render()

	if len(p.RecurringItems) > 0 {
		fmt.Fprintln(ui.Out)
		ui.Warning("items failing repeatedly:")
		table := ui.Table([]string{"ITEM", "REPOSITORY", "FAILURES"})
		for _, ic := range p.RecurringItems {
			table.Append([]string{ic.ItemID, ic.Repository, fmt.Sprintf("%d", ic.Count)})
		}
		table.Render()
	}

	return nil
}
