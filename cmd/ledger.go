package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardenhq/warden/internal/policy"
)

var (
	ledgerLabels string
	ledgerRepo   string
	ledgerWindow int
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Query the failure ledger",
}

var ledgerPatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Summarize failure patterns over a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ledgerPatternsRun()
	},
}

var ledgerSimilarCmd = &cobra.Command{
	Use:   "similar <title>",
	Short: "Find past failures similar to a candidate title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ledgerSimilarRun(args[0])
	},
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check <item-id>",
	Short: "Check whether an item should be skipped by work selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ledgerCheckRun(args[0])
	},
}

func init() {
	ledgerPatternsCmd.Flags().IntVar(&ledgerWindow, "window", 30, "Analysis window in days")
	ledgerSimilarCmd.Flags().StringVar(&ledgerLabels, "labels", "", "Comma-separated labels for overlap matching")
	for _, c := range []*cobra.Command{ledgerPatternsCmd, ledgerSimilarCmd, ledgerCheckCmd} {
		c.Flags().StringVar(&ledgerRepo, "repo", "", "Repository slug owner/name (default from config)")
		ledgerCmd.AddCommand(c)
	}
	rootCmd.AddCommand(ledgerCmd)
}

func effectiveRepo() string {
	if ledgerRepo != "" {
		return ledgerRepo
	}
	return viper.GetString("github.owner") + "/" + viper.GetString("github.repo")
}

func ledgerPatternsRun() error {
	led := getLedger(policy.FromViper())
	p := led.AnalyzePatterns(ledgerWindow)

	if p.Total == 0 {
		ui.Info("no failures recorded in the last %d days", ledgerWindow)
		return nil
	}

	fmt.Fprintf(ui.Out, "%d failure(s) in the last %d days\n\n", p.Total, ledgerWindow)
	table := ui.Table([]string{"CATEGORY", "COUNT"})
	for _, cc := range p.TopCategories {
		table.Append([]string{string(cc.Category), fmt.Sprintf("%d", cc.Count)})
	}
	table.Render()

	if len(p.CategoryByLabel) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"LABEL", "TOP CATEGORY", "COUNT"})
		for label, ccs := range p.CategoryByLabel {
			if len(ccs) > 0 {
				table.Append([]string{label, string(ccs[0].Category), fmt.Sprintf("%d", ccs[0].Count)})
			}
		}
		table.Render()
	}
	return nil
}

func ledgerSimilarRun(title string) error {
	led := getLedger(policy.FromViper())

	var labels []string
	for _, l := range strings.Split(ledgerLabels, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}

	matches := led.SimilarTo(title, labels, effectiveRepo())
	if len(matches) == 0 {
		ui.Success("no similar past failures")
		return nil
	}

	ui.Warning("%d similar past failure(s):", len(matches))
	table := ui.Table([]string{"ITEM", "TITLE", "CATEGORY", "WHY"})
	for _, m := range matches {
		table.Append([]string{
			m.Record.ItemID,
			m.Record.Title,
			string(m.Record.Category),
			strings.Join(m.MatchReasons, "; "),
		})
	}
	table.Render()
	return nil
}

func ledgerCheckRun(itemID string) error {
	led := getLedger(policy.FromViper())

	skip, reason := led.ShouldSkip(itemID, effectiveRepo())
	if skip {
		ui.Warning("skip: %s", reason)
	} else {
		ui.Success("%s has not hit the backoff threshold", itemID)
	}
	return nil
}
