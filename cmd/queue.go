package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/policy"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or drain the notification retry queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue size and retry timing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueStatusRun()
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Attempt delivery of every due entry now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return queueDrainRun(cmd.Context())
	},
}

func init() {
	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueDrainCmd)
	rootCmd.AddCommand(queueCmd)
}

func queueStatusRun() error {
	queue := getQueue(policy.FromViper())
	st := queue.QueueStatus()
	if st.Size == 0 {
		ui.Success("queue empty")
		return nil
	}
	ui.Info("%d entr(ies) queued; oldest %dm old; next retry due in %ds",
		st.Size, st.OldestAgeMinutes, st.NextRetryInSeconds)
	return nil
}

func queueDrainRun(ctx context.Context) error {
	queue := getQueue(policy.FromViper())
	res := queue.Drain(ctx)
	ui.Success("drained: %d processed, %d delivered, %d requeued, %d dropped, %d expired",
		res.Processed, res.Succeeded, res.Requeued, res.Failed, res.Expired)
	return nil
}
