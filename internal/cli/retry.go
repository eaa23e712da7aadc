package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newRetryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Inspect and manage retryable events",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <event-id>",
		Short: "Make a failed event due for replay now with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, false, func(ctx context.Context, svc *Services) (any, error) {
				return svc.Retry.ResetForRetry(ctx, args[0])
			})
		},
	})

	var retention, failedRetention int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed and exhausted events past retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, false, func(ctx context.Context, svc *Services) (any, error) {
				days, failedDays := svc.RetentionDays, svc.FailedRetentionDays
				if cmd.Flags().Changed("retention-days") {
					days = retention
				}
				if cmd.Flags().Changed("failed-retention-days") {
					failedDays = failedRetention
				}
				return svc.Retry.CleanupOldEvents(ctx, days, failedDays)
			})
		},
	}
	cleanup.Flags().IntVar(&retention, "retention-days", 7, "days to keep completed events")
	cleanup.Flags().IntVar(&failedRetention, "failed-retention-days", 30, "days to keep exhausted events")
	cmd.AddCommand(cleanup)

	return cmd
}
