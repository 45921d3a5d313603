package cli

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/app"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/discord"
	"github.com/JeremyFirst/Ds-Bot-2.0/jobs"
)

func repairCmd() *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Check every tracked staff list message once",
		Long: `Runs one repair pass: every tracked staff list message is refreshed,
and recreated when it was deleted. With --enqueue the pass is submitted to the
worker queue instead of running here.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if enqueue {
				cfg, err := app.LoadConfig()
				if err != nil {
					return err
				}
				client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
				defer client.Close()
				info, err := client.EnqueueAnnouncementRepair(ctx, "manual")
				if err != nil {
					return fmt.Errorf("enqueue repair: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.ID, info.Queue)
				return nil
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.connectDB(ctx); err != nil {
				return err
			}
			if err := e.connectDiscord(); err != nil {
				return err
			}
			_, repairer, err := e.announcements(ctx, discord.NewClient(e.session, e.logger))
			if err != nil {
				return err
			}
			sum, err := repairer.RepairAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed=%d recreated=%d skipped=%d failed=%d\n",
				sum.Refreshed, sum.Recreated, sum.Skipped, sum.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "submit the pass to the worker queue")
	return cmd
}
