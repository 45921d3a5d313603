package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/app"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/discord"
	"github.com/JeremyFirst/Ds-Bot-2.0/jobs"
)

// WorkerCmd runs the queue worker on its own, for the standalone worker binary.
func WorkerCmd() *cobra.Command {
	return workerCmd()
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "worker",
		Short:        "Process queued and scheduled staff list repairs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()
	logger := e.logger

	if err := e.connectDB(ctx); err != nil {
		return err
	}
	if err := e.connectRedis(ctx); err != nil {
		return err
	}
	// REST only; the gateway stays with the bot process.
	if err := e.connectDiscord(); err != nil {
		return err
	}
	_, repairer, err := e.announcements(ctx, discord.NewClient(e.session, logger))
	if err != nil {
		return err
	}

	redisOpts := asynq.RedisClientOpt{Addr: e.cfg.RedisAddr, Password: e.cfg.RedisPassword, DB: e.cfg.RedisDB}
	repairJob := jobs.NewAnnouncementRepairJob(repairer, logger, e.jobs)
	scheduledTask, err := jobs.NewAnnouncementRepairTask("scheduled")
	if err != nil {
		return fmt.Errorf("build repair task: %w", err)
	}
	var cron []jobs.CronRegistration
	if e.cfg.RepairCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    e.cfg.RepairCron,
			Task:    scheduledTask,
			Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)},
		})
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: e.cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAnnouncementRepair, Handler: repairJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	if e.cfg.MetricsAddr != "" {
		srv := app.NewServer(e.cfg, app.NewRouter(app.RouterParams{
			Logger:  logger,
			Config:  e.cfg,
			Metrics: e.metrics,
			Readiness: []app.ReadinessCheck{
				{Name: "postgres", Check: e.pool.Ping},
				{Name: "redis", Check: func(ctx context.Context) error { return e.redis.Ping(ctx).Err() }},
			},
			JobHandler: jobs.NewHandler(inspector, logger),
		}))
		g.Go(func() error {
			return app.Serve(ctx, srv, e.cfg.ShutdownTimeout, logger)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}
