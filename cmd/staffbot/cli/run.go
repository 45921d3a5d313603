package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/app"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/discord"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/pinfo"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/platform/db"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/privileges"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/reconcile"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/repair"
)

func runCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve commands, events and repairs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func run(ctx context.Context, migrate bool) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.close()
	logger := e.logger

	if err := e.connectDB(ctx); err != nil {
		return err
	}
	if migrate {
		if err := db.Migrate(e.pool); err != nil {
			return err
		}
	}
	if err := e.connectDiscord(); err != nil {
		return err
	}
	client := discord.NewClient(e.session, logger)
	sync, repairer, err := e.announcements(ctx, client)
	if err != nil {
		return err
	}

	guildID := e.cfg.DiscordGuildID
	if guildID == "" {
		guildID = e.settings.Discord.GuildID
	}

	workflow, err := reconcile.NewWorkflow(reconcile.Config{
		GuildID:           guildID,
		HighStaffRoles:    e.settings.Discord.HighStaffRoles,
		StaffRoles:        e.settings.StaffRoles(),
		GroupRoles:        e.settings.GroupRoles(),
		StaffChannelID:    e.settings.Discord.StaffChannelID,
		FallbackChannelID: e.settings.Discord.CommandChannelID,
		QueryTimeout:      e.cfg.RCONTimeout,
		QueryAttempts:     e.cfg.RCONRetryAttempts,
		DisplayZone:       e.cfg.DisplayLocation(),
	}, reconcile.Deps{
		Query:     e.rconClient(),
		Parser:    pinfo.New(e.settings.GroupNames()),
		Store:     privileges.NewStore(privileges.NewRepository(e.pool), logger),
		Members:   client,
		Notifier:  client,
		Announcer: sync,
		Observer:  e.metrics,
	}, logger)
	if err != nil {
		return err
	}

	bot := discord.NewBot(ctx, e.session, discord.BotConfig{
		GuildID:        guildID,
		StaffChannelID: e.settings.Discord.StaffChannelID,
	}, workflow, sync, logger)

	readiness := []app.ReadinessCheck{{Name: "postgres", Check: e.pool.Ping}}
	if e.redis != nil {
		readiness = append(readiness, app.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return e.redis.Ping(ctx).Err()
		}})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(ctx)
	})
	if e.cfg.MetricsAddr != "" {
		srv := app.NewServer(e.cfg, app.NewRouter(app.RouterParams{
			Logger:    logger,
			Config:    e.cfg,
			Metrics:   e.metrics,
			Readiness: readiness,
		}))
		g.Go(func() error {
			return app.Serve(ctx, srv, e.cfg.ShutdownTimeout, logger)
		})
	}
	if e.cfg.RepairInterval > 0 {
		loop := repair.NewLoop(repairer, e.cfg.RepairInterval, logger)
		g.Go(func() error {
			if err := loop.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			loop.Stop()
			return nil
		})
	} else {
		logger.Info("in-process repair disabled, expecting the worker to schedule repairs")
	}

	logger.Info("staffbot running", slog.String("lock_backend", e.cfg.LockBackend))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("staffbot: %w", err)
	}
	return nil
}
