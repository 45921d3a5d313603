package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/announcement"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/app"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/discord"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/observability"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/platform/cache"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/platform/db"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/platform/lock"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/rcon"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/repair"

	jobmetrics "github.com/JeremyFirst/Ds-Bot-2.0/internal/jobs"
)

// env holds what every command needs once configuration is loaded.
type env struct {
	cfg      *app.Config
	settings *app.Settings
	logger   *slog.Logger
	metrics  *observability.Metrics
	jobs     *jobmetrics.Metrics

	pool    *pgxpool.Pool
	redis   *redis.Client
	session *discordgo.Session
	closers []func()
}

func loadEnv() (*env, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	settings, err := app.LoadSettings(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	metrics := observability.NewMetrics()
	return &env{
		cfg:      cfg,
		settings: settings,
		logger:   app.NewLogger(cfg),
		metrics:  metrics,
		jobs:     jobmetrics.NewMetrics(metrics.Registerer()),
	}, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *env) connectDB(ctx context.Context) error {
	pool, err := db.New(ctx, e.cfg.PGDSN)
	if err != nil {
		return err
	}
	e.pool = pool
	e.closers = append(e.closers, pool.Close)
	return nil
}

func (e *env) connectRedis(ctx context.Context) error {
	client, err := cache.New(ctx, cache.Options{Addr: e.cfg.RedisAddr, Password: e.cfg.RedisPassword, DB: e.cfg.RedisDB})
	if err != nil {
		return err
	}
	e.redis = client
	e.closers = append(e.closers, func() {
		if err := client.Close(); err != nil {
			e.logger.Warn("redis close", slog.Any("error", err))
		}
	})
	return nil
}

func (e *env) connectDiscord() error {
	if err := e.cfg.RequireDiscord(); err != nil {
		return err
	}
	session, err := discordgo.New("Bot " + e.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	e.session = session
	return nil
}

func (e *env) locker(ctx context.Context) (lock.Locker, error) {
	if e.cfg.LockBackend != app.LockBackendRedis {
		return lock.NewKeyed(), nil
	}
	if e.redis == nil {
		if err := e.connectRedis(ctx); err != nil {
			return nil, err
		}
	}
	return lock.NewRedis(e.redis, e.cfg.LockTTL, 0, e.logger), nil
}

func (e *env) rconClient() *rcon.Client {
	return rcon.NewClient(rcon.Config{
		Addr:       e.cfg.RCONAddr,
		Password:   e.cfg.RCONPassword,
		RetryDelay: e.cfg.RCONRetryDelay,
	}, nil, e.logger)
}

// announcements builds the synchronizer and repairer on top of the Discord
// REST client. connectDB and connectDiscord must have run.
func (e *env) announcements(ctx context.Context, client *discord.Client) (*announcement.Synchronizer, *repair.Repairer, error) {
	if e.pool == nil || e.session == nil {
		return nil, nil, errors.New("announcements need database and discord")
	}
	locker, err := e.locker(ctx)
	if err != nil {
		return nil, nil, err
	}
	sync := announcement.NewSynchronizer(
		announcement.NewRepository(e.pool),
		client,
		client,
		locker,
		e.settings.StaffRoles(),
		e.logger,
	)
	repairer := repair.NewRepairer(sync, client, e.jobs, e.logger)
	return sync, repairer, nil
}
