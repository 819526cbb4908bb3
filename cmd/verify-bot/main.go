package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/tendant/discord-verify/pkg/config"
	"github.com/tendant/discord-verify/pkg/ingress/discord"
	"github.com/tendant/discord-verify/pkg/ingress/telegram"
	"github.com/tendant/discord-verify/pkg/notice"
	"github.com/tendant/discord-verify/pkg/ratelimit"
	"github.com/tendant/discord-verify/pkg/stats"
	statsapi "github.com/tendant/discord-verify/pkg/stats/api"
	"github.com/tendant/discord-verify/pkg/verification"
)

const cleanupInterval = 1 * time.Hour

type Config struct {
	AppConfig          app.AppConfig
	DbConfig           config.DatabaseConfig
	StoreConfig        config.StoreConfig
	EmailConfig        config.EmailConfig
	VerificationConfig config.VerificationConfig
	DiscordConfig      config.DiscordConfig
	TelegramConfig     config.TelegramConfig
}

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		slog.Info("Configuration loaded from .env file")
	}

	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	repo, cleanup := newRepository(cfg)
	defer cleanup()

	manager, err := notice.NewNotificationManager(cfg.EmailConfig.ToSMTPConfig())
	if err != nil {
		slog.Error("Failed creating notification manager", "err", err)
		os.Exit(-1)
	}

	engineConfig := cfg.VerificationConfig.ToEngineConfig()
	sender := notice.NewEmailCodeSender(manager, cfg.DiscordConfig.ServerName, engineConfig.CodeTTL)
	cooldowns := ratelimit.NewCooldownTracker(engineConfig.Cooldown)

	var engineOpts []verification.ServiceOption

	var discordBot *discord.Bot
	if cfg.DiscordConfig.IsConfigured() {
		discordBot, err = discord.NewBot(discord.Config{
			Token:            cfg.DiscordConfig.Token,
			GuildID:          cfg.DiscordConfig.GuildID,
			VerifiedRoleID:   cfg.DiscordConfig.VerifiedRoleID,
			UnverifiedRoleID: cfg.DiscordConfig.UnverifiedRoleID,
			ServerName:       cfg.DiscordConfig.ServerName,
		}, nil)
		if err != nil {
			slog.Error("Failed creating discord bot", "err", err)
			os.Exit(-1)
		}
		engineOpts = append(engineOpts, verification.WithOnVerified(discordBot.GrantVerifiedRole))
	}

	engine := verification.NewService(repo, sender, cooldowns, engineConfig, engineOpts...)

	if discordBot != nil {
		discordBot.Bind(engine)
		if err := discordBot.Start(); err != nil {
			slog.Error("Failed starting discord bot", "err", err)
			os.Exit(-1)
		}
		defer discordBot.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TelegramConfig.IsConfigured() {
		telegramBot, err := telegram.NewBot(telegram.Config{
			Token:      cfg.TelegramConfig.Token,
			ServerName: cfg.TelegramConfig.ServerName,
		}, engine)
		if err != nil {
			slog.Error("Failed creating telegram bot", "err", err)
			os.Exit(-1)
		}
		go func() {
			if err := telegramBot.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Telegram bot stopped", "err", err)
			}
		}()
	}

	go runCleanup(ctx, engine)

	statsService := stats.NewService(repo)
	statsHandler := statsapi.NewHandler(statsService)
	server.R.Mount("/api/stats", statsHandler.Routes())

	server.Run()
}

func newRepository(cfg Config) (verification.Repository, func()) {
	repoConfig := verification.RepositoryConfig{DataDir: cfg.StoreConfig.DataDir}

	cleanup := func() {}
	if cfg.StoreConfig.PersistenceType == "postgres" || cfg.StoreConfig.PersistenceType == "postgresql" {
		dbConfig := cfg.DbConfig.ToDbConfig()
		pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(-1)
		}
		repoConfig.Pool = pool
		cleanup = pool.Close
	}

	repo, err := verification.NewRepository(cfg.StoreConfig.PersistenceType, repoConfig)
	if err != nil {
		slog.Error("Failed creating repository", "persistence_type", cfg.StoreConfig.PersistenceType, "err", err)
		os.Exit(-1)
	}

	if closer, ok := repo.(interface{ Close() error }); ok {
		inner := cleanup
		cleanup = func() {
			closer.Close()
			inner()
		}
	}
	return repo, cleanup
}

func runCleanup(ctx context.Context, engine *verification.Service) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.CleanupExpired(ctx); err != nil {
				slog.Error("Failed cleaning up expired verifications", "err", err)
			}
		}
	}
}
