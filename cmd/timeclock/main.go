package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timeclock/internal/admin"
	"timeclock/internal/api"
	"timeclock/internal/auth"
	"timeclock/internal/bot"
	"timeclock/internal/config"
	"timeclock/internal/db"
	"timeclock/internal/presence"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server terminated", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	database, err := db.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()

	var online admin.PresenceView
	if cfg.MQTT.Broker != "" {
		observer, err := presence.Connect(presence.ClientOptions(cfg.MQTT, "server"), cfg.MQTT.PresenceTopic, uuid.Nil, logger,
			func(ids []uuid.UUID) { logger.Debug("presence synced", "online", len(ids)) })
		if err != nil {
			return err
		}
		defer observer.Close()
		online = observer
	} else {
		logger.Warn("mqtt.broker not set, live view has no presence")
	}

	policy := auth.PINPolicy{MasterAdminCode: cfg.Auth.MasterAdminCode}
	svc := admin.NewService(database, online, policy, cfg.Auth.MasterAdminEmail, logger)

	var notifier auth.Notifier
	var discordBot *bot.Bot
	if cfg.Discord.Enabled() {
		discordBot, err = bot.New(cfg.Discord, svc, logger)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		notifier = discordBot
	}
	authn := auth.NewAuthenticator(database, policy, notifier, logger)

	tokens, err := api.NewTokens(cfg.API.JWTSecret, cfg.API.TokenTTL)
	if err != nil {
		return err
	}

	poller := admin.NewPoller(svc, cfg.API.PollInterval, nil, logger)
	go poller.Run(ctx)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.NewHandler(authn, svc, tokens, poller, logger), tokens, svc, logger)
	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if discordBot != nil {
		go func() {
			if err := discordBot.Start(ctx); err != nil {
				errCh <- fmt.Errorf("discord bot: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Error("http shutdown", "error", serr)
	}
	if discordBot != nil {
		if serr := discordBot.Shutdown(); serr != nil {
			logger.Error("bot shutdown", "error", serr)
		}
	}
	return err
}
