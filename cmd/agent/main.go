package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"timeclock/internal/agent"
	"timeclock/internal/auth"
	"timeclock/internal/config"
	"timeclock/internal/db"
	"timeclock/internal/geo"
	"timeclock/internal/localstate"
	"timeclock/internal/position"
	"timeclock/internal/presence"
	"timeclock/internal/shift"
	"timeclock/internal/tracker"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// stdout belongs to the console
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("agent terminated", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	database, err := db.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()

	state, err := localstate.Open(cfg.Agent.StatePath)
	if err != nil {
		return err
	}
	defer state.Close()
	if err := state.InitSchema(ctx); err != nil {
		return err
	}

	src, closeSrc, err := positionSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	policy := auth.PINPolicy{MasterAdminCode: cfg.Auth.MasterAdminCode}
	authn := auth.NewAuthenticator(database, policy, nil, logger)
	session := auth.NewSession(authn, localstate.NewStore[auth.Identity](state, localstate.AuthStoreName))
	shifts := shift.New(database, localstate.NewStore[shift.State](state, localstate.ShiftStoreName), logger)

	trackCfg := tracker.DefaultConfig()
	trackCfg.ThresholdMeters = cfg.Tracking.ThresholdM
	trackCfg.Watch.Timeout = cfg.Tracking.Timeout
	trackCfg.InsertAttempts = cfg.Tracking.InsertAttempts
	marker := tracker.NewMarker()
	sampler := tracker.New(src, database, shifts, marker, trackCfg, logger)

	var connect agent.PresenceConnector
	if cfg.MQTT.Broker != "" {
		connect = func(employeeID uuid.UUID) (agent.Presence, error) {
			s, err := presence.Connect(presence.ClientOptions(cfg.MQTT, "agent"), cfg.MQTT.PresenceTopic, employeeID, logger, nil)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}

	a := agent.New(agent.Deps{
		Session:         session,
		Shifts:          shifts,
		Sampler:         sampler,
		Marker:          marker,
		Source:          src,
		ConnectPresence: connect,
		IdleTimeout:     cfg.Agent.IdleTimeout,
		Out:             os.Stdout,
		Logger:          logger,
	})
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}
	return a.Run(ctx, os.Stdin)
}

// positionSource picks the configured sensor. The returned func releases it.
func positionSource(cfg *config.Config, logger *slog.Logger) (position.Source, func(), error) {
	switch cfg.Tracking.Source {
	case "sim":
		start := geo.Coordinate{Latitude: cfg.Tracking.SimLatitude, Longitude: cfg.Tracking.SimLongitude, Accuracy: 5}
		logger.Info("using simulated positions", "interval", cfg.Tracking.SimInterval)
		return position.NewSimSource(start, cfg.Tracking.SimInterval, 8), func() {}, nil

	case "mqtt":
		if cfg.MQTT.Broker == "" {
			return nil, nil, fmt.Errorf("tracking.source is mqtt but mqtt.broker is not set")
		}
		src, err := position.ConnectMQTTSource(presence.ClientOptions(cfg.MQTT, "positions"), cfg.MQTT.PositionPrefix, cfg.Tracking.DeviceID, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using MQTT positions", "prefix", cfg.MQTT.PositionPrefix, "device", cfg.Tracking.DeviceID)
		return src, src.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown tracking.source %q", cfg.Tracking.Source)
}
