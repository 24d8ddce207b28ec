package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"timeclock/internal/admin"
	"timeclock/internal/config"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff"
)

type Bot struct {
	config     config.DiscordConfig
	admin      *admin.Service
	session    *discordgo.Session
	logger     *slog.Logger
	shutdownCh chan struct{}
	isShutdown bool
	mu         sync.Mutex
	wg         sync.WaitGroup
	now        func() time.Time
}

func New(cfg config.DiscordConfig, svc *admin.Service, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	// Slash commands only need guild events
	session.Identify.Intents = discordgo.IntentsGuilds

	return &Bot{
		config:     cfg,
		admin:      svc,
		session:    session,
		logger:     logger.With("component", "bot"),
		shutdownCh: make(chan struct{}),
		now:        time.Now,
	}, nil
}

func (b *Bot) registerGuildCommands(ctx context.Context, guildID string) error {
	serverName := getServerName(b.session, guildID)

	op := func() error {
		_, err := b.session.ApplicationCommandBulkOverwrite(b.config.ClientID, guildID, commands)
		return err
	}
	notify := func(err error, wait time.Duration) {
		b.logger.Warn("registering commands failed, retrying",
			"guild", guildID, "server", serverName, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b.logger.Info("registered commands", "guild", guildID, "server", serverName, "count", len(commands))
	return nil
}

// Start opens the gateway session and blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("starting Discord console")

	open := func() error {
		if _, err := b.session.User("@me"); err != nil {
			return fmt.Errorf("discord API: %w", err)
		}
		return b.session.Open()
	}
	notify := func(err error, wait time.Duration) {
		b.logger.Warn("could not connect to Discord, retrying", "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(open, backoff.WithContext(backoff.NewExponentialBackOff(), ctx), notify); err != nil {
		return fmt.Errorf("error opening Discord session: %w", err)
	}
	b.logger.Info("session opened", "session_id", b.session.State.SessionID)

	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type == discordgo.InteractionApplicationCommand {
			b.handleCommand(s, i)
		}
	})

	for _, guild := range b.session.State.Guilds {
		if err := b.registerGuildCommands(ctx, guild.ID); err != nil {
			b.logger.Error("error registering commands", "guild", guild.ID, "error", err)
		}
	}

	b.session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		b.handleGuildCreate(ctx, g)
	})

	<-ctx.Done()
	return b.Shutdown()
}

// Shutdown waits for running handlers and closes the session.
func (b *Bot) Shutdown() error {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return nil
	}
	b.isShutdown = true
	close(b.shutdownCh)
	b.mu.Unlock()

	b.logger.Info("waiting for active handlers to complete")
	b.wg.Wait()

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("error closing Discord session: %w", err)
	}
	b.logger.Info("Discord console stopped")
	return nil
}

func (b *Bot) handleGuildCreate(ctx context.Context, g *discordgo.GuildCreate) {
	b.logger.Info("joined guild", "guild", g.ID, "server", g.Name)
	if err := b.registerGuildCommands(ctx, g.ID); err != nil {
		b.logger.Error("error registering commands", "guild", g.ID, "error", err)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.mu.Lock()
	if b.isShutdown {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			b.logger.Error("panic in command handler",
				"user", interactionUser(i), "guild", i.GuildID, "panic", r, "stack", string(buf[:n]))
			respondWithError(s, i, "An internal error occurred")
		}
	}()

	commandName := i.ApplicationCommandData().Name

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Error("error acknowledging interaction", "command", commandName, "error", err)
		return
	}

	if i.GuildID == "" {
		respondWithError(s, i, fmt.Sprintf("The `/%s` command can only be used in a server", commandName))
		return
	}
	if !isAdmin(i.Member) {
		respondWithError(s, i, "Only server administrators can use this command")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch commandName {
	case "status":
		b.handleStatus(ctx, s, i)
	case "history":
		b.handleHistory(ctx, s, i)
	case "registrations":
		b.handleRegistrations(ctx, s, i)
	default:
		b.logger.Warn("unknown command", "command", commandName)
		respondWithError(s, i, "Unknown command")
	}
}
