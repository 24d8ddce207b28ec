package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"timeclock/internal/db/models"

	"github.com/bwmarrin/discordgo"
)

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// truncateString pads s to maxLen, or cuts it with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s + strings.Repeat(" ", maxLen-len(r))
	}
	return string(r[:maxLen-3]) + "..."
}

// The interaction is always deferred first, so replies edit the original
// response.
func respondWithError(s *discordgo.Session, i *discordgo.InteractionCreate, errMsg string) {
	msg := "Error: " + errMsg
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &msg})
}

func respondWithSuccess(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &msg})
}

func respondWithFile(s *discordgo.Session, i *discordgo.InteractionCreate, file *discordgo.File) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Files: []*discordgo.File{file}})
}

func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}

// commandParams renders the string options of a command as name:value.
func commandParams(options []*discordgo.ApplicationCommandInteractionDataOption) []string {
	var params []string
	for _, opt := range options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommand:
			params = append(params, opt.Name)
			params = append(params, commandParams(opt.Options)...)
		case discordgo.ApplicationCommandOptionString:
			params = append(params, fmt.Sprintf("%s:%s", opt.Name, opt.StringValue()))
		}
	}
	return params
}

func logCommand(logger *slog.Logger, i *discordgo.InteractionCreate, commandName string) {
	logger.Info("command executed",
		"user", interactionUser(i),
		"guild", i.GuildID,
		"command", commandName,
		"params", strings.Join(commandParams(i.ApplicationCommandData().Options), ", "),
	)
}

func getServerName(s *discordgo.Session, guildID string) string {
	if g, err := s.State.Guild(guildID); err == nil && g.Name != "" {
		return g.Name
	}
	return guildID
}

// formatTable creates a Discord-friendly table with fixed-width columns
func formatTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len([]rune(header))
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var result strings.Builder
	result.WriteString("```\n")
	for i, header := range headers {
		result.WriteString(pad(header, widths[i]+2))
	}
	result.WriteString("\n")

	for _, width := range widths {
		result.WriteString(strings.Repeat("-", width+2))
	}
	result.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			result.WriteString(pad(cell, widths[i]+2))
		}
		result.WriteString("\n")
	}
	result.WriteString("```")

	return result.String()
}

func pad(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// NotifyRegistration posts new registrations to the configured channel.
func (b *Bot) NotifyRegistration(ctx context.Context, reg *models.RegisteredEmployee) error {
	if b.config.NotifyChannel == "" {
		return nil
	}
	_, err := b.session.ChannelMessageSend(b.config.NotifyChannel, registrationMessage(reg))
	return err
}

func registrationMessage(reg *models.RegisteredEmployee) string {
	kind := "employee"
	if reg.IsAdmin {
		kind = "admin"
	}
	msg := fmt.Sprintf("New %s registered: **%s**", kind, reg.FullName())
	if reg.Email != "" {
		msg += fmt.Sprintf(" (%s)", reg.Email)
	}
	if reg.IsAdmin && !reg.Verified {
		msg += "\nThe account needs verification by the master admin before it can log in."
	}
	if reg.AdminEmail != nil && *reg.AdminEmail != "" {
		msg += fmt.Sprintf("\nRoster owner: %s", *reg.AdminEmail)
	}
	return msg
}
