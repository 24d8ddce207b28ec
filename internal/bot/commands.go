package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"timeclock/internal/db/models"

	"github.com/bwmarrin/discordgo"
)

var (
	commands = []*discordgo.ApplicationCommand{
		{
			Name:                     "status",
			Description:              "Show who is on shift right now",
			DefaultMemberPermissions: &adminPermission,
		},
		{
			Name:                     "history",
			Description:              "Show attendance history",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "period",
					Description: "Time period",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Today", Value: periodToday},
						{Name: "This Week", Value: periodWeek},
						{Name: "This Month", Value: periodMonth},
						{Name: "Last Month", Value: periodLastMonth},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "format",
					Description: "Output format",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Text", Value: "text"},
						{Name: "CSV", Value: "csv"},
						{Name: "Excel", Value: "xlsx"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "employee",
					Description: "Filter by employee name",
					Required:    false,
				},
			},
		},
		{
			Name:                     "registrations",
			Description:              "Show or toggle employee self-registration",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "What to do",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Show", Value: "show"},
						{Name: "Open", Value: "on"},
						{Name: "Close", Value: "off"},
					},
				},
			},
		},
	}

	// Permission for admin commands (Manage Server permission)
	adminPermission = int64(discordgo.PermissionManageServer)
)

func (b *Bot) handleStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	logCommand(b.logger, i, "status")

	positions, err := b.admin.Live(ctx, nil)
	if err != nil {
		b.logger.Error("live view failed", "error", err)
		respondWithError(s, i, "Error retrieving live positions: "+err.Error())
		return
	}
	if len(positions) == 0 {
		respondWithSuccess(s, i, "Nobody is on shift right now.")
		return
	}

	rows := statusRows(positions, b.now())
	respondWithSuccess(s, i, "Current Status\n"+formatTable([]string{"", "EMPLOYEE", "STATUS", "ON SHIFT", "LAST POSITION"}, rows))
}

func (b *Bot) handleRegistrations(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	logCommand(b.logger, i, "registrations")

	action := i.ApplicationCommandData().Options[0].StringValue()
	if action != "show" {
		enabled := action == "on"
		if err := b.admin.SetRegistrationsEnabled(ctx, "discord:"+interactionUser(i), enabled); err != nil {
			respondWithError(s, i, "Error updating registrations: "+err.Error())
			return
		}
	}

	enabled, err := b.admin.RegistrationsEnabled(ctx)
	if err != nil {
		respondWithError(s, i, "Error reading registrations setting: "+err.Error())
		return
	}
	state := "closed"
	if enabled {
		state = "open"
	}
	respondWithSuccess(s, i, fmt.Sprintf("Registrations are %s", state))
}

func statusRows(positions []*models.LivePosition, now time.Time) [][]string {
	rows := make([][]string, 0, len(positions))
	for _, p := range positions {
		marker := "○"
		if p.Online {
			marker = "●"
		}
		where := "-"
		if p.Location != nil {
			where = fmt.Sprintf("%.5f, %.5f", p.Location.Latitude, p.Location.Longitude)
		}
		rows = append(rows, []string{
			marker,
			strings.TrimSpace(truncateString(p.EmployeeName, 20)),
			string(p.Status),
			formatDuration(now.Sub(p.ClockIn)),
			where,
		})
	}
	return rows
}

// isAdmin checks the member's resolved permissions in the interaction's
// channel.
func isAdmin(m *discordgo.Member) bool {
	if m == nil {
		return false
	}
	return m.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageServer) != 0
}
