package bot

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"timeclock/internal/admin"
	"timeclock/internal/db/models"

	"github.com/bwmarrin/discordgo"
)

const (
	periodToday     = "today"
	periodWeek      = "week"
	periodMonth     = "month"
	periodLastMonth = "last_month"
)

// periodRange returns the half-open [from, to) range of a period.
func periodRange(period string, now time.Time) (time.Time, time.Time, error) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	switch period {
	case periodToday:
		return today, today.AddDate(0, 0, 1), nil
	case periodWeek:
		return today.AddDate(0, 0, -6), today.AddDate(0, 0, 1), nil
	case periodMonth:
		return monthStart, monthStart.AddDate(0, 1, 0), nil
	case periodLastMonth:
		return monthStart.AddDate(0, -1, 0), monthStart, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("invalid time period %q", period)
}

func (b *Bot) handleHistory(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	logCommand(b.logger, i, "history")

	var period, employee string
	format := "text"
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "period":
			period = opt.StringValue()
		case "format":
			format = opt.StringValue()
		case "employee":
			employee = opt.StringValue()
		}
	}

	now := b.now().UTC()
	from, to, err := periodRange(period, now)
	if err != nil {
		respondWithError(s, i, err.Error())
		return
	}

	entries, err := b.admin.HistoryForExport(ctx, nil, admin.HistoryQuery{From: from, To: to})
	if err != nil {
		b.logger.Error("history query failed", "error", err)
		respondWithError(s, i, "Error retrieving history: "+err.Error())
		return
	}
	entries = filterByName(entries, employee)

	if format == admin.FormatCSV || format == admin.FormatXLSX {
		contentType, err := admin.ContentType(format)
		if err != nil {
			respondWithError(s, i, err.Error())
			return
		}
		var buf bytes.Buffer
		if err := admin.WriteHistory(&buf, format, entries, now); err != nil {
			respondWithError(s, i, "Error building export: "+err.Error())
			return
		}
		respondWithFile(s, i, &discordgo.File{
			Name:        fmt.Sprintf("history_%s.%s", period, format),
			ContentType: contentType,
			Reader:      &buf,
		})
		return
	}

	title := fmt.Sprintf("Attendance for %s", period)
	if employee != "" {
		title = fmt.Sprintf("Attendance for %s - %s", employee, period)
	}
	rows := summaryRows(entries, now)
	if len(rows) == 0 {
		respondWithSuccess(s, i, fmt.Sprintf("# %s\n\nNo shifts recorded.", title))
		return
	}
	respondWithSuccess(s, i, fmt.Sprintf("# %s\n\n%s", title,
		formatTable([]string{"EMPLOYEE", "SHIFTS", "BREAKS", "WORKED"}, rows)))
}

func filterByName(entries []*models.HistoryEntry, name string) []*models.HistoryEntry {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return entries
	}
	out := make([]*models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.EmployeeName), name) {
			out = append(out, e)
		}
	}
	return out
}

// summaryRows totals shifts, break time and worked time per employee,
// sorted by name.
func summaryRows(entries []*models.HistoryEntry, now time.Time) [][]string {
	type total struct {
		name   string
		shifts int
		breaks time.Duration
		worked time.Duration
	}

	totals := make(map[string]*total)
	for _, e := range entries {
		key := e.EmployeeID.String()
		t := totals[key]
		if t == nil {
			t = &total{name: e.EmployeeName}
			totals[key] = t
		}
		t.shifts++
		t.breaks += e.BreakTime
		t.worked += e.Worked(now)
	}

	rows := make([][]string, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, []string{
			strings.TrimSpace(truncateString(t.name, 24)),
			fmt.Sprintf("%d", t.shifts),
			admin.FormatHours(t.breaks),
			admin.FormatHours(t.worked),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i][0] < rows[j][0]
	})
	return rows
}
