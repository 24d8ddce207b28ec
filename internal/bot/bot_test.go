package bot

import (
	"strings"
	"testing"
	"time"

	"timeclock/internal/db/models"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Minute, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 30*time.Minute, "2h 30m 0s"},
	}
	for _, tc := range tests {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("Ana", 6); got != "Ana   " {
		t.Errorf("pad = %q", got)
	}
	if got := truncateString("Maximilian Mustermann", 10); got != "Maximil..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncateString("Zoë Ångström", 12); got != "Zoë Ångström" {
		t.Errorf("runes = %q", got)
	}
}

func TestFormatTable(t *testing.T) {
	got := formatTable([]string{"NAME", "HOURS"}, [][]string{{"Ana", "1:30"}, {"Bartholomew", "10:05"}})
	want := "```\n" +
		"NAME         HOURS  \n" +
		"--------------------\n" +
		"Ana          1:30   \n" +
		"Bartholomew  10:05  \n" +
		"```"
	if got != want {
		t.Fatalf("formatTable =\n%s\nwant\n%s", got, want)
	}
}

func TestPeriodRange(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC)
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		period   string
		from, to time.Time
	}{
		{periodToday, day(3, 14), day(3, 15)},
		{periodWeek, day(3, 8), day(3, 15)},
		{periodMonth, day(3, 1), day(4, 1)},
		{periodLastMonth, day(2, 1), day(3, 1)},
	}
	for _, tc := range tests {
		from, to, err := periodRange(tc.period, now)
		if err != nil {
			t.Fatalf("%s: %v", tc.period, err)
		}
		if !from.Equal(tc.from) || !to.Equal(tc.to) {
			t.Errorf("%s = [%v, %v), want [%v, %v)", tc.period, from, to, tc.from, tc.to)
		}
	}

	if _, _, err := periodRange("decade", now); err == nil {
		t.Fatal("expected error for unknown period")
	}
}

func TestSummaryRows(t *testing.T) {
	now := time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC)
	ana, ben := uuid.New(), uuid.New()
	out := now.Add(-2 * time.Hour)

	entries := []*models.HistoryEntry{
		{EmployeeID: ben, EmployeeName: "Ben", ClockIn: now.Add(-time.Hour), Status: models.StatusActive},
		{EmployeeID: ana, EmployeeName: "Ana", ClockIn: now.Add(-10 * time.Hour), ClockOut: &out, BreakTime: 30 * time.Minute},
		{EmployeeID: ana, EmployeeName: "Ana", ClockIn: now.Add(-90 * time.Minute), Status: models.StatusActive},
	}

	rows := summaryRows(entries, now)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if got := strings.Join(rows[0], "|"); got != "Ana|2|0:30|9:00" {
		t.Errorf("ana = %q", got)
	}
	if got := strings.Join(rows[1], "|"); got != "Ben|1|0:00|1:00" {
		t.Errorf("ben = %q", got)
	}

	if got := filterByName(entries, " an"); len(got) != 2 {
		t.Errorf("filterByName = %d entries, want 2", len(got))
	}
}

func TestStatusRows(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	positions := []*models.LivePosition{
		{EmployeeName: "Ana", Status: models.StatusActive, ClockIn: now.Add(-90 * time.Minute), Online: true,
			Location: &models.Location{Latitude: 52.52, Longitude: 13.405}},
		{EmployeeName: "Ben", Status: models.StatusBreak, ClockIn: now.Add(-time.Minute)},
	}

	rows := statusRows(positions, now)
	if got := strings.Join(rows[0], "|"); got != "●|Ana|active|1h 30m 0s|52.52000, 13.40500" {
		t.Errorf("row 0 = %q", got)
	}
	if got := strings.Join(rows[1], "|"); got != "○|Ben|break|1m 0s|-" {
		t.Errorf("row 1 = %q", got)
	}
}

func TestIsAdmin(t *testing.T) {
	if isAdmin(nil) {
		t.Error("nil member is admin")
	}
	if isAdmin(&discordgo.Member{Permissions: discordgo.PermissionSendMessages}) {
		t.Error("regular member is admin")
	}
	if !isAdmin(&discordgo.Member{Permissions: discordgo.PermissionManageServer}) {
		t.Error("manage server is not admin")
	}
	if !isAdmin(&discordgo.Member{Permissions: discordgo.PermissionAdministrator}) {
		t.Error("administrator is not admin")
	}
}

func TestRegistrationMessage(t *testing.T) {
	owner := "boss@example.com"
	reg := &models.RegisteredEmployee{
		Employee:   models.Employee{FirstName: "Pia", LastName: "Pending", Email: "pia@example.com", IsAdmin: true},
		AdminEmail: &owner,
	}
	msg := registrationMessage(reg)
	for _, want := range []string{"New admin registered: **Pia Pending**", "(pia@example.com)", "verification", "Roster owner: boss@example.com"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}

	reg = &models.RegisteredEmployee{Employee: models.Employee{FirstName: "Walt", LastName: "Worker", Verified: true}}
	if got := registrationMessage(reg); got != "New employee registered: **Walt Worker**" {
		t.Errorf("employee message = %q", got)
	}
}

func TestCommandParams(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "period", Type: discordgo.ApplicationCommandOptionString, Value: "today"},
		{Name: "format", Type: discordgo.ApplicationCommandOptionString, Value: "csv"},
	}
	if got := strings.Join(commandParams(opts), ", "); got != "period:today, format:csv" {
		t.Errorf("params = %q", got)
	}
}
