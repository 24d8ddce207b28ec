package admin

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"timeclock/internal/db/models"

	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	historySheet = "History"
	timeLayout   = "2006-01-02 15:04"
)

var historyHeader = []string{"Employee", "Clock in", "Clock out", "Status", "Break", "Worked", "Notes"}

func historyRow(h *models.HistoryEntry, now time.Time) []string {
	clockOut := ""
	if h.ClockOut != nil {
		clockOut = h.ClockOut.Format(timeLayout)
	}
	notes := ""
	if h.Notes != nil {
		notes = *h.Notes
	}
	return []string{
		h.EmployeeName,
		h.ClockIn.Format(timeLayout),
		clockOut,
		string(h.Status),
		FormatHours(h.BreakTime),
		FormatHours(h.Worked(now)),
		notes,
	}
}

// FormatHours renders a duration as H:MM.
func FormatHours(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) (string, error) {
	switch format {
	case FormatCSV:
		return "text/csv", nil
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
	}
	return "", fmt.Errorf("unsupported export format %q", format)
}

// WriteHistory writes the entries in the given format.
func WriteHistory(w io.Writer, format string, entries []*models.HistoryEntry, now time.Time) error {
	switch format {
	case FormatCSV:
		return WriteHistoryCSV(w, entries, now)
	case FormatXLSX:
		return WriteHistoryXLSX(w, entries, now)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func WriteHistoryCSV(w io.Writer, entries []*models.HistoryEntry, now time.Time) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return err
	}
	for _, h := range entries {
		if err := cw.Write(historyRow(h, now)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteHistoryXLSX(w io.Writer, entries []*models.HistoryEntry, now time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}

	for i, h := range append([][]string{historyHeader}, rows(entries, now)...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(h))
		for j, v := range h {
			values[j] = v
		}
		if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
			return err
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(historySheet, 1, 1, style); err != nil {
		return err
	}
	if err := f.SetColWidth(historySheet, "A", "A", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(historySheet, "B", "C", 18); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

func rows(entries []*models.HistoryEntry, now time.Time) [][]string {
	out := make([][]string, 0, len(entries))
	for _, h := range entries {
		out = append(out, historyRow(h, now))
	}
	return out
}
