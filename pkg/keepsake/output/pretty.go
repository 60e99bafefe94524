package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// PrettyFormatter formats reports with colors and boxes for a terminal.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	if r.Status != nil {
		w.WriteString(f.formatStatus(r.Status))
		w.WriteString("\n")
	}

	if r.History != nil {
		w.WriteString(f.formatHistory(r.History))
	}

	if r.Backups != nil || r.Stem != "" {
		w.WriteString(f.formatBackups(r))
	}

	for _, ev := range r.Events {
		w.WriteString(f.formatEvent(ev))
		w.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}

	return nil
}

func (f *PrettyFormatter) formatStatus(s *Status) string {
	if !s.Running {
		return HeaderBox.Render(MutedStyle.Render("keepsake: not running"))
	}

	lines := []string{
		SuccessStyle.Render("keepsake: watching") + "  " +
			LabelStyle.Render("PID:") + " " + ValueStyle.Render(fmt.Sprintf("%d", s.PID)) + "  " +
			LabelStyle.Render("Uptime:") + " " + ValueStyle.Render(formatDuration(s.Uptime)),
		LabelStyle.Render("Root:") + " " + PathStyle.Render(s.WatchRoot),
		LabelStyle.Render("Today:") + " " +
			CountStyle.Render(fmt.Sprintf("%d", s.Today.Total)) + " " +
			ValueStyle.Render(fmt.Sprintf("modifications in %d files", len(s.Today.Files))),
	}

	var extra []string
	if !s.NextRollover.IsZero() {
		extra = append(extra, LabelStyle.Render("Next rollover:")+" "+
			MutedStyle.Render(humanize.Time(s.NextRollover)))
	}
	extra = append(extra,
		LabelStyle.Render("Debounced:")+" "+ValueStyle.Render(fmt.Sprintf("%d", s.DebounceEntries)),
		LabelStyle.Render("Streams:")+" "+ValueStyle.Render(fmt.Sprintf("%d", s.Subscribers)),
	)
	lines = append(lines, strings.Join(extra, "  "))

	out := HeaderBox.Render(strings.Join(lines, "\n"))
	if len(s.Today.Files) > 0 {
		out += "\n" + f.formatFileCounts(s.Today.Files)
	}
	return out
}

func (f *PrettyFormatter) formatFileCounts(files map[string]int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s\n",
		TableHeaderStyle.Render(padLeft("COUNT", 6)), TableHeaderStyle.Render("FILE")))
	for _, name := range sortedFiles(files) {
		sb.WriteString(fmt.Sprintf("  %s  %s\n",
			CountStyle.Render(padLeft(fmt.Sprintf("%d", files[name]), 6)), PathStyle.Render(name)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatHistory(days []Day) string {
	if len(days) == 0 {
		return MutedStyle.Render("  No archived days\n")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("DATE", 10)),
		TableHeaderStyle.Render(padLeft("TOTAL", 6)),
		TableHeaderStyle.Render(padLeft("FILES", 6)),
		TableHeaderStyle.Render("TOP FILE")))

	for _, d := range days {
		sb.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
			ValueStyle.Render(padRight(d.Date, 10)),
			CountStyle.Render(padLeft(fmt.Sprintf("%d", d.Total), 6)),
			ValueStyle.Render(padLeft(fmt.Sprintf("%d", len(d.Files)), 6)),
			PathStyle.Render(topFile(d.Files))))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatBackups(r *Report) string {
	var sb strings.Builder

	if len(r.Backups) == 0 {
		sb.WriteString(MutedStyle.Render(fmt.Sprintf("  No backups for %s\n", r.Stem)))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("MODIFIED", 19)),
		TableHeaderStyle.Render(padLeft("SIZE", 9)),
		TableHeaderStyle.Render("PATH")))
	for _, b := range r.Backups {
		sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			MutedStyle.Render(b.ModTime.Format(types.TimestampLayout)),
			CountStyle.Render(padLeft(b.SizeHuman, 9)),
			PathStyle.Render(b.Path)))
	}

	footer := LabelStyle.Render("Backups:") + " " + ValueStyle.Render(fmt.Sprintf("%d", len(r.Backups))) + "  " +
		LabelStyle.Render("Total:") + " " + CountStyle.Render(types.FormatSize(r.TotalBackupSize()))
	sb.WriteString(FooterBox.Render(footer))
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatEvent(ev types.AuditEvent) string {
	style := ValueStyle
	switch ev.Kind {
	case types.KindCreated:
		style = SuccessStyle
	case types.KindDeleted:
		style = WarningStyle
	}
	line := style.Render(ev.Line())
	if ev.BackupPath != "" {
		line += "\n" + MutedStyle.Render(types.BackupLine(ev.Time, ev.BackupPath))
	}
	return line
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

// topFile returns the most modified file, ties broken by name.
func topFile(files map[string]int) string {
	best, bestCount := "", -1
	for _, name := range sortedFiles(files) {
		if files[name] > bestCount {
			best, bestCount = name, files[name]
		}
	}
	if best == "" {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", best, bestCount)
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	if hours < 24 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dd %dh", hours/24, hours%24)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
