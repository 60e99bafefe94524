package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// PlainFormatter formats reports as tab-aligned text without styling.
// Suitable for scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if s := r.Status; s != nil {
		fmt.Fprintf(tw, "running\t%t\n", s.Running)
		if s.Running {
			fmt.Fprintf(tw, "pid\t%d\n", s.PID)
			fmt.Fprintf(tw, "uptime\t%s\n", s.Uptime.Round(time.Second))
			fmt.Fprintf(tw, "root\t%s\n", s.WatchRoot)
			fmt.Fprintf(tw, "date\t%s\n", s.Today.Date)
			fmt.Fprintf(tw, "total\t%d\n", s.Today.Total)
			fmt.Fprintf(tw, "files\t%d\n", len(s.Today.Files))
			fmt.Fprintf(tw, "debounced\t%d\n", s.DebounceEntries)
			if !s.NextRollover.IsZero() {
				fmt.Fprintf(tw, "next_rollover\t%s\n", s.NextRollover.Format(types.TimestampLayout))
			}
		}
	}

	if r.History != nil {
		fmt.Fprintln(tw, "DATE\tTOTAL\tFILES\tEVENTS")
		for _, d := range r.History {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", d.Date, d.Total, len(d.Files), d.Events)
		}
	}

	if r.Backups != nil {
		fmt.Fprintln(tw, "MODIFIED\tSIZE\tPATH")
		for _, b := range r.Backups {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ModTime.Format(types.TimestampLayout), b.SizeHuman, b.Path)
		}
	}

	for _, ev := range r.Events {
		fmt.Fprintln(tw, ev.Line())
		if ev.BackupPath != "" {
			fmt.Fprintln(tw, types.BackupLine(ev.Time, ev.BackupPath))
		}
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
