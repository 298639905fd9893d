// Package timeline renders a day schedule for the terminal.
package timeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"dayplan/internal/clock"
	"dayplan/internal/planner"
)

// kindColor returns the terminal color of a block kind.
func kindColor(k planner.Kind) *color.Color {
	switch k {
	case planner.Focus:
		return color.New(color.FgBlue, color.Bold)
	case planner.Meeting:
		return color.New(color.FgYellow, color.Bold)
	case planner.Break:
		return color.New(color.FgCyan)
	case planner.Wellness:
		return color.New(color.FgGreen)
	case planner.Lunch:
		return color.New(color.FgRed)
	case planner.Hobby:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgHiBlack)
	}
}

func hhmm(m int) string {
	if m >= clock.MinutesPerDay {
		return "24:00"
	}
	return clock.Format24(m)
}

// Render writes one line per block and a goal summary.
func Render(w io.Writer, date string, blocks []planner.ScheduleBlock, goal planner.GoalStatus) error {
	var b strings.Builder

	b.WriteString(color.New(color.Bold).Sprintf("Schedule for %s", date))
	b.WriteString("\n")
	if len(blocks) == 0 {
		b.WriteString(color.New(color.FgHiBlack).Sprint("  (empty day)"))
		b.WriteString("\n")
	}

	width := 0
	for _, k := range planner.Kinds() {
		width = max(width, len(k.String()))
	}

	for _, blk := range blocks {
		c := kindColor(blk.Kind)
		fmt.Fprintf(&b, "  %s-%s  %s  %s  (%d min)\n",
			hhmm(blk.StartMinute), hhmm(blk.EndMinute()),
			c.Sprintf("%-*s", width, blk.Kind),
			blk.Label,
			blk.DurationMinutes,
		)
	}

	b.WriteString(summary(goal))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func summary(g planner.GoalStatus) string {
	line := fmt.Sprintf("Focus %s of %s goal", hours(g.Scheduled), hours(g.Goal))
	switch {
	case g.OnTarget:
		return color.New(color.FgGreen).Sprint(line + ", on target")
	case g.Direction == planner.AddFocus:
		return color.New(color.FgYellow).Sprintf("%s, %s short; suggest adding %s", line, hours(-g.Diff), hours(g.Minutes))
	default:
		return color.New(color.FgYellow).Sprintf("%s, %s over; suggest reducing %s", line, hours(g.Diff), hours(g.Minutes))
	}
}

// hours renders minutes as "7h", "45m" or "1h30m".
func hours(m int) string {
	switch {
	case m%60 == 0 && m != 0:
		return fmt.Sprintf("%dh", m/60)
	case m < 60:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%dh%02dm", m/60, m%60)
	}
}
