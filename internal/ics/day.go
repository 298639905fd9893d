package ics

import (
	"fmt"
	"sort"
	"time"

	"dayplan/internal/model"
)

// DayEvents flattens timed occurrences into day-keyed events in the
// occurrences' own location. All-day occurrences are skipped; an
// occurrence crossing midnight yields one event per calendar day, the
// earlier piece ending at "24:00".
func DayEvents(occs []model.Occurrence) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(occs))
	for _, o := range occs {
		if o.AllDay {
			continue
		}
		start, end := o.Start, o.End
		if end.Before(start) {
			end = start
		}
		for {
			dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
			next := dayStart.AddDate(0, 0, 1)
			segEnd := end
			if segEnd.After(next) {
				segEnd = next
			}
			from, to := wallMinutes(start, next), wallMinutes(segEnd, next)
			out = append(out, model.CalendarEvent{
				SourceID:        o.SourceID,
				Summary:         o.Summary,
				Start:           hhmm(from),
				End:             hhmm(to),
				DurationMinutes: to - from,
				Date:            dayStart.Format(model.DateLayout),
			})
			if !end.After(next) {
				break
			}
			start = next
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// wallMinutes is t's wall-clock minute of day. The following midnight
// counts as 1440 so a piece cut there reads "24:00".
func wallMinutes(t, next time.Time) int {
	if t.Equal(next) {
		return 24 * 60
	}
	return t.Hour()*60 + t.Minute()
}

func hhmm(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ImportConfig bounds an import to a date window in a timezone.
type ImportConfig struct {
	Location *time.Location
	From     time.Time
	Days     int
}

// Import parses an ICS payload and returns its timed occurrences inside
// [From, From+Days) as day-keyed events.
func Import(src Source, body []byte, cfg ImportConfig) ([]model.CalendarEvent, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Days <= 0 {
		cfg.Days = 1
	}
	parsed, err := ParseICS(src, body)
	if err != nil {
		return nil, err
	}

	from := cfg.From.In(cfg.Location)
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, cfg.Location)
	until := from.AddDate(0, 0, cfg.Days)

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: cfg.Location,
		RangeStart:      from,
		RangeEnd:        until,
	})
	if err != nil {
		return nil, err
	}

	fromKey := from.Format(model.DateLayout)
	untilKey := until.Format(model.DateLayout)
	out := make([]model.CalendarEvent, 0, len(res.Occurrences))
	for _, ev := range DayEvents(res.Occurrences) {
		if ev.Date < fromKey || ev.Date >= untilKey {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
