package planner

import (
	"fmt"
	"sort"

	"dayplan/internal/clock"
	"dayplan/internal/model"
)

// DefaultEventMinutes is the duration given to imported events whose end
// does not come after their start and which carry no duration.
const DefaultEventMinutes = 30

// Event is an imported calendar event reduced to a minute-of-day interval.
type Event struct {
	Summary         string `json:"summary"`
	StartMinute     int    `json:"start"`
	EndMinute       int    `json:"end"`
	DurationMinutes int    `json:"duration"`
}

// EventsForDate picks the events keyed to date and converts them to
// intervals sorted by start. Date matching is exact; no timezone
// conversion happens here.
func EventsForDate(all []model.CalendarEvent, date string) ([]Event, error) {
	out := make([]Event, 0)
	for _, ce := range all {
		if ce.Date != date {
			continue
		}
		ev, err := normalizeEvent(ce)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartMinute != out[j].StartMinute {
			return out[i].StartMinute < out[j].StartMinute
		}
		if out[i].EndMinute != out[j].EndMinute {
			return out[i].EndMinute < out[j].EndMinute
		}
		return out[i].Summary < out[j].Summary
	})
	return out, nil
}

func normalizeEvent(ce model.CalendarEvent) (Event, error) {
	start, err := clock.ParseHHMM(ce.Start)
	if err != nil {
		return Event{}, fmt.Errorf("%w: event %q start: %v", ErrInvalidInput, ce.Summary, err)
	}
	if start >= clock.MinutesPerDay {
		return Event{}, fmt.Errorf("%w: event %q starts at end of day", ErrInvalidInput, ce.Summary)
	}
	if ce.DurationMinutes < 0 {
		return Event{}, fmt.Errorf("%w: event %q has negative duration", ErrInvalidInput, ce.Summary)
	}

	end := start
	if ce.End != "" {
		end, err = clock.ParseHHMM(ce.End)
		if err != nil {
			return Event{}, fmt.Errorf("%w: event %q end: %v", ErrInvalidInput, ce.Summary, err)
		}
	}
	if end <= start {
		d := ce.DurationMinutes
		if d <= 0 {
			d = DefaultEventMinutes
		}
		end = start + d
	}
	end = min(end, clock.MinutesPerDay)

	return Event{
		Summary:         ce.Summary,
		StartMinute:     start,
		EndMinute:       end,
		DurationMinutes: end - start,
	}, nil
}

// Within splits sorted events into those that fit the work window
// [dayStart, dayEnd] and the rest. An event crossing a window edge is
// clipped to the window; only events with no minutes inside it are
// returned as outside.
func Within(events []Event, dayStart, dayEnd int) (inside, outside []Event) {
	for _, ev := range events {
		if ev.StartMinute >= dayStart && ev.EndMinute <= dayEnd {
			inside = append(inside, ev)
			continue
		}
		start, end := max(ev.StartMinute, dayStart), min(ev.EndMinute, dayEnd)
		if start >= end {
			outside = append(outside, ev)
			continue
		}
		ev.StartMinute, ev.EndMinute = start, end
		ev.DurationMinutes = end - start
		inside = append(inside, ev)
	}
	return inside, outside
}

// CheckOverlaps rejects sorted events where one starts before the
// previous one ends.
func CheckOverlaps(events []Event) error {
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.StartMinute < prev.EndMinute {
			return fmt.Errorf("%w: %q (%s-%s) overlaps %q (%s-%s)", ErrOverlappingEvents,
				cur.Summary, clock.Format24(cur.StartMinute), formatEnd(cur.EndMinute),
				prev.Summary, clock.Format24(prev.StartMinute), formatEnd(prev.EndMinute))
		}
	}
	return nil
}

func formatEnd(m int) string {
	if m >= clock.MinutesPerDay {
		return "24:00"
	}
	return clock.Format24(m)
}
